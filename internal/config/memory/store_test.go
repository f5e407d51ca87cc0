package memory

import (
	"testing"

	"github.com/TigerSong/OAP/internal/config"
	"github.com/TigerSong/OAP/internal/config/storetest"
)

func TestConformance(t *testing.T) {
	storetest.TestStore(t, func(t *testing.T) config.Store {
		return NewStore()
	})
}

func TestSaveCopies(t *testing.T) {
	s := NewStore()
	cfg := storetest.Sample()
	if err := s.Save(t.Context(), cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	cfg.Parallelism = 99
	cfg.Storage.S3.Region = "elsewhere"

	got, err := s.Load(t.Context())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Parallelism != 4 || got.Storage.S3.Region != "us-east-1" {
		t.Errorf("store shares memory with caller: %+v", got)
	}
}
