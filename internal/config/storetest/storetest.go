// Package storetest provides a shared conformance test suite for
// config.Store implementations.
package storetest

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/TigerSong/OAP/internal/config"
)

// TestStore runs the conformance suite. newStore must return a fresh,
// empty store for each sub-test.
func TestStore(t *testing.T, newStore func(t *testing.T) config.Store) {
	t.Run("LoadEmpty", func(t *testing.T) {
		s := newStore(t)
		cfg, err := s.Load(context.Background())
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg != nil {
			t.Fatalf("expected nil config from empty store, got %+v", cfg)
		}
	})

	t.Run("SaveLoad", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		want := Sample()
		if err := s.Save(ctx, want); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("loaded config differs:\n got  %+v\n want %+v", got, want)
		}
	})

	t.Run("SaveReplaces", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.Save(ctx, Sample()); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if err := s.Save(ctx, config.Default()); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got.Storage.S3 != nil {
			t.Errorf("S3 survived replacement: %+v", got.Storage.S3)
		}
		if got.Cache.Policy != config.PolicyLRU {
			t.Errorf("Policy: expected %q, got %q", config.PolicyLRU, got.Cache.Policy)
		}
	})

	t.Run("LoadIsolated", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.Save(ctx, Sample()); err != nil {
			t.Fatalf("Save: %v", err)
		}
		first, _ := s.Load(ctx)
		first.Storage.S3.Endpoint = "changed"
		first.Logging.Components["scan-engine"] = "error"

		second, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if second.Storage.S3.Endpoint != "minio:9000" {
			t.Errorf("Endpoint leaked between loads: %q", second.Storage.S3.Endpoint)
		}
		if second.Logging.Components["scan-engine"] != "debug" {
			t.Errorf("component level leaked between loads: %q", second.Logging.Components["scan-engine"])
		}
	})
}

// Sample is a fully populated, valid configuration.
func Sample() *config.Config {
	cfg := config.Default()
	cfg.Scan = config.Scan{
		MaxIndexCandidates: 2,
		RowOrder:           "age",
		Limit:              100,
		IndexScanLimit:     3,
		GroupBy:            "name",
	}
	cfg.Cache = config.Cache{
		Policy:        config.PolicyTTL,
		TTL:           config.Duration(10 * time.Minute),
		LoadTimeout:   config.Duration(5 * time.Second),
		SweepSchedule: "30s",
		Watch:         true,
	}
	cfg.Storage.S3 = &config.S3{
		Endpoint:  "minio:9000",
		AccessKey: "key",
		SecretKey: "secret",
		Region:    "us-east-1",
	}
	cfg.Logging.Components = map[string]string{"scan-engine": "debug"}
	cfg.Parallelism = 4
	return cfg
}
