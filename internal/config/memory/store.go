// Package memory provides an in-memory config.Store.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/TigerSong/OAP/internal/config"
)

// Store is an in-memory config.Store. Intended for testing and for hosts
// configured entirely by flags.
type Store struct {
	mu  sync.RWMutex
	cfg *config.Config
}

var _ config.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{}
}

// Load returns a copy of the stored configuration, or nil if none has
// been saved.
func (s *Store) Load(ctx context.Context) (*config.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyConfig(s.cfg), nil
}

func (s *Store) Save(ctx context.Context, cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = copyConfig(cfg)
	return nil
}

// copyConfig creates a deep copy of a Config.
func copyConfig(cfg *config.Config) *config.Config {
	if cfg == nil {
		return nil
	}
	c := *cfg
	if cfg.Storage.S3 != nil {
		s3 := *cfg.Storage.S3
		c.Storage.S3 = &s3
	}
	c.Logging.Components = maps.Clone(cfg.Logging.Components)
	return &c
}
