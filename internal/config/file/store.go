// Package file provides a file-based config.Store.
//
// Configuration is persisted as a versioned JSON envelope:
//
//	{"version": 2, "config": { ... }}
//
// Older versions are migrated in place on load.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/TigerSong/OAP/internal/config"
)

const currentVersion = 2

// envelope is the versioned on-disk format.
type envelope struct {
	Version int            `json:"version"`
	Config  *config.Config `json:"config"`
}

// Store keeps the configuration in a single JSON file. Writes are atomic
// via temp file + rename with round-trip validation.
type Store struct {
	path string
}

var _ config.Store = (*Store)(nil)

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Load reads the configuration from disk. Returns nil if the file does
// not exist.
func (s *Store) Load(ctx context.Context) (*config.Config, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var head struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	switch {
	case head.Version == 0:
		return nil, fmt.Errorf("unversioned config file %s", s.path)
	case head.Version > currentVersion:
		return nil, fmt.Errorf("config file version %d is newer than supported version %d", head.Version, currentVersion)
	case head.Version < currentVersion:
		if data, err = migrateFile(s.path, data, head.Version); err != nil {
			return nil, fmt.Errorf("migrate config: %w", err)
		}
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return env.Config, nil
}

// Save atomically replaces the file with cfg.
func (s *Store) Save(ctx context.Context, cfg *config.Config) error {
	data, err := json.MarshalIndent(envelope{Version: currentVersion, Config: cfg}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(s.path, data)
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	// Round-trip validation: re-read and verify valid JSON.
	check, err := os.ReadFile(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("read-back temp file: %w", err)
	}
	var verify envelope
	if err := json.Unmarshal(check, &verify); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("round-trip validation failed: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config file: %w", err)
	}
	return nil
}
