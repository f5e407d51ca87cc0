// Package home manages the oapscan home directory layout.
//
// Layout:
//
//	<root>/
//	  config.json          (versioned config envelope)
//	  config.json.v<N>.bak (backups written before migrations)
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir represents an oapscan home directory.
type Dir struct {
	root string
}

// New creates a Dir with an explicit root path.
func New(root string) Dir {
	return Dir{root: root}
}

// Default returns a Dir using the platform-appropriate default location:
//   - Linux:   ~/.config/oapscan
//   - macOS:   ~/Library/Application Support/oapscan
//   - Windows: %APPDATA%/oapscan
func Default() (Dir, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return Dir{}, fmt.Errorf("determine config directory: %w", err)
	}
	return Dir{root: filepath.Join(base, "oapscan")}, nil
}

func (d Dir) Root() string { return d.root }

// ConfigPath returns the path to the JSON config file.
func (d Dir) ConfigPath() string {
	return filepath.Join(d.root, "config.json")
}

// EnsureExists creates the home directory (and parents) if it doesn't exist.
func (d Dir) EnsureExists() error {
	if err := os.MkdirAll(d.root, 0o750); err != nil {
		return fmt.Errorf("create home directory %s: %w", d.root, err)
	}
	return nil
}
