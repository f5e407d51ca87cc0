package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	d := New("/tmp/oapscan-test")
	if d.Root() != "/tmp/oapscan-test" {
		t.Errorf("expected root /tmp/oapscan-test, got %s", d.Root())
	}
}

func TestDefault(t *testing.T) {
	d, err := Default()
	if err != nil {
		t.Skipf("no user config dir: %v", err)
	}
	if filepath.Base(d.Root()) != "oapscan" {
		t.Errorf("expected root to end with 'oapscan', got %s", d.Root())
	}
}

func TestConfigPath(t *testing.T) {
	d := New("/data")
	if got := d.ConfigPath(); got != filepath.Join("/data", "config.json") {
		t.Errorf("got %s", got)
	}
}

func TestEnsureExists(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "b")
	d := New(root)
	if err := d.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected a directory")
	}
	// Idempotent.
	if err := d.EnsureExists(); err != nil {
		t.Fatalf("second EnsureExists: %v", err)
	}
}
