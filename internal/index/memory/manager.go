package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/TigerSong/OAP/internal/handle"
	"github.com/TigerSong/OAP/internal/index"
	"github.com/TigerSong/OAP/internal/logging"
)

// Manager holds built indexes per file and opens them as scanners.
//
// Logging:
//   - Logger is dependency-injected via NewManager
//   - Manager owns its scoped logger (component="index-manager", type="memory")
//   - No logging in hot paths (index lookups)
type Manager struct {
	mu      sync.RWMutex
	indexes map[handle.Identity]map[string]built

	logger *slog.Logger
}

// built is a registered index. owner is the handle it was built from, or
// nil when it serves any handle of the identity.
type built struct {
	idx   *Index
	owner handle.Handle
}

// NewManager creates an empty manager. If logger is nil, logging is
// disabled.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		indexes: make(map[handle.Identity]map[string]built),
		logger:  logging.Component(logger, "index-manager", "type", "memory"),
	}
}

// Add registers idx for the file id, replacing any index with the same
// name.
func (m *Manager) Add(id handle.Identity, idx *Index) {
	m.add(id, built{idx: idx})
}

// addFor registers idx as built from h. It is served only to h, so a
// reloaded handle of the same identity never sees it.
func (m *Manager) addFor(h handle.Handle, idx *Index) {
	m.add(h.Identity(), built{idx: idx, owner: h})
}

func (m *Manager) add(id handle.Identity, b built) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byName := m.indexes[id]
	if byName == nil {
		byName = make(map[string]built)
		m.indexes[id] = byName
	}
	byName[b.idx.desc.Name] = b
}

// BuildAll builds every descriptor from columns, keyed by attribute name,
// and registers the results for id.
func (m *Manager) BuildAll(id handle.Identity, catalog []handle.IndexDescriptor, columns map[string][]any) error {
	for _, d := range catalog {
		values, ok := columns[d.Leading()]
		if !ok {
			return fmt.Errorf("index %s: no column %q", d.Name, d.Leading())
		}
		idx, err := Build(d, values)
		if err != nil {
			return err
		}
		m.Add(id, idx)
	}
	m.logger.Debug("indexes built", "file", id.Path, "count", len(catalog))
	return nil
}

// Remove drops every index of id. Wire it to the handle cache's teardown
// so indexes do not outlive the handle they describe.
func (m *Manager) Remove(id handle.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.indexes, id)
}

// Open implements index.Opener.
func (m *Manager) Open(ctx context.Context, h handle.Handle, d handle.IndexDescriptor) (index.Scanner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	b, ok := m.indexes[h.Identity()][d.Name]
	m.mu.RUnlock()
	if !ok || (b.owner != nil && b.owner != h) {
		return nil, fmt.Errorf("%s on %s: %w", d.Name, h.Identity().Path, index.ErrIndexNotFound)
	}
	return b.idx, nil
}
