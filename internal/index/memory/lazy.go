package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/TigerSong/OAP/internal/handle"
	"github.com/TigerSong/OAP/internal/index"
)

// ColumnFunc returns every value of attr in a file, indexed by row id.
type ColumnFunc func(ctx context.Context, h handle.Handle, attr string) ([]any, error)

// Lazy is an index.Opener that builds a missing index on first use from
// the file's column values and keeps it in a Manager. Concurrent opens of
// the same index share one build.
//
// A built index is tied to the handle it was read from, so a file that
// changed and was reloaded gets a fresh build. Handles are compared with
// ==, so their dynamic types must be comparable (pointers are).
type Lazy struct {
	manager *Manager
	column  ColumnFunc
	builds  *index.BuildHelper
}

var _ index.Opener = (*Lazy)(nil)

func NewLazy(m *Manager, column ColumnFunc) *Lazy {
	return &Lazy{manager: m, column: column, builds: index.NewBuildHelper()}
}

func (l *Lazy) Open(ctx context.Context, h handle.Handle, d handle.IndexDescriptor) (index.Scanner, error) {
	id := h.Identity()
	for {
		sc, err := l.manager.Open(ctx, h, d)
		if !errors.Is(err, index.ErrIndexNotFound) {
			return sc, err
		}
		var own *Index
		_, err = l.builds.Build(ctx, id, d, func(ctx context.Context) (index.Scanner, error) {
			values, err := l.column(ctx, h, d.Leading())
			if err != nil {
				return nil, fmt.Errorf("build %s on %s: %w", d.Name, id.Path, err)
			}
			idx, err := Build(d, values)
			if err != nil {
				return nil, fmt.Errorf("build %s on %s: %w", d.Name, id.Path, err)
			}
			l.manager.addFor(h, idx)
			l.manager.logger.Debug("index built", "file", id.Path, "index", d.Name, "distinct", idx.Distinct())
			own = idx
			return idx, nil
		})
		if err != nil {
			return nil, err
		}
		if own != nil {
			return own, nil
		}
		// Joined a build started for another handle of the identity. Look
		// it up again: it only counts if it was built from h.
	}
}
