// Package reader defines the physical row reader a scan hands its final
// row selection to, and an in-memory implementation.
package reader

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/TigerSong/OAP/internal/handle"
	"github.com/TigerSong/OAP/internal/index"
)

var (
	ErrNoData        = errors.New("no row data for file")
	ErrColumnOrdinal = errors.New("column ordinal out of range")
)

// Row is one decoded record. Values holds the requested columns in the
// order they were requested; nil is null.
type Row struct {
	ID     uint64
	Values []any
}

// Reader decodes rows of a file. It is invoked only once the scan has
// decided the file cannot be skipped.
type Reader interface {
	// Open returns the rows of the file, restricted to rows when non-nil
	// and in ascending id order. columns are schema ordinals.
	Open(ctx context.Context, id handle.Identity, columns []int, rows *index.RowSet) (iter.Seq2[Row, error], error)
}

// Memory serves rows kept in memory, one table per file. Safe for
// concurrent use.
type Memory struct {
	mu     sync.RWMutex
	tables map[handle.Identity][][]any // row-major, values by schema ordinal
}

func NewMemory() *Memory {
	return &Memory{tables: make(map[handle.Identity][][]any)}
}

// Put stores the rows of a file, replacing any previous rows.
func (m *Memory) Put(id handle.Identity, rows [][]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[id] = rows
}

func (m *Memory) Open(ctx context.Context, id handle.Identity, columns []int, rows *index.RowSet) (iter.Seq2[Row, error], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	table, ok := m.tables[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", id.Path, ErrNoData)
	}

	project := func(i uint64) (Row, error) {
		rec := table[i]
		out := Row{ID: i, Values: make([]any, len(columns))}
		for j, c := range columns {
			if c < 0 || c >= len(rec) {
				return Row{}, fmt.Errorf("%w: %d", ErrColumnOrdinal, c)
			}
			out.Values[j] = rec[c]
		}
		return out, nil
	}

	ids := func(yield func(uint64) bool) {
		for i := range uint64(len(table)) {
			if !yield(i) {
				return
			}
		}
	}
	if rows != nil {
		ids = rows.All()
	}

	return func(yield func(Row, error) bool) {
		for i := range ids {
			if err := ctx.Err(); err != nil {
				yield(Row{}, err)
				return
			}
			if i >= uint64(len(table)) {
				yield(Row{}, fmt.Errorf("%s: row %d beyond %d rows", id.Path, i, len(table)))
				return
			}
			r, err := project(i)
			if !yield(r, err) || err != nil {
				return
			}
		}
	}, nil
}

// Registry dispatches Open on the identity's format. The zero value is
// empty and ready to use.
type Registry struct {
	mu      sync.RWMutex
	readers map[handle.Format]Reader
}

// Register installs the reader for format, replacing any previous one.
func (r *Registry) Register(format handle.Format, rd Reader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readers == nil {
		r.readers = make(map[handle.Format]Reader)
	}
	r.readers[format] = rd
}

func (r *Registry) Open(ctx context.Context, id handle.Identity, columns []int, rows *index.RowSet) (iter.Seq2[Row, error], error) {
	r.mu.RLock()
	rd, ok := r.readers[id.Format]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no row reader for %w %q", handle.ErrUnknownFormat, id.Format)
	}
	return rd.Open(ctx, id, columns, rows)
}
