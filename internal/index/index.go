// Package index defines the capability a secondary index offers to a scan:
// answering single-attribute filters with ascending row ids.
package index

import (
	"context"
	"errors"
	"iter"

	"github.com/TigerSong/OAP/internal/handle"
	"github.com/TigerSong/OAP/internal/predicate"
)

var (
	ErrIndexNotFound = errors.New("index not found")
	// ErrUnsupportedFilter means the index cannot answer a filter. The
	// caller falls back to reading without it.
	ErrUnsupportedFilter = errors.New("filter not supported by index")
)

// Scanner answers filters on its index's leading attribute.
type Scanner interface {
	Descriptor() handle.IndexDescriptor

	// Lookup returns the ids of rows matching every filter, ascending and
	// without duplicates. The sequence is finite and may be iterated more
	// than once.
	Lookup(ctx context.Context, filters []predicate.Expr) (iter.Seq[uint64], error)
}

// Opener opens the scanner for one index of a file.
type Opener interface {
	Open(ctx context.Context, h handle.Handle, d handle.IndexDescriptor) (Scanner, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, h handle.Handle, d handle.IndexDescriptor) (Scanner, error)

func (fn OpenerFunc) Open(ctx context.Context, h handle.Handle, d handle.IndexDescriptor) (Scanner, error) {
	return fn(ctx, h, d)
}

// Narrow looks up each scanner with its filters and intersects the results.
// It returns nil with no error when scanners is empty.
func Narrow(ctx context.Context, scanners []Scanner, filters [][]predicate.Expr) (*RowSet, error) {
	var out *RowSet
	for i, sc := range scanners {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seq, err := sc.Lookup(ctx, filters[i])
		if err != nil {
			return nil, err
		}
		rows := Collect(seq)
		if out == nil {
			out = rows
		} else {
			out = out.Intersect(rows)
		}
		if out.Len() == 0 {
			break
		}
	}
	return out, nil
}
