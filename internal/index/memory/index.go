// Package memory provides in-memory secondary indexes: per-attribute sorted
// postings built from column values. They back tests and the CLI's
// sample data and serve as the reference Scanner.
package memory

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sort"

	"github.com/TigerSong/OAP/internal/handle"
	"github.com/TigerSong/OAP/internal/index"
	"github.com/TigerSong/OAP/internal/predicate"
	"github.com/TigerSong/OAP/internal/schema"
)

type posting struct {
	value any
	rows  []uint64 // ascending
}

// Index maps each distinct value of one attribute to the rows holding it.
// It is immutable once built.
type Index struct {
	desc     handle.IndexDescriptor
	postings []posting // ascending by value
	nulls    []uint64
}

// Build indexes values, where values[i] is the leading attribute's value in
// row i and nil is null. Values must be mutually comparable.
func Build(d handle.IndexDescriptor, values []any) (*Index, error) {
	if len(d.Attributes) == 0 {
		return nil, fmt.Errorf("index %s: no attributes", d.Name)
	}
	type pair struct {
		v   any
		row uint64
	}
	var pairs []pair
	var nulls []uint64
	for i, v := range values {
		if v == nil {
			nulls = append(nulls, uint64(i))
			continue
		}
		pairs = append(pairs, pair{v, uint64(i)})
	}

	var cmpErr error
	slices.SortStableFunc(pairs, func(a, b pair) int {
		c, err := schema.Compare(a.v, b.v)
		if err != nil && cmpErr == nil {
			cmpErr = err
		}
		return c
	})
	if cmpErr != nil {
		return nil, fmt.Errorf("index %s: %w", d.Name, cmpErr)
	}

	var postings []posting
	for _, p := range pairs {
		if n := len(postings); n > 0 {
			if c, _ := schema.Compare(postings[n-1].value, p.v); c == 0 {
				postings[n-1].rows = append(postings[n-1].rows, p.row)
				continue
			}
		}
		postings = append(postings, posting{value: p.v, rows: []uint64{p.row}})
	}
	return &Index{desc: d, postings: postings, nulls: nulls}, nil
}

func (x *Index) Descriptor() handle.IndexDescriptor { return x.desc }

// Distinct returns the number of distinct non-null values.
func (x *Index) Distinct() int { return len(x.postings) }

// Lookup answers filters on the leading attribute. Hash indexes answer
// point lookups and null tests only.
func (x *Index) Lookup(ctx context.Context, filters []predicate.Expr) (iter.Seq[uint64], error) {
	attr := x.desc.Leading()
	var out *index.RowSet
	for _, f := range filters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if bound, ok := predicate.IsIndexEligible(f); !ok || bound != attr {
			return nil, fmt.Errorf("%s on index %s: %w", f, x.desc.Name, index.ErrUnsupportedFilter)
		}
		if x.desc.Kind == handle.KindHash {
			if s := predicate.Shape(f); s != predicate.ShapePoint && s != predicate.ShapeNullTest {
				return nil, fmt.Errorf("%s on hash index %s: %w", f, x.desc.Name, index.ErrUnsupportedFilter)
			}
		}
		rows := x.match(f, attr)
		if out == nil {
			out = rows
		} else {
			out = out.Intersect(rows)
		}
	}
	if out == nil {
		return func(func(uint64) bool) {}, nil
	}
	return out.All(), nil
}

func (x *Index) match(f predicate.Expr, attr string) *index.RowSet {
	var ids []uint64
	if predicate.Matches(f, predicate.Row{}) {
		ids = append(ids, x.nulls...)
	}
	lo, hi := x.span(f)
	for _, p := range x.postings[lo:hi] {
		if predicate.Matches(f, predicate.Row{attr: p.value}) {
			ids = append(ids, p.rows...)
		}
	}
	return index.NewRowSet(ids...)
}

// span narrows the postings worth testing for a single comparison.
// Anything else, or a literal that does not compare, spans everything.
func (x *Index) span(f predicate.Expr) (int, int) {
	n := len(x.postings)
	c, ok := f.(*predicate.CompareExpr)
	if !ok {
		return 0, n
	}
	failed := false
	search := func(pred func(int) bool) int {
		return sort.Search(n, func(i int) bool {
			cmp, err := schema.Compare(x.postings[i].value, c.Value)
			if err != nil {
				failed = true
				return false
			}
			return pred(cmp)
		})
	}
	atOrAbove := search(func(cmp int) bool { return cmp >= 0 })
	above := search(func(cmp int) bool { return cmp > 0 })
	if failed {
		return 0, n
	}
	switch c.Op {
	case predicate.OpEq:
		return atOrAbove, above
	case predicate.OpLt:
		return 0, atOrAbove
	case predicate.OpLe:
		return 0, above
	case predicate.OpGt:
		return above, n
	case predicate.OpGe:
		return atOrAbove, n
	}
	return 0, n
}
