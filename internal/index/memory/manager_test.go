package memory

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/TigerSong/OAP/internal/handle"
	"github.com/TigerSong/OAP/internal/index"
	"github.com/TigerSong/OAP/internal/predicate"
	"github.com/TigerSong/OAP/internal/schema"
)

// ages[i] is the age in row i.
var ages = []any{int64(30), nil, int64(18), int64(65), int64(30), int64(42), nil, int64(18)}

func build(t *testing.T, kind handle.Kind) *Index {
	t.Helper()
	idx, err := Build(handle.IndexDescriptor{Name: "age_" + string(kind), Attributes: []string{"age"}, Kind: kind}, ages)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func lookup(t *testing.T, idx *Index, filters ...predicate.Expr) []uint64 {
	t.Helper()
	seq, err := idx.Lookup(context.Background(), filters)
	if err != nil {
		t.Fatal(err)
	}
	// Restartable: a second pass yields the same ids.
	first, second := slices.Collect(seq), slices.Collect(seq)
	if !slices.Equal(first, second) {
		t.Fatalf("second iteration differs: %v vs %v", first, second)
	}
	return first
}

func TestLookup(t *testing.T) {
	idx := build(t, handle.KindBTree)
	if idx.Distinct() != 4 {
		t.Errorf("Distinct = %d, want 4", idx.Distinct())
	}

	tests := []struct {
		name    string
		filters []predicate.Expr
		want    []uint64
	}{
		{"eq", []predicate.Expr{predicate.Eq("age", int64(30))}, []uint64{0, 4}},
		{"eq float literal", []predicate.Expr{predicate.Eq("age", 18.0)}, []uint64{2, 7}},
		{"eq absent", []predicate.Expr{predicate.Eq("age", int64(31))}, nil},
		{"lt", []predicate.Expr{predicate.Lt("age", int64(30))}, []uint64{2, 7}},
		{"le", []predicate.Expr{predicate.Le("age", int64(30))}, []uint64{0, 2, 4, 7}},
		{"gt", []predicate.Expr{predicate.Gt("age", int64(30))}, []uint64{3, 5}},
		{"ge", []predicate.Expr{predicate.Ge("age", int64(42))}, []uint64{3, 5}},
		{"in", []predicate.Expr{predicate.In("age", int64(18), int64(65))}, []uint64{2, 3, 7}},
		{"is null", []predicate.Expr{predicate.IsNull("age")}, []uint64{1, 6}},
		{"is not null", []predicate.Expr{predicate.IsNotNull("age")}, []uint64{0, 2, 3, 4, 5, 7}},
		{"or", []predicate.Expr{predicate.Or(predicate.Lt("age", int64(20)), predicate.Gt("age", int64(60)))}, []uint64{2, 3, 7}},
		{"and within one filter", []predicate.Expr{predicate.And(predicate.Gt("age", int64(18)), predicate.Lt("age", int64(50)))}, []uint64{0, 4, 5}},
		{"filters intersect", []predicate.Expr{predicate.Ge("age", int64(30)), predicate.Le("age", int64(42))}, []uint64{0, 4, 5}},
		{"mismatched literal", []predicate.Expr{predicate.Eq("age", "thirty")}, nil},
		{"no filters", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lookup(t, idx, tt.filters...)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Lookup = %v, want %v", got, tt.want)
			}
		})
	}
}

// Lookup agrees with evaluating every row directly.
func TestLookupMatchesRowEvaluation(t *testing.T) {
	idx := build(t, handle.KindBitmap)
	filters := []predicate.Expr{
		predicate.Lt("age", int64(42)),
		predicate.Not(predicate.Eq("age", int64(30))),
		predicate.Or(predicate.IsNull("age"), predicate.Ge("age", int64(65))),
		predicate.In("age"),
	}
	for _, f := range filters {
		var want []uint64
		for i, v := range ages {
			if predicate.Matches(f, predicate.Row{"age": v}) {
				want = append(want, uint64(i))
			}
		}
		seq, err := idx.Lookup(context.Background(), []predicate.Expr{f})
		if _, ok := predicate.IsIndexEligible(f); !ok {
			if !errors.Is(err, index.ErrUnsupportedFilter) {
				t.Errorf("%s: error = %v, want ErrUnsupportedFilter", f, err)
			}
			continue
		}
		if err != nil {
			t.Fatal(err)
		}
		if got := slices.Collect(seq); !slices.Equal(got, want) {
			t.Errorf("%s: Lookup = %v, rows = %v", f, got, want)
		}
	}
}

func TestLookupUnsupported(t *testing.T) {
	ctx := context.Background()
	hash := build(t, handle.KindHash)

	if got := lookup(t, hash, predicate.Eq("age", int64(65))); !slices.Equal(got, []uint64{3}) {
		t.Errorf("hash point lookup = %v", got)
	}
	if got := lookup(t, hash, predicate.IsNull("age")); !slices.Equal(got, []uint64{1, 6}) {
		t.Errorf("hash null lookup = %v", got)
	}
	if _, err := hash.Lookup(ctx, []predicate.Expr{predicate.Gt("age", int64(1))}); !errors.Is(err, index.ErrUnsupportedFilter) {
		t.Errorf("hash range error = %v", err)
	}
	btree := build(t, handle.KindBTree)
	if _, err := btree.Lookup(ctx, []predicate.Expr{predicate.Eq("name", "x")}); !errors.Is(err, index.ErrUnsupportedFilter) {
		t.Errorf("other attribute error = %v", err)
	}
}

func TestBuildErrors(t *testing.T) {
	if _, err := Build(handle.IndexDescriptor{Name: "x"}, nil); err == nil {
		t.Error("descriptor without attributes should fail")
	}
	d := handle.IndexDescriptor{Name: "mixed", Attributes: []string{"v"}, Kind: handle.KindBTree}
	if _, err := Build(d, []any{int64(1), "one"}); !errors.Is(err, schema.ErrIncomparable) {
		t.Errorf("mixed values error = %v", err)
	}
}

func TestManagerOpen(t *testing.T) {
	ctx := context.Background()
	s := schema.MustNew(schema.Field{Name: "age", Type: schema.TypeInt64})
	f := handle.File{Path: "people.oap", Schema: s, Format: handle.FormatNative}
	catalog := []handle.IndexDescriptor{{Name: "age_idx", Attributes: []string{"age"}, Kind: handle.KindBTree}}
	h := &handle.Static{ID: f.Identity(), Rows: int64(len(ages)), Catalog: catalog}

	m := NewManager(nil)
	if err := m.BuildAll(f.Identity(), catalog, map[string][]any{"age": ages}); err != nil {
		t.Fatal(err)
	}
	sc, err := m.Open(ctx, h, catalog[0])
	if err != nil {
		t.Fatal(err)
	}
	if sc.Descriptor().Name != "age_idx" {
		t.Errorf("Descriptor = %v", sc.Descriptor())
	}

	if _, err := m.Open(ctx, h, handle.IndexDescriptor{Name: "nope"}); !errors.Is(err, index.ErrIndexNotFound) {
		t.Errorf("error = %v, want ErrIndexNotFound", err)
	}
	m.Remove(f.Identity())
	if _, err := m.Open(ctx, h, catalog[0]); !errors.Is(err, index.ErrIndexNotFound) {
		t.Errorf("after Remove error = %v", err)
	}
	if err := m.BuildAll(f.Identity(), catalog, nil); err == nil {
		t.Error("BuildAll without the column should fail")
	}
}

func TestManagerServesOwnerOnly(t *testing.T) {
	ctx := context.Background()
	d := handle.IndexDescriptor{Name: "age_idx", Attributes: []string{"age"}, Kind: handle.KindBTree}
	id := handle.Identity{Path: "people.oap", Format: handle.FormatNative}
	old := &handle.Static{ID: id, Rows: int64(len(ages))}
	reloaded := &handle.Static{ID: id, Rows: int64(len(ages))}

	idx, err := Build(d, ages)
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(nil)
	m.addFor(old, idx)
	if _, err := m.Open(ctx, old, d); err != nil {
		t.Errorf("owner: %v", err)
	}
	if _, err := m.Open(ctx, reloaded, d); !errors.Is(err, index.ErrIndexNotFound) {
		t.Errorf("reloaded handle error = %v, want ErrIndexNotFound", err)
	}

	// Indexes added without an owner serve every handle of the identity.
	m.Add(id, idx)
	if _, err := m.Open(ctx, reloaded, d); err != nil {
		t.Errorf("unowned: %v", err)
	}
}
