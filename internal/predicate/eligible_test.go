package predicate

import (
	"slices"
	"testing"

	"github.com/TigerSong/OAP/internal/schema"
)

// opaqueExpr is a filter shape the classifier does not recognise.
type opaqueExpr struct{}

func (opaqueExpr) expr()          {}
func (opaqueExpr) String() string { return "opaque()" }

func TestIsIndexEligible(t *testing.T) {
	tests := []struct {
		name     string
		expr     Expr
		wantAttr string
		wantOK   bool
	}{
		{"two attributes", And(Eq("age", int64(5)), Eq("name", "x")), "", false},
		{"or on one attribute", Or(Lt("age", int64(10)), Gt("age", int64(90))), "age", true},
		{"single compare", Le("age", int64(3)), "age", true},
		{"in-set", In("city", "a", "b"), "city", true},
		{"null tests", Or(IsNull("x"), And(IsNotNull("x"), Ge("x", int64(1)))), "x", true},
		{"not", Not(Eq("age", int64(1))), "", false},
		{"not inside and", And(Lt("age", int64(1)), Not(Gt("age", int64(0)))), "", false},
		{"unknown shape", opaqueExpr{}, "", false},
		{"unknown shape inside or", Or(Eq("a", int64(1)), opaqueExpr{}), "", false},
		{"deep mismatch", Or(And(Eq("a", int64(1)), Lt("a", int64(3))), Or(Eq("a", int64(2)), IsNull("b"))), "", false},
		{"empty attribute", Eq("", int64(1)), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attr, ok := IsIndexEligible(tt.expr)
			if ok != tt.wantOK || attr != tt.wantAttr {
				t.Errorf("IsIndexEligible(%s) = (%q, %v), want (%q, %v)", tt.expr, attr, ok, tt.wantAttr, tt.wantOK)
			}
		})
	}
}

// forEachTree calls fn with every AND/OR/NOT tree of at most depth levels
// over leaves. Trees of depth-1 are materialised; the last level is
// streamed.
func forEachTree(leaves []Expr, depth int, fn func(Expr)) {
	level := slices.Clone(leaves)
	for d := 2; d < depth; d++ {
		next := slices.Clone(leaves)
		for _, l := range level {
			next = append(next, Not(l))
			for _, r := range level {
				next = append(next, &AndExpr{Terms: []Expr{l, r}}, &OrExpr{Terms: []Expr{l, r}})
			}
		}
		level = next
	}
	if depth <= 1 {
		for _, l := range level {
			fn(l)
		}
		return
	}
	for _, l := range leaves {
		fn(l)
	}
	for _, l := range level {
		fn(Not(l))
		for _, r := range level {
			fn(&AndExpr{Terms: []Expr{l, r}})
			fn(&OrExpr{Terms: []Expr{l, r}})
		}
	}
}

func containsNot(e Expr) bool {
	switch n := e.(type) {
	case *NotExpr:
		return true
	case *AndExpr:
		return slices.ContainsFunc(n.Terms, containsNot)
	case *OrExpr:
		return slices.ContainsFunc(n.Terms, containsNot)
	}
	return false
}

func TestSingleAttributeInvariantExhaustive(t *testing.T) {
	cases := []struct {
		leaves []Expr
		depth  int
	}{
		{[]Expr{Lt("a", int64(1)), IsNotNull("b")}, 4},
		{[]Expr{Eq("a", int64(1)), IsNull("b"), In("c", int64(2))}, 3},
		{[]Expr{Gt("a", int64(1)), Le("b", int64(0)), IsNotNull("c")}, 4},
	}
	for _, c := range cases {
		depth := c.depth
		if testing.Short() && len(c.leaves) > 2 {
			depth = min(depth, 3)
		}
		var checked, eligible int
		forEachTree(c.leaves, depth, func(e Expr) {
			checked++
			attr, ok := IsIndexEligible(e)
			attrs := Attributes(e)
			want := !containsNot(e) && len(attrs) == 1
			if ok != want {
				t.Fatalf("IsIndexEligible(%s) = %v, want %v", e, ok, want)
			}
			if ok {
				eligible++
				if attr != attrs[0] {
					t.Fatalf("IsIndexEligible(%s) bound %q, want %q", e, attr, attrs[0])
				}
			}
		})
		if eligible == 0 || eligible == checked {
			t.Errorf("degenerate generation: %d of %d eligible", eligible, checked)
		}
	}
}

func TestPartition(t *testing.T) {
	s := schema.MustNew(
		schema.Field{Name: "age", Type: schema.TypeInt64},
		schema.Field{Name: "name", Type: schema.TypeString},
	)
	filters := []Expr{
		Lt("age", int64(10)),
		And(Eq("age", int64(5)), Eq("name", "x")),
		Eq("ghost", int64(1)),
		Or(Eq("name", "a"), IsNull("name")),
	}
	eligible, rest := Partition(filters, s)
	if len(eligible) != 2 || eligible[0] != filters[0] || eligible[1] != filters[3] {
		t.Errorf("eligible = %v", eligible)
	}
	if len(rest) != 2 || rest[0] != filters[1] || rest[1] != filters[2] {
		t.Errorf("rest = %v", rest)
	}
}

func TestSplitAndAttributes(t *testing.T) {
	e := And(Lt("a", int64(1)), And(Eq("b", "x"), Or(Eq("a", int64(2)), IsNull("c"))))
	parts := Split(e)
	if len(parts) != 3 {
		t.Fatalf("Split returned %d parts, want 3", len(parts))
	}
	if got := Attributes(e); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("Attributes = %v", got)
	}
	if Split(nil) != nil {
		t.Error("Split(nil) should be nil")
	}
}
