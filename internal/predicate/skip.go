package predicate

import (
	"errors"

	"github.com/TigerSong/OAP/internal/schema"
	"github.com/TigerSong/OAP/internal/stats"
)

// CanSkipFile reports whether e is provably false for every row of a
// file, given only its column statistics. It never skips a file that
// could hold a matching row: absent bounds, malformed statistics, unknown
// attributes and mistyped literals all resolve to "not skippable" for
// the branch they affect.
//
// The returned error is not a failure. It joins the problems met along
// the way (as *AttrError) so callers can report them; the bool is valid
// regardless.
func CanSkipFile(set stats.Set, e Expr, s schema.Schema) (bool, error) {
	k := skipper{stats: set, schema: s}
	skip := k.skip(e)
	return skip, errors.Join(k.problems...)
}

// CanSkipWithFilters applies CanSkipFile to each top-level filter. The
// filters are implicitly ANDed, so one provably false filter is enough.
func CanSkipWithFilters(set stats.Set, filters []Expr, s schema.Schema) (bool, error) {
	var problems []error
	for _, f := range filters {
		skip, err := CanSkipFile(set, f, s)
		if err != nil {
			problems = append(problems, err)
		}
		if skip {
			return true, errors.Join(problems...)
		}
	}
	return false, errors.Join(problems...)
}

type skipper struct {
	stats    stats.Set
	schema   schema.Schema
	problems []error
}

func (k *skipper) skip(e Expr) bool {
	switch n := e.(type) {
	case *AndExpr:
		// AND fails if any term fails.
		for _, t := range n.Terms {
			if k.skip(t) {
				return true
			}
		}
		return false
	case *OrExpr:
		// OR fails only if every term fails.
		if len(n.Terms) == 0 {
			return false
		}
		for _, t := range n.Terms {
			if !k.skip(t) {
				return false
			}
		}
		return true
	case *IsNotNullExpr:
		col, _, ok := k.column(n.Attr)
		return ok && !col.HasNonNull
	case *CompareExpr:
		return k.skipCompare(n.Attr, n.Op, n.Value)
	case *InExpr:
		if len(n.Values) == 0 {
			return false
		}
		for _, v := range n.Values {
			if !k.skipCompare(n.Attr, OpEq, v) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (k *skipper) skipCompare(attr string, op CompareOp, value any) bool {
	col, typ, ok := k.column(attr)
	if !ok {
		return false
	}
	v, err := schema.Coerce(typ, value)
	if err != nil {
		k.problem(attr, errors.Join(ErrLiteralType, err))
		return false
	}
	b, err := col.Decode(typ)
	if err != nil {
		k.problem(attr, err)
		return false
	}

	// cmp orders a bound against v. An error leaves that side unproven.
	cmp := func(bound any) (int, bool) {
		c, err := schema.Compare(bound, v)
		if err != nil {
			k.problem(attr, err)
			return 0, false
		}
		return c, true
	}

	switch op {
	case OpEq:
		if b.HasMin {
			if c, ok := cmp(b.Min); ok && c > 0 {
				return true
			}
		}
		if b.HasMax {
			if c, ok := cmp(b.Max); ok && c < 0 {
				return true
			}
		}
		return false
	case OpLt:
		if !b.HasMin {
			return false
		}
		c, ok := cmp(b.Min)
		return ok && c >= 0
	case OpLe:
		if !b.HasMin {
			return false
		}
		c, ok := cmp(b.Min)
		return ok && c > 0
	case OpGt:
		if !b.HasMax {
			return false
		}
		c, ok := cmp(b.Max)
		return ok && c <= 0
	case OpGe:
		if !b.HasMax {
			return false
		}
		c, ok := cmp(b.Max)
		return ok && c < 0
	}
	return false
}

// column resolves attr against the schema and returns its statistics.
func (k *skipper) column(attr string) (stats.Column, schema.Type, bool) {
	i, f, ok := k.schema.Lookup(attr)
	if !ok {
		k.problem(attr, ErrUnknownAttribute)
		return stats.Column{}, schema.TypeInvalid, false
	}
	return k.stats.Column(i), f.Type, true
}

func (k *skipper) problem(attr string, err error) {
	k.problems = append(k.problems, &AttrError{Attr: attr, Err: err})
}
