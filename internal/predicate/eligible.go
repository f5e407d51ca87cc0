package predicate

import "github.com/TigerSong/OAP/internal/schema"

// IsIndexEligible reports whether every atom of e refers to one and the
// same attribute, combined only through AND and OR. It returns that
// bound attribute. NOT and any shape other than the comparison, in-set
// and null-test atoms make the filter ineligible.
func IsIndexEligible(e Expr) (string, bool) {
	var bound string
	if !bindAttr(e, &bound) {
		return "", false
	}
	return bound, true
}

// bindAttr walks e with a bound-attribute accumulator and stops at the
// first mismatch.
func bindAttr(e Expr, bound *string) bool {
	switch n := e.(type) {
	case *AndExpr:
		return bindAll(n.Terms, bound)
	case *OrExpr:
		return bindAll(n.Terms, bound)
	case *CompareExpr:
		return bind(bound, n.Attr)
	case *InExpr:
		return bind(bound, n.Attr)
	case *IsNullExpr:
		return bind(bound, n.Attr)
	case *IsNotNullExpr:
		return bind(bound, n.Attr)
	default:
		return false
	}
}

func bindAll(terms []Expr, bound *string) bool {
	if len(terms) == 0 {
		return false
	}
	for _, t := range terms {
		if !bindAttr(t, bound) {
			return false
		}
	}
	return true
}

func bind(bound *string, attr string) bool {
	if attr == "" {
		return false
	}
	if *bound == "" {
		*bound = attr
		return true
	}
	return *bound == attr
}

// Partition splits top-level filters into those a single-attribute index
// may answer and the rest. A filter whose bound attribute is not in s is
// not eligible.
func Partition(filters []Expr, s schema.Schema) (eligible, rest []Expr) {
	for _, f := range filters {
		attr, ok := IsIndexEligible(f)
		if ok {
			_, _, ok = s.Lookup(attr)
		}
		if ok {
			eligible = append(eligible, f)
		} else {
			rest = append(rest, f)
		}
	}
	return eligible, rest
}
