package predicate

import "github.com/TigerSong/OAP/internal/schema"

// Row gives attribute values for one record. A missing or nil value is
// null.
type Row map[string]any

// truth is SQL three-valued logic: a comparison with null is unknown.
type truth uint8

const (
	unknown truth = iota
	isFalse
	isTrue
)

func boolTruth(b bool) truth {
	if b {
		return isTrue
	}
	return isFalse
}

// Matches reports whether row satisfies e. Comparisons with null, or
// between values of unrelated kinds, are unknown, and a row matches only
// when the filter is definitely true.
func Matches(e Expr, row Row) bool {
	return eval(e, row) == isTrue
}

func eval(e Expr, row Row) truth {
	switch n := e.(type) {
	case *AndExpr:
		out := isTrue
		for _, t := range n.Terms {
			switch eval(t, row) {
			case isFalse:
				return isFalse
			case unknown:
				out = unknown
			}
		}
		return out
	case *OrExpr:
		out := isFalse
		for _, t := range n.Terms {
			switch eval(t, row) {
			case isTrue:
				return isTrue
			case unknown:
				out = unknown
			}
		}
		return out
	case *NotExpr:
		switch eval(n.Term, row) {
		case isTrue:
			return isFalse
		case isFalse:
			return isTrue
		}
		return unknown
	case *IsNullExpr:
		return boolTruth(row[n.Attr] == nil)
	case *IsNotNullExpr:
		return boolTruth(row[n.Attr] != nil)
	case *CompareExpr:
		v := row[n.Attr]
		if v == nil {
			return unknown
		}
		c, err := schema.Compare(v, n.Value)
		if err != nil {
			return unknown
		}
		switch n.Op {
		case OpEq:
			return boolTruth(c == 0)
		case OpLt:
			return boolTruth(c < 0)
		case OpLe:
			return boolTruth(c <= 0)
		case OpGt:
			return boolTruth(c > 0)
		case OpGe:
			return boolTruth(c >= 0)
		}
		return unknown
	case *InExpr:
		v := row[n.Attr]
		if v == nil {
			return unknown
		}
		out := isFalse
		for _, want := range n.Values {
			c, err := schema.Compare(v, want)
			if err != nil {
				out = unknown
				continue
			}
			if c == 0 {
				return isTrue
			}
		}
		return out
	}
	return unknown
}
