package predicate

// ShapeKind is a selectivity proxy for an index-eligible filter. Lower
// values are expected to select fewer rows.
type ShapeKind int

const (
	ShapePoint       ShapeKind = iota // equality or in-set
	ShapeClosedRange                  // bounded on both sides
	ShapeOpenRange                    // bounded on one side
	ShapeNullTest                     // is null / is not null
	ShapeOther                        // not usable by an index
)

func (s ShapeKind) String() string {
	switch s {
	case ShapePoint:
		return "point"
	case ShapeClosedRange:
		return "closed-range"
	case ShapeOpenRange:
		return "open-range"
	case ShapeNullTest:
		return "null-test"
	default:
		return "other"
	}
}

// Shape classifies e. AND narrows to its most selective term, and an AND
// bounding the attribute from below and above is a closed range. OR
// widens to its least selective term.
func Shape(e Expr) ShapeKind {
	switch n := e.(type) {
	case *CompareExpr:
		if n.Op == OpEq {
			return ShapePoint
		}
		return ShapeOpenRange
	case *InExpr:
		return ShapePoint
	case *IsNullExpr, *IsNotNullExpr:
		return ShapeNullTest
	case *AndExpr:
		best := ShapeOther
		var lower, upper bool
		for _, t := range n.Terms {
			best = min(best, Shape(t))
			if c, ok := t.(*CompareExpr); ok {
				switch c.Op {
				case OpGt, OpGe:
					lower = true
				case OpLt, OpLe:
					upper = true
				}
			}
		}
		if lower && upper {
			best = min(best, ShapeClosedRange)
		}
		return best
	case *OrExpr:
		worst := ShapePoint
		for _, t := range n.Terms {
			worst = max(worst, Shape(t))
		}
		return worst
	}
	return ShapeOther
}
