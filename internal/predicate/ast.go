// Package predicate provides the filter tree consumed by the scan core and
// the two classifications made over it: whether a filter can be answered
// by a single-attribute index, and whether column statistics prove that a
// file holds no matching row.
//
// This package is pure. It MUST NOT:
//   - Open files or indexes
//   - Log
//   - Know about the handle cache or metrics
package predicate

import (
	"fmt"
	"strings"
)

// Expr is the interface for all filter nodes.
// The marker method prevents external types from implementing Expr.
type Expr interface {
	expr()
	// String returns a human-readable representation of the expression.
	String() string
}

// AndExpr represents logical AND of multiple expressions.
// Invariant: len(Terms) >= 2
type AndExpr struct {
	Terms []Expr
}

func (AndExpr) expr() {}

func (a *AndExpr) String() string {
	return joinTerms(a.Terms, " AND ")
}

// OrExpr represents logical OR of multiple expressions.
// Invariant: len(Terms) >= 2
type OrExpr struct {
	Terms []Expr
}

func (OrExpr) expr() {}

func (o *OrExpr) String() string {
	return joinTerms(o.Terms, " OR ")
}

// NotExpr represents logical negation.
type NotExpr struct {
	Term Expr
}

func (NotExpr) expr() {}

func (n *NotExpr) String() string {
	return "NOT " + n.Term.String()
}

// CompareOp is a comparison operator.
type CompareOp int

const (
	OpEq CompareOp = iota // =
	OpLt                  // <
	OpLe                  // <=
	OpGt                  // >
	OpGe                  // >=
)

func (op CompareOp) String() string {
	switch op {
	case OpEq:
		return "="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	default:
		return fmt.Sprintf("op(%d)", int(op))
	}
}

// flip returns the operator with its operands swapped: v < a is a > v.
func (op CompareOp) flip() CompareOp {
	switch op {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	}
	return op
}

// CompareExpr compares an attribute to a literal: Attr Op Value.
type CompareExpr struct {
	Op    CompareOp
	Attr  string
	Value any
}

func (CompareExpr) expr() {}

func (c *CompareExpr) String() string {
	return c.Attr + " " + c.Op.String() + " " + literalString(c.Value)
}

// InExpr matches when the attribute equals any of Values.
type InExpr struct {
	Attr   string
	Values []any
}

func (InExpr) expr() {}

func (in *InExpr) String() string {
	parts := make([]string, len(in.Values))
	for i, v := range in.Values {
		parts[i] = literalString(v)
	}
	return in.Attr + " IN [" + strings.Join(parts, ", ") + "]"
}

// IsNullExpr matches rows where the attribute is null.
type IsNullExpr struct {
	Attr string
}

func (IsNullExpr) expr() {}

func (n *IsNullExpr) String() string { return n.Attr + " IS NULL" }

// IsNotNullExpr matches rows where the attribute is not null.
type IsNotNullExpr struct {
	Attr string
}

func (IsNotNullExpr) expr() {}

func (n *IsNotNullExpr) String() string { return n.Attr + " IS NOT NULL" }

// Constructors.

func Eq(attr string, v any) Expr { return &CompareExpr{Op: OpEq, Attr: attr, Value: v} }
func Lt(attr string, v any) Expr { return &CompareExpr{Op: OpLt, Attr: attr, Value: v} }
func Le(attr string, v any) Expr { return &CompareExpr{Op: OpLe, Attr: attr, Value: v} }
func Gt(attr string, v any) Expr { return &CompareExpr{Op: OpGt, Attr: attr, Value: v} }
func Ge(attr string, v any) Expr { return &CompareExpr{Op: OpGe, Attr: attr, Value: v} }

func In(attr string, vs ...any) Expr { return &InExpr{Attr: attr, Values: vs} }
func IsNull(attr string) Expr        { return &IsNullExpr{Attr: attr} }
func IsNotNull(attr string) Expr     { return &IsNotNullExpr{Attr: attr} }
func Not(e Expr) Expr                { return &NotExpr{Term: e} }

// And combines expressions into an AndExpr, flattening nested AndExprs.
// A single expression is returned unchanged; none yields nil.
func And(exprs ...Expr) Expr {
	if len(exprs) == 0 {
		return nil
	}
	if len(exprs) == 1 {
		return exprs[0]
	}
	var terms []Expr
	for _, e := range exprs {
		if a, ok := e.(*AndExpr); ok {
			terms = append(terms, a.Terms...)
		} else {
			terms = append(terms, e)
		}
	}
	return &AndExpr{Terms: terms}
}

// Or combines expressions into an OrExpr, flattening nested OrExprs.
func Or(exprs ...Expr) Expr {
	if len(exprs) == 0 {
		return nil
	}
	if len(exprs) == 1 {
		return exprs[0]
	}
	var terms []Expr
	for _, e := range exprs {
		if o, ok := e.(*OrExpr); ok {
			terms = append(terms, o.Terms...)
		} else {
			terms = append(terms, e)
		}
	}
	return &OrExpr{Terms: terms}
}

// Split returns the top-level conjuncts of e. A non-AND expression is
// its own single conjunct.
func Split(e Expr) []Expr {
	if e == nil {
		return nil
	}
	if a, ok := e.(*AndExpr); ok {
		var out []Expr
		for _, t := range a.Terms {
			out = append(out, Split(t)...)
		}
		return out
	}
	return []Expr{e}
}

// Attributes returns the distinct attributes referenced by e, in first
// occurrence order.
func Attributes(e Expr) []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(Expr)
	walk = func(e Expr) {
		var attr string
		switch n := e.(type) {
		case *AndExpr:
			for _, t := range n.Terms {
				walk(t)
			}
			return
		case *OrExpr:
			for _, t := range n.Terms {
				walk(t)
			}
			return
		case *NotExpr:
			walk(n.Term)
			return
		case *CompareExpr:
			attr = n.Attr
		case *InExpr:
			attr = n.Attr
		case *IsNullExpr:
			attr = n.Attr
		case *IsNotNullExpr:
			attr = n.Attr
		default:
			return
		}
		if !seen[attr] {
			seen[attr] = true
			out = append(out, attr)
		}
	}
	walk(e)
	return out
}

func joinTerms(terms []Expr, sep string) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func literalString(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return fmt.Sprintf("%q", x)
	case []byte:
		return fmt.Sprintf("%q", x)
	default:
		return fmt.Sprint(x)
	}
}
