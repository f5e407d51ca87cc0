package predicate

import (
	"errors"
	"strings"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/file"
	"github.com/expr-lang/expr/parser"
)

// Parse parses a filter written in expr-lang syntax:
//
//	age < 10 && name == "x"
//	age in [1, 2, 3]
//	not (score >= 0.5) || city == nil
//
// Identifiers are attributes. Comparisons with the literal on the left
// are flipped, != becomes NOT (=), and == nil / != nil become null tests.
func Parse(input string) (Expr, error) {
	if strings.TrimSpace(input) == "" {
		return nil, newParseError(0, ErrEmptyFilter, "empty filter")
	}
	tree, err := parser.Parse(input)
	if err != nil {
		var fe *file.Error
		if errors.As(err, &fe) {
			return nil, newParseError(fe.Column+1, ErrSyntax, "%s", fe.Message)
		}
		return nil, newParseError(0, ErrSyntax, "%v", err)
	}
	return convert(tree.Node)
}

// ParseAll parses each input and returns the filters in order.
func ParseAll(inputs []string) ([]Expr, error) {
	out := make([]Expr, 0, len(inputs))
	for _, in := range inputs {
		e, err := Parse(in)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func convert(node ast.Node) (Expr, error) {
	switch n := node.(type) {
	case *ast.BinaryNode:
		switch n.Operator {
		case "&&", "and":
			return convertPair(n, And)
		case "||", "or":
			return convertPair(n, Or)
		case "==", "!=", "<", "<=", ">", ">=":
			return convertCompare(n)
		case "in":
			return convertIn(n)
		}
		return nil, newParseError(0, ErrUnsupported, "operator %q", n.Operator)
	case *ast.UnaryNode:
		if n.Operator == "not" || n.Operator == "!" {
			inner, err := convert(n.Node)
			if err != nil {
				return nil, err
			}
			return Not(inner), nil
		}
		return nil, newParseError(0, ErrUnsupported, "unary operator %q", n.Operator)
	}
	return nil, newParseError(0, ErrUnsupported, "%T is not a filter", node)
}

func convertPair(n *ast.BinaryNode, combine func(...Expr) Expr) (Expr, error) {
	l, err := convert(n.Left)
	if err != nil {
		return nil, err
	}
	r, err := convert(n.Right)
	if err != nil {
		return nil, err
	}
	return combine(l, r), nil
}

var compareOps = map[string]CompareOp{
	"==": OpEq,
	"<":  OpLt,
	"<=": OpLe,
	">":  OpGt,
	">=": OpGe,
}

func convertCompare(n *ast.BinaryNode) (Expr, error) {
	attr, litNode, flipped := n.Left, n.Right, false
	if _, ok := attr.(*ast.IdentifierNode); !ok {
		attr, litNode, flipped = n.Right, n.Left, true
	}
	id, ok := attr.(*ast.IdentifierNode)
	if !ok {
		return nil, newParseError(0, ErrUnsupported, "comparison %q needs an attribute operand", n.Operator)
	}
	v, isNil, err := literal(litNode)
	if err != nil {
		return nil, err
	}

	if isNil {
		switch n.Operator {
		case "==":
			return IsNull(id.Value), nil
		case "!=":
			return IsNotNull(id.Value), nil
		}
		return nil, newParseError(0, ErrUnsupported, "nil with %q", n.Operator)
	}
	if n.Operator == "!=" {
		return Not(Eq(id.Value, v)), nil
	}
	op := compareOps[n.Operator]
	if flipped {
		op = op.flip()
	}
	return &CompareExpr{Op: op, Attr: id.Value, Value: v}, nil
}

func convertIn(n *ast.BinaryNode) (Expr, error) {
	id, ok := n.Left.(*ast.IdentifierNode)
	if !ok {
		return nil, newParseError(0, ErrUnsupported, "in needs an attribute on the left")
	}
	arr, ok := n.Right.(*ast.ArrayNode)
	if !ok {
		return nil, newParseError(0, ErrUnsupported, "in needs an array literal on the right")
	}
	values := make([]any, 0, len(arr.Nodes))
	for _, el := range arr.Nodes {
		v, isNil, err := literal(el)
		if err != nil {
			return nil, err
		}
		if isNil {
			return nil, newParseError(0, ErrUnsupported, "nil inside in-list")
		}
		values = append(values, v)
	}
	return In(id.Value, values...), nil
}

// literal returns the canonical value of a literal node.
func literal(node ast.Node) (v any, isNil bool, err error) {
	switch n := node.(type) {
	case *ast.IntegerNode:
		return int64(n.Value), false, nil
	case *ast.FloatNode:
		return n.Value, false, nil
	case *ast.StringNode:
		return n.Value, false, nil
	case *ast.BoolNode:
		return n.Value, false, nil
	case *ast.NilNode:
		return nil, true, nil
	case *ast.UnaryNode:
		if n.Operator == "-" {
			switch inner := n.Node.(type) {
			case *ast.IntegerNode:
				return -int64(inner.Value), false, nil
			case *ast.FloatNode:
				return -inner.Value, false, nil
			}
		}
	}
	return nil, false, newParseError(0, ErrUnsupported, "%T is not a literal", node)
}
