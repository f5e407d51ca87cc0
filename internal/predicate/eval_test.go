package predicate

import "testing"

func TestMatches(t *testing.T) {
	row := Row{"age": int64(30), "name": "bob", "score": 2.5, "blob": []byte("abc")}
	tests := []struct {
		expr Expr
		want bool
	}{
		{Eq("age", int64(30)), true},
		{Lt("age", 30.5), true},
		{Ge("score", int64(3)), false},
		{In("name", "amy", "bob"), true},
		{IsNull("nick"), true},
		{IsNotNull("nick"), false},
		{Eq("nick", "x"), false},
		{Not(Eq("nick", "x")), false}, // NOT unknown is unknown
		{Or(Eq("nick", "x"), Eq("age", int64(30))), true},
		{And(Eq("nick", "x"), Eq("age", int64(30))), false},
		{Not(And(Eq("age", int64(1)), Eq("nick", "x"))), true}, // false AND unknown is false
		{Eq("age", "thirty"), false},
		{Eq("blob", "abc"), true},
		{Gt("blob", "abb"), true},
		{In("blob", "x", "abc"), true},
		{Eq("blob", []byte("abd")), false},
		{opaqueExpr{}, false},
	}
	for _, tt := range tests {
		if got := Matches(tt.expr, row); got != tt.want {
			t.Errorf("Matches(%s) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestMatchesParsedBinary(t *testing.T) {
	row := Row{"blob": []byte("abc")}
	tests := []struct {
		input string
		want  bool
	}{
		{`blob == "abc"`, true},
		{`blob != "abc"`, false},
		{`blob in ["x", "abc"]`, true},
		{`blob < "abd"`, true},
		{`"abc" <= blob`, true},
	}
	for _, tt := range tests {
		e, err := Parse(tt.input)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.input, err)
		}
		if got := Matches(e, row); got != tt.want {
			t.Errorf("%s on blob=%q: got %v, want %v", tt.input, row["blob"], got, tt.want)
		}
	}
}

func TestShape(t *testing.T) {
	tests := []struct {
		expr Expr
		want ShapeKind
	}{
		{Eq("a", int64(1)), ShapePoint},
		{In("a", int64(1), int64(2)), ShapePoint},
		{Lt("a", int64(1)), ShapeOpenRange},
		{And(Gt("a", int64(1)), Lt("a", int64(9))), ShapeClosedRange},
		{And(Gt("a", int64(1)), Ge("a", int64(2))), ShapeOpenRange},
		{And(Eq("a", int64(1)), Lt("a", int64(9))), ShapePoint},
		{Or(Eq("a", int64(1)), Lt("a", int64(0))), ShapeOpenRange},
		{Or(Eq("a", int64(1)), Eq("a", int64(2))), ShapePoint},
		{IsNull("a"), ShapeNullTest},
		{Or(IsNull("a"), Eq("a", int64(1))), ShapeNullTest},
		{Not(Eq("a", int64(1))), ShapeOther},
	}
	for _, tt := range tests {
		if got := Shape(tt.expr); got != tt.want {
			t.Errorf("Shape(%s) = %s, want %s", tt.expr, got, tt.want)
		}
	}
}
