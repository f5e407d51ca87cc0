package schema

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	s, err := Parse("age:int64, name:string,score:double")
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Len())
	}
	i, f, ok := s.Lookup("score")
	if !ok || i != 2 || f.Type != TypeFloat64 {
		t.Errorf("Lookup(score) = %d, %v, %v", i, f, ok)
	}
	if _, _, ok := s.Lookup("missing"); ok {
		t.Error("Lookup(missing) should fail")
	}
	if got, want := s.String(), "age:int64,name:string,score:float64"; got != want {
		t.Errorf("String = %q, want %q", got, want)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"age:int64,age:string", ErrDuplicateField},
		{"age:decimal", ErrUnknownType},
		{":int64", ErrEmptyField},
	}
	for _, tt := range tests {
		_, err := Parse(tt.in)
		if !errors.Is(err, tt.want) {
			t.Errorf("Parse(%q) error = %v, want %v", tt.in, err, tt.want)
		}
	}
	if _, err := Parse("age"); err == nil {
		t.Error("Parse without type should fail")
	}
}

func TestFingerprint(t *testing.T) {
	a := MustNew(Field{"age", TypeInt64}, Field{"name", TypeString})
	b, _ := Parse("age:long,name:utf8")
	c := MustNew(Field{"name", TypeString}, Field{"age", TypeInt64})
	d := MustNew(Field{"age", TypeInt32}, Field{"name", TypeString})

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("equal schemas must share a fingerprint")
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("column order must change the fingerprint")
	}
	if a.Fingerprint() == d.Fingerprint() {
		t.Error("column type must change the fingerprint")
	}
}

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		typ  Type
		in   any
		want any
		size int
	}{
		{TypeBool, true, true, 1},
		{TypeInt32, int64(-7), int64(-7), 4},
		{TypeInt64, int64(1) << 40, int64(1) << 40, 8},
		{TypeFloat32, 1.5, 1.5, 4},
		{TypeFloat64, int64(3), 3.0, 8},
		{TypeString, "abc", "abc", 3},
	}
	for _, tt := range tests {
		b, err := Encode(tt.typ, tt.in)
		if err != nil {
			t.Fatalf("Encode(%s, %v): %v", tt.typ, tt.in, err)
		}
		if len(b) != tt.size {
			t.Errorf("Encode(%s) len = %d, want %d", tt.typ, len(b), tt.size)
		}
		got, err := Decode(tt.typ, b)
		if err != nil {
			t.Fatalf("Decode(%s): %v", tt.typ, err)
		}
		if got != tt.want {
			t.Errorf("Decode(%s) = %v (%T), want %v (%T)", tt.typ, got, got, tt.want, tt.want)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := Decode(TypeInt64, []byte{1, 2, 3}); !errors.Is(err, ErrBadLength) {
		t.Errorf("short int64: %v", err)
	}
	nan := binary.LittleEndian.AppendUint64(nil, math.Float64bits(math.NaN()))
	if _, err := Decode(TypeFloat64, nan); !errors.Is(err, ErrNaN) {
		t.Error("NaN should not decode")
	}
}

func TestEncodeOutOfRange(t *testing.T) {
	if _, err := Encode(TypeInt32, int64(math.MaxInt32)+1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("got %v, want ErrOutOfRange", err)
	}
	if _, err := Encode(TypeString, 5); !errors.Is(err, ErrIncompatible) {
		t.Errorf("got %v, want ErrIncompatible", err)
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b any
		want int
	}{
		{int64(1), int64(2), -1},
		{int64(2), 2.0, 0},
		{int64(2), 2.5, -1},
		{int64(3), 2.5, 1},
		{-2.5, int64(-2), -1},
		{int64(math.MaxInt64), 9.3e18, -1},
		{int64(math.MinInt64), -9.3e18, 1},
		{"a", "b", -1},
		{[]byte("b"), []byte("a"), 1},
		{"abc", []byte("abd"), -1},
		{[]byte("abc"), "abc", 0},
		{false, true, -1},
		{true, true, 0},
	}
	for _, tt := range tests {
		got, err := Compare(tt.a, tt.b)
		if err != nil {
			t.Fatalf("Compare(%v, %v): %v", tt.a, tt.b, err)
		}
		if got != tt.want {
			t.Errorf("Compare(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
	if _, err := Compare("a", int64(1)); !errors.Is(err, ErrIncomparable) {
		t.Errorf("string vs int: %v", err)
	}
	if _, err := Compare(math.NaN(), 1.0); !errors.Is(err, ErrNaN) {
		t.Errorf("NaN: %v", err)
	}
}

func TestCoerce(t *testing.T) {
	if v, err := Coerce(TypeInt64, 5); err != nil || v != int64(5) {
		t.Errorf("Coerce(int64, 5) = %v, %v", v, err)
	}
	if v, err := Coerce(TypeInt32, 2.5); err != nil || v != 2.5 {
		t.Errorf("Coerce(int32, 2.5) = %v, %v", v, err)
	}
	if _, err := Coerce(TypeInt64, "5"); !errors.Is(err, ErrIncompatible) {
		t.Errorf("Coerce(int64, \"5\") error = %v", err)
	}
	if v, err := Coerce(TypeBinary, "ab"); err != nil || string(v.([]byte)) != "ab" {
		t.Errorf("Coerce(binary, \"ab\") = %v, %v", v, err)
	}
	if _, err := Coerce(TypeBool, int64(1)); err == nil {
		t.Error("Coerce(bool, 1) should fail")
	}
}
