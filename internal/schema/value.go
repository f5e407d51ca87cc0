package schema

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Canonical Go values per type:
//
//	bool           -> bool
//	int32, int64   -> int64
//	float32,64     -> float64
//	string         -> string
//	binary         -> []byte
//
// Statistics bytes use the plain little-endian encoding of the declared
// type, which is also Parquet's PLAIN encoding for min/max statistics.

var (
	ErrBadLength    = errors.New("encoded value has wrong length")
	ErrNaN          = errors.New("NaN is not ordered")
	ErrIncompatible = errors.New("value not compatible with column type")
	ErrIncomparable = errors.New("values are not comparable")
	ErrOutOfRange   = errors.New("value out of range for column type")
)

// Decode decodes plain-encoded bytes of type t into its canonical value.
func Decode(t Type, b []byte) (any, error) {
	switch t {
	case TypeBool:
		if len(b) != 1 {
			return nil, fmt.Errorf("%s: %w (%d)", t, ErrBadLength, len(b))
		}
		return b[0] != 0, nil
	case TypeInt32:
		if len(b) != 4 {
			return nil, fmt.Errorf("%s: %w (%d)", t, ErrBadLength, len(b))
		}
		return int64(int32(binary.LittleEndian.Uint32(b))), nil
	case TypeInt64:
		if len(b) != 8 {
			return nil, fmt.Errorf("%s: %w (%d)", t, ErrBadLength, len(b))
		}
		return int64(binary.LittleEndian.Uint64(b)), nil
	case TypeFloat32:
		if len(b) != 4 {
			return nil, fmt.Errorf("%s: %w (%d)", t, ErrBadLength, len(b))
		}
		f := float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		if math.IsNaN(f) {
			return nil, fmt.Errorf("%s: %w", t, ErrNaN)
		}
		return f, nil
	case TypeFloat64:
		if len(b) != 8 {
			return nil, fmt.Errorf("%s: %w (%d)", t, ErrBadLength, len(b))
		}
		f := math.Float64frombits(binary.LittleEndian.Uint64(b))
		if math.IsNaN(f) {
			return nil, fmt.Errorf("%s: %w", t, ErrNaN)
		}
		return f, nil
	case TypeString:
		return string(b), nil
	case TypeBinary:
		return bytes.Clone(b), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
}

// Encode plain-encodes v as type t. v must already be coercible to t.
func Encode(t Type, v any) ([]byte, error) {
	c, err := Coerce(t, v)
	if err != nil {
		return nil, err
	}
	switch t {
	case TypeBool:
		if c.(bool) {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case TypeInt32:
		i, ok := c.(int64)
		if !ok || i < math.MinInt32 || i > math.MaxInt32 {
			return nil, fmt.Errorf("%s: %w: %v", t, ErrOutOfRange, v)
		}
		return binary.LittleEndian.AppendUint32(nil, uint32(int32(i))), nil
	case TypeInt64:
		i, ok := c.(int64)
		if !ok {
			return nil, fmt.Errorf("%s: %w: %v", t, ErrIncompatible, v)
		}
		return binary.LittleEndian.AppendUint64(nil, uint64(i)), nil
	case TypeFloat32:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(toFloat(c)))), nil
	case TypeFloat64:
		return binary.LittleEndian.AppendUint64(nil, math.Float64bits(toFloat(c))), nil
	case TypeString:
		return []byte(c.(string)), nil
	case TypeBinary:
		return bytes.Clone(c.([]byte)), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
}

// MustEncode is Encode that panics on error.
func MustEncode(t Type, v any) []byte {
	b, err := Encode(t, v)
	if err != nil {
		panic(err)
	}
	return b
}

// Coerce converts a literal to a canonical value comparable with column
// values of type t. Numeric columns accept both integer and float
// literals; the value keeps its own numeric kind and Compare handles the
// mix exactly.
func Coerce(t Type, v any) (any, error) {
	switch t {
	case TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case TypeInt32, TypeInt64, TypeFloat32, TypeFloat64:
		n, ok := numeric(v)
		if !ok {
			break
		}
		if f, isFloat := n.(float64); isFloat && math.IsNaN(f) {
			return nil, ErrNaN
		}
		return n, nil
	case TypeString:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
	case TypeBinary:
		switch s := v.(type) {
		case []byte:
			return s, nil
		case string:
			return []byte(s), nil
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
	return nil, fmt.Errorf("%w: %T for %s", ErrIncompatible, v, t)
}

// Compare orders two canonical values. Strings and byte slices compare
// byte-wise with each other, as Coerce converts between them. It returns an
// error for values of unrelated kinds and for NaN.
func Compare(a, b any) (int, error) {
	if an, ok := numeric(a); ok {
		bn, ok := numeric(b)
		if !ok {
			return 0, fmt.Errorf("%w: %T and %T", ErrIncomparable, a, b)
		}
		return compareNumeric(an, bn)
	}
	switch av := a.(type) {
	case string:
		switch bv := b.(type) {
		case string:
			return strings.Compare(av, bv), nil
		case []byte:
			return bytes.Compare([]byte(av), bv), nil
		}
	case []byte:
		switch bv := b.(type) {
		case []byte:
			return bytes.Compare(av, bv), nil
		case string:
			return bytes.Compare(av, []byte(bv)), nil
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, nil
			case !av:
				return -1, nil
			default:
				return 1, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %T and %T", ErrIncomparable, a, b)
}

// numeric normalises Go numeric kinds to int64 or float64.
func numeric(v any) (any, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint8:
		return int64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return nil, false
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return math.NaN()
}

func compareNumeric(a, b any) (int, error) {
	switch av := a.(type) {
	case int64:
		switch bv := b.(type) {
		case int64:
			return cmpOrdered(av, bv), nil
		case float64:
			c, err := compareIntFloat(av, bv)
			return c, err
		}
	case float64:
		if math.IsNaN(av) {
			return 0, ErrNaN
		}
		switch bv := b.(type) {
		case int64:
			c, err := compareIntFloat(bv, av)
			return -c, err
		case float64:
			if math.IsNaN(bv) {
				return 0, ErrNaN
			}
			return cmpOrdered(av, bv), nil
		}
	}
	return 0, ErrIncomparable
}

// compareIntFloat compares without rounding i through float64, so large
// int64 bounds are never misordered against a float literal.
func compareIntFloat(i int64, f float64) (int, error) {
	switch {
	case math.IsNaN(f):
		return 0, ErrNaN
	case f >= math.MaxInt64:
		return -1, nil
	case f < math.MinInt64:
		return 1, nil
	}
	t := math.Trunc(f)
	ti := int64(t)
	switch {
	case i < ti:
		return -1, nil
	case i > ti:
		return 1, nil
	case f > t:
		return -1, nil
	case f < t:
		return 1, nil
	}
	return 0, nil
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
