// Package stats holds per-file column statistics: plain-encoded min/max
// bounds and a has-non-null flag per column ordinal.
//
// A Column is immutable once built. Min or Max being nil means the bound
// is absent (unknown), never "empty".
package stats

import (
	"errors"
	"fmt"

	"github.com/TigerSong/OAP/internal/schema"
)

// ErrMalformed marks statistics that cannot be trusted: undecodable
// bounds, NaN, or min > max.
var ErrMalformed = errors.New("malformed statistics")

// Column is the statistics summary of one column in one file.
type Column struct {
	Min        []byte
	Max        []byte
	HasNonNull bool
}

// Unknown returns statistics that prove nothing about the column.
func Unknown() Column {
	return Column{HasNonNull: true}
}

// AllNull returns statistics for a column with no non-null values.
func AllNull() Column {
	return Column{}
}

// Set is the statistics of every column of a file, by ordinal.
type Set []Column

// Column returns the statistics for ordinal i. Ordinals outside the set
// yield Unknown.
func (s Set) Column(i int) Column {
	if i < 0 || i >= len(s) {
		return Unknown()
	}
	return s[i]
}

// Bounds are decoded statistics in canonical value form.
type Bounds struct {
	Min, Max       any
	HasMin, HasMax bool
	HasNonNull     bool
}

// Decode decodes c as values of type t and checks min <= max. On error
// the returned Bounds carry only HasNonNull; callers treat the column as
// having no usable bounds.
func (c Column) Decode(t schema.Type) (Bounds, error) {
	b := Bounds{HasNonNull: c.HasNonNull}
	var lo, hi any
	if c.Min != nil {
		v, err := schema.Decode(t, c.Min)
		if err != nil {
			return b, fmt.Errorf("%w: min: %w", ErrMalformed, err)
		}
		lo = v
	}
	if c.Max != nil {
		v, err := schema.Decode(t, c.Max)
		if err != nil {
			return b, fmt.Errorf("%w: max: %w", ErrMalformed, err)
		}
		hi = v
	}
	if lo != nil && hi != nil {
		cmp, err := schema.Compare(lo, hi)
		if err != nil {
			return b, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		if cmp > 0 {
			return b, fmt.Errorf("%w: min %v > max %v", ErrMalformed, lo, hi)
		}
	}
	b.Min, b.HasMin = lo, lo != nil
	b.Max, b.HasMax = hi, hi != nil
	return b, nil
}

// FromValues computes exact statistics for values of type t. nil entries
// are nulls.
func FromValues(t schema.Type, values []any) (Column, error) {
	var c Column
	var lo, hi any
	for _, v := range values {
		if v == nil {
			continue
		}
		cv, err := schema.Coerce(t, v)
		if err != nil {
			return Column{}, err
		}
		c.HasNonNull = true
		if lo == nil {
			lo, hi = cv, cv
			continue
		}
		if cmp, err := schema.Compare(cv, lo); err != nil {
			return Column{}, err
		} else if cmp < 0 {
			lo = cv
		}
		if cmp, err := schema.Compare(cv, hi); err != nil {
			return Column{}, err
		} else if cmp > 0 {
			hi = cv
		}
	}
	if lo == nil {
		return c, nil
	}
	var err error
	if c.Min, err = schema.Encode(t, lo); err != nil {
		return Column{}, err
	}
	if c.Max, err = schema.Encode(t, hi); err != nil {
		return Column{}, err
	}
	return c, nil
}

// Merge combines the statistics of two disjoint row sets of the same
// column. A bound absent on either side is absent in the result, since
// the unknown side could hold any value.
func Merge(t schema.Type, a, b Column) (Column, error) {
	out := Column{HasNonNull: a.HasNonNull || b.HasNonNull}
	// An all-null side contributes no values; the other side's bounds stand.
	switch {
	case !a.HasNonNull && a.Min == nil && a.Max == nil:
		out.Min, out.Max = b.Min, b.Max
		return out, nil
	case !b.HasNonNull && b.Min == nil && b.Max == nil:
		out.Min, out.Max = a.Min, a.Max
		return out, nil
	}
	ab, err := a.Decode(t)
	if err != nil {
		return Column{}, err
	}
	bb, err := b.Decode(t)
	if err != nil {
		return Column{}, err
	}
	if ab.HasMin && bb.HasMin {
		cmp, err := schema.Compare(ab.Min, bb.Min)
		if err != nil {
			return Column{}, err
		}
		out.Min = a.Min
		if cmp > 0 {
			out.Min = b.Min
		}
	}
	if ab.HasMax && bb.HasMax {
		cmp, err := schema.Compare(ab.Max, bb.Max)
		if err != nil {
			return Column{}, err
		}
		out.Max = a.Max
		if cmp < 0 {
			out.Max = b.Max
		}
	}
	return out, nil
}

// ErrUnconvertible is returned by Convert for type pairs whose bounds
// cannot be carried over exactly.
var ErrUnconvertible = errors.New("statistics type not convertible")

// Convert re-encodes statistics written for type from as type to. Only
// exact conversions are allowed: int32 to int64 or float64, float32 to
// float64, and string to binary or back. Anything else returns
// ErrUnconvertible and the caller falls back to Unknown.
func Convert(c Column, from, to schema.Type) (Column, error) {
	if from == to {
		return c, nil
	}
	if !convertible(from, to) {
		return Column{}, fmt.Errorf("%w: %s to %s", ErrUnconvertible, from, to)
	}
	out := Column{HasNonNull: c.HasNonNull}
	for _, side := range []struct {
		in  []byte
		out *[]byte
	}{{c.Min, &out.Min}, {c.Max, &out.Max}} {
		if side.in == nil {
			continue
		}
		v, err := schema.Decode(from, side.in)
		if err != nil {
			return Column{}, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		if *side.out, err = schema.Encode(to, v); err != nil {
			return Column{}, err
		}
	}
	return out, nil
}

func convertible(from, to schema.Type) bool {
	switch from {
	case schema.TypeInt32:
		return to == schema.TypeInt64 || to == schema.TypeFloat64
	case schema.TypeFloat32:
		return to == schema.TypeFloat64
	case schema.TypeString:
		return to == schema.TypeBinary
	case schema.TypeBinary:
		return to == schema.TypeString
	}
	return false
}
