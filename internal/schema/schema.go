// Package schema describes the declared column layout of a file: ordered
// fields with primitive data types, plus the plain value codec used by
// column statistics.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var (
	ErrUnknownType    = errors.New("unknown data type")
	ErrDuplicateField = errors.New("duplicate field name")
	ErrEmptyField     = errors.New("empty field name")
)

// Type is a column's declared data type.
type Type uint8

const (
	TypeInvalid Type = iota
	TypeBool
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeString
	TypeBinary
)

var typeNames = map[Type]string{
	TypeBool:    "bool",
	TypeInt32:   "int32",
	TypeInt64:   "int64",
	TypeFloat32: "float32",
	TypeFloat64: "float64",
	TypeString:  "string",
	TypeBinary:  "binary",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Numeric reports whether values of t compare numerically.
func (t Type) Numeric() bool {
	switch t {
	case TypeInt32, TypeInt64, TypeFloat32, TypeFloat64:
		return true
	}
	return false
}

// ParseType parses a type name. Common aliases (int, long, float, double,
// bytes, boolean) are accepted.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bool", "boolean":
		return TypeBool, nil
	case "int32", "int":
		return TypeInt32, nil
	case "int64", "long", "bigint":
		return TypeInt64, nil
	case "float32", "float":
		return TypeFloat32, nil
	case "float64", "double":
		return TypeFloat64, nil
	case "string", "utf8":
		return TypeString, nil
	case "binary", "bytes":
		return TypeBinary, nil
	}
	return TypeInvalid, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// Field is one named, typed column.
type Field struct {
	Name string
	Type Type
}

func (f Field) String() string {
	return f.Name + ":" + f.Type.String()
}

// Schema is an immutable ordered list of fields. Column ordinals are
// positions in this list.
type Schema struct {
	fields []Field
	byName map[string]int
}

// New builds a schema from fields. Names must be unique and non-empty.
func New(fields ...Field) (Schema, error) {
	s := Schema{
		fields: make([]Field, len(fields)),
		byName: make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		if f.Name == "" {
			return Schema{}, fmt.Errorf("field %d: %w", i, ErrEmptyField)
		}
		if _, ok := typeNames[f.Type]; !ok {
			return Schema{}, fmt.Errorf("field %q: %w", f.Name, ErrUnknownType)
		}
		if _, dup := s.byName[f.Name]; dup {
			return Schema{}, fmt.Errorf("%w: %q", ErrDuplicateField, f.Name)
		}
		s.fields[i] = f
		s.byName[f.Name] = i
	}
	return s, nil
}

// MustNew is New that panics on error. Intended for tests and literals.
func MustNew(fields ...Field) Schema {
	s, err := New(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Parse parses "name:type,name:type".
func Parse(text string) (Schema, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return New()
	}
	var fields []Field
	for part := range strings.SplitSeq(text, ",") {
		name, typ, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return Schema{}, fmt.Errorf("field %q: missing type", part)
		}
		t, err := ParseType(typ)
		if err != nil {
			return Schema{}, fmt.Errorf("field %q: %w", name, err)
		}
		fields = append(fields, Field{Name: strings.TrimSpace(name), Type: t})
	}
	return New(fields...)
}

// Len returns the number of columns.
func (s Schema) Len() int { return len(s.fields) }

// Field returns the field at ordinal i.
func (s Schema) Field(i int) Field { return s.fields[i] }

// Fields returns a copy of the fields.
func (s Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Lookup returns the ordinal and field for name.
func (s Schema) Lookup(name string) (int, Field, bool) {
	i, ok := s.byName[name]
	if !ok {
		return -1, Field{}, false
	}
	return i, s.fields[i], true
}

// String returns the canonical "name:type,..." form accepted by Parse.
func (s Schema) String() string {
	parts := make([]string, len(s.fields))
	for i, f := range s.fields {
		parts[i] = f.String()
	}
	return strings.Join(parts, ",")
}

// Fingerprint identifies the schema for cache keys. Equal schemas (same
// names, types and order) have equal fingerprints.
func (s Schema) Fingerprint() uint64 {
	return xxhash.Sum64String(s.String())
}
