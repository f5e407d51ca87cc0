package predicate

import (
	"errors"
	"fmt"
)

// Parser errors.
var (
	ErrEmptyFilter = errors.New("empty filter")
	ErrSyntax      = errors.New("syntax error")
	ErrUnsupported = errors.New("unsupported expression")
)

// Evaluation problems. These never fail a classification; they are
// returned alongside a conservative answer.
var (
	ErrUnknownAttribute = errors.New("unknown attribute")
	ErrLiteralType      = errors.New("literal does not match column type")
)

// ParseError provides detailed error information including position.
type ParseError struct {
	Pos     int    // column in input, 0 if unknown
	Message string // human-readable error message
	Err     error  // underlying sentinel error (for errors.Is)
}

func (e *ParseError) Error() string {
	if e.Pos > 0 {
		return fmt.Sprintf("filter parse error at column %d: %s", e.Pos, e.Message)
	}
	return "filter parse error: " + e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func newParseError(pos int, err error, msgFmt string, args ...any) *ParseError {
	return &ParseError{
		Pos:     pos,
		Message: fmt.Sprintf(msgFmt, args...),
		Err:     err,
	}
}

// AttrError reports a problem with one attribute's statistics or literal
// during skip evaluation.
type AttrError struct {
	Attr string
	Err  error
}

func (e *AttrError) Error() string {
	return fmt.Sprintf("attribute %q: %v", e.Attr, e.Err)
}

func (e *AttrError) Unwrap() error {
	return e.Err
}
