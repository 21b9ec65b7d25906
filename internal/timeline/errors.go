package timeline

import (
	"errors"
	"fmt"
)

var (
	ErrBadToken      = errors.New("malformed token")
	ErrMask          = errors.New("changemask wider than schema")
	ErrFieldCount    = errors.New("field count mismatch")
	ErrColumnCount   = errors.New("column count mismatch")
	ErrSkip          = errors.New("skip directive must be alone in its column group")
	ErrOrderRange    = errors.New("order index out of range")
	ErrUnexpectedEOF = errors.New("unexpected end of sequence")
)

// ParseError reports where loading failed. Column is the timeline column the
// failure was found in, or -1 when the failure is not tied to one.
type ParseError struct {
	File   string
	Line   int
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Column >= 0 {
		return fmt.Sprintf("%s:%d: column %d: %v", e.File, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
