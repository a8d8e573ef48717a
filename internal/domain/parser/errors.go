package parser

import (
	"errors"
	"fmt"
)

// Sentinel kinds for parse failures. Every *ParseError matches ErrParse.
var (
	ErrParse        = errors.New("parse failed")
	ErrEmptyMessage = errors.New("message is empty")
	ErrUnknownMonth = errors.New("unknown month")
	ErrDayRange     = errors.New("day out of range")
	ErrNoScores     = errors.New("no valid scores found")
	ErrScoreRange   = errors.New("score out of range")
)

// ParseError describes why a message could not be interpreted.
type ParseError struct {
	Kind error
	Line string
}

func (e *ParseError) Error() string {
	if e.Line == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %q", e.Kind, e.Line)
}

// Is matches ErrParse as well as the specific kind.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse || target == e.Kind
}

func newError(kind error, line string) *ParseError {
	return &ParseError{Kind: kind, Line: line}
}
