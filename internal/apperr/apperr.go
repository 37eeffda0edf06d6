// Package apperr defines the failure taxonomy surfaced at the operation
// boundary. Every error returned by the league service maps to exactly one
// Kind; unknown errors are treated as Internal.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	Validation         Kind = "validation_error"
	Auth               Kind = "unauthorized"
	NotFound           Kind = "not_found"
	Conflict           Kind = "conflict"
	InsufficientFunds  Kind = "insufficient_funds"
	InsufficientShares Kind = "insufficient_shares"
	NoPosition         Kind = "no_position"
	SymbolNotFound     Kind = "symbol_not_found"
	Upstream           Kind = "upstream_unavailable"
	Internal           Kind = "internal_error"
)

// Error is a classified failure. Sentinel values are declared by the
// packages that produce them and wrapped with fmt.Errorf("%w: ...").
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// KindOf reports the Kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
