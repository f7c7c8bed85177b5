// Package errs defines the error taxonomy shared across runbox components.
//
// Every failure the service can surface falls into one of five kinds, and
// HTTP handlers map kinds to status codes in exactly one place. Wrapping
// preserves the underlying cause for errors.Is/As.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport-level handling.
type Kind int

const (
	// KindValidation is malformed client input. Never retried.
	KindValidation Kind = iota + 1
	// KindResource means infrastructure could not perform the operation.
	KindResource
	// KindNotFound is an unknown, already-claimed, or expired token.
	KindNotFound
	// KindTimeout means a compile or run exceeded its deadline.
	KindTimeout
	// KindProcess means the sandboxed process failed after isolation setup.
	KindProcess
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindResource:
		return "resource"
	case KindNotFound:
		return "not found"
	case KindTimeout:
		return "timeout"
	case KindProcess:
		return "process"
	}
	return "unknown"
}

// Error carries a kind, a human-readable message, and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(err error, kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of err, or 0 if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Is reports whether err is of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
