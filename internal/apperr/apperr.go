// Package apperr provides the error kinds surfaced by goose-llm components.
package apperr

import (
	"errors"
	"fmt"
)

// Kind categorises an error.
type Kind int

const (
	// Unknown is reported for errors that carry no kind.
	Unknown Kind = iota
	// InvalidArgument indicates a caller supplied an unusable parameter.
	InvalidArgument
	// IOFailure indicates an input source could not be read.
	IOFailure
	// RemoteServiceFailure indicates the completion service failed or timed out.
	RemoteServiceFailure
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid argument"
	case IOFailure:
		return "io failure"
	case RemoteServiceFailure:
		return "remote service failure"
	default:
		return "unknown"
	}
}

// Error is a kind-tagged error with an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Invalid is shorthand for an InvalidArgument error with a formatted message.
func Invalid(format string, args ...any) *Error {
	return New(InvalidArgument, fmt.Sprintf(format, args...), nil)
}

// KindOf reports the kind of the first Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
