// Package toolerr provides the structured error type the Step Executor
// wraps ctx-collaborator failures in before logging them: a message/cause
// chain supporting errors.Is/As, plus a Leaf field so a wrapped failure
// names which leaf's dispatch it happened during.
package toolerr

import (
	"errors"
	"fmt"
)

// Error is a structured tool-collaborator failure that preserves message
// and causal context while still implementing the standard error
// interface. Errors may be nested via Cause to retain diagnostics across
// retries.
type Error struct {
	// Leaf is the leaf whose dispatch or prerequisite check this failure
	// occurred during. Empty when the failure isn't leaf-scoped.
	Leaf string
	// Message is the human-readable summary of the failure.
	Message string
	// Cause links to the underlying tool error, enabling error chains
	// with errors.Is/As.
	Cause *Error
}

// New constructs an Error with the provided message, scoped to leaf.
func New(leaf, message string) *Error {
	if message == "" {
		message = "tool error"
	}
	return &Error{Leaf: leaf, Message: message}
}

// NewWithCause constructs an Error wrapping cause, scoped to leaf. cause is
// converted into an Error chain (see FromError), so its messages survive and
// errors.As finds each *Error link. A cause that is not a *Error is copied,
// so errors.Is does not match the original cause value.
func NewWithCause(leaf, message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Leaf: leaf, Message: message, Cause: FromError(cause)}
}

// FromError converts an arbitrary error into an Error chain, unscoped
// (Leaf empty) unless err is already a *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{Message: err.Error(), Cause: FromError(errors.Unwrap(err))}
}

// Errorf formats according to a format specifier, scoped to leaf.
func Errorf(leaf, format string, args ...any) *Error {
	return New(leaf, fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Leaf != "" {
		return fmt.Sprintf("%s: %s", e.Leaf, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying tool error to support errors.Is/As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
