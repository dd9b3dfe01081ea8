// Package domain defines core types, interfaces, and errors for the lineage engine.
package domain

import (
	"errors"
	"fmt"
)

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input (negative or over-limit depth,
// malformed ids, mismatched scopes).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a write that contradicts stored state, such as
// moving an asset into a different workspace.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// CancelledError indicates the operation was aborted by a deadline or an
// explicit cancellation. Err carries the context error.
type CancelledError struct {
	Message string
	Err     error
}

func (e *CancelledError) Error() string { return e.Message }

func (e *CancelledError) Unwrap() error { return e.Err }

// TransientError indicates a retryable I/O fault in the graph store.
type TransientError struct {
	Message string
	Err     error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrCancelled creates a CancelledError wrapping the given context error.
func ErrCancelled(cause error, format string, args ...interface{}) *CancelledError {
	return &CancelledError{Message: fmt.Sprintf(format, args...), Err: cause}
}

// ErrTransient creates a TransientError wrapping the given store error.
func ErrTransient(cause error, format string, args ...interface{}) *TransientError {
	return &TransientError{Message: fmt.Sprintf(format, args...), Err: cause}
}

// IsTransient reports whether err (or anything it wraps) is a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsCancelled reports whether err (or anything it wraps) is a CancelledError.
func IsCancelled(err error) bool {
	var c *CancelledError
	return errors.As(err, &c)
}
