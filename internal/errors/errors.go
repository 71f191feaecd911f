package errors

import (
	"errors"
	"fmt"
)

// Code classifies an error for transport mapping and retry decisions.
type Code string

const (
	// ErrCodeValidation is a bad request: negative quantity, missing
	// justification, wrong week. Never persisted.
	ErrCodeValidation Code = "VALIDATION"
	// ErrCodeUnauthorized is an actor/role/store mismatch.
	ErrCodeUnauthorized Code = "UNAUTHORIZED"
	// ErrCodeStateConflict is an illegal status transition or a concurrent
	// actor winning an optimistic update.
	ErrCodeStateConflict Code = "STATE_CONFLICT"
	// ErrCodeNotFound means the referenced record does not exist.
	ErrCodeNotFound Code = "NOT_FOUND"
	// ErrCodeConsistency flags data anomalies (duplicate effective
	// amendments, unresolved store lookups).
	ErrCodeConsistency Code = "CONSISTENCY"
	// ErrCodeTransient is a storage/network failure. Safe to retry for
	// idempotent operations only.
	ErrCodeTransient Code = "TRANSIENT"
	// ErrCodeInternal is everything else.
	ErrCodeInternal Code = "INTERNAL"
)

// Error is a code-carrying error. All service errors are of this type so the
// HTTP layer can map them to status codes in one place.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an error with an explicit code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with an explicit code and a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates a cause with a code and message, preserving the chain.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// Validation builds a VALIDATION error for a named field.
func Validation(field, message string) *Error {
	return &Error{Code: ErrCodeValidation, Message: fmt.Sprintf("%s: %s", field, message)}
}

// Unauthorized builds an UNAUTHORIZED error.
func Unauthorized(message string) *Error {
	return &Error{Code: ErrCodeUnauthorized, Message: message}
}

// StateConflict builds a STATE_CONFLICT error.
func StateConflict(message string) *Error {
	return &Error{Code: ErrCodeStateConflict, Message: message}
}

// NotFound builds a NOT_FOUND error for a resource and key.
func NotFound(resource, key string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s not found: %s", resource, key)}
}

// CodeOf extracts the code from an error chain, defaulting to INTERNAL.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// Is reports whether the error chain carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
