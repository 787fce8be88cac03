package domainerrors

import "errors"

// Code represents a domain error category independent of transport layer.
// Codes describe what went wrong at the gateway, not how it is rendered over HTTP.
type Code string

const (
	CodeNotFound     Code = "not_found"
	CodeBadRequest   Code = "bad_request"
	CodeValidation   Code = "validation_failed"
	CodeInternal     Code = "internal_error"
	CodeConflict     Code = "conflict"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeTimeout      Code = "timeout"

	// CodeInvariantViolation marks invalid configuration. Fatal at startup.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeUnavailable marks a failing dependency (store, cache, broker).
	// Callers on the request path fail open when they see it.
	CodeUnavailable Code = "dependency_unavailable"
	// CodeRateLimited is used by admin surfaces that throttle themselves.
	CodeRateLimited Code = "rate_limited"
	CodeBlocked     Code = "blocked"
)

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and other layers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Configuration reports an invalid configuration value.
func Configuration(msg string) error {
	return &Error{Code: CodeInvariantViolation, Message: msg}
}

// Dependency wraps a failure of an external collaborator.
func Dependency(err error, msg string) error {
	return &Error{Code: CodeUnavailable, Message: msg, Err: err}
}

// IsDependency reports whether err originates from a failing dependency.
func IsDependency(err error) bool {
	return HasCode(err, CodeUnavailable)
}
