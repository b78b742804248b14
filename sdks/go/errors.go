package statguard

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrRequestDenied is returned when the guard denies a request.
	ErrRequestDenied = errors.New("request denied")

	// ErrRateLimited is returned when the guard denies a request for
	// exceeding its rate limit.
	ErrRateLimited = errors.New("rate limited")

	// ErrServerUnreachable is returned when the statguard server cannot
	// be contacted and the client is configured to fail closed.
	ErrServerUnreachable = errors.New("server unreachable")
)

// StatguardError is the base error type for SDK errors.
type StatguardError struct {
	// Code is a machine-readable error code.
	Code string
	// Err is the underlying error.
	Err error
}

// Error returns the error message.
func (e *StatguardError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("statguard [%s]: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("statguard [%s]", e.Code)
}

// Unwrap returns the underlying error.
func (e *StatguardError) Unwrap() error {
	return e.Err
}

// RequestDeniedError is returned when the guard denies a request on a
// validation ground. It carries the denial reason and the rule that fired.
type RequestDeniedError struct {
	// Reason is the denial reason code (e.g. "sql_injection_suspected").
	Reason string
	// Rule names the specific rule that denied the request.
	Rule string
	// RequestID is the server-assigned correlation ID.
	RequestID string
}

// Error returns a human-readable description of the denial.
func (e *RequestDeniedError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("request denied (%s) by rule '%s'", e.Reason, e.Rule)
	}
	return fmt.Sprintf("request denied (%s)", e.Reason)
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrRequestDenied).
func (e *RequestDeniedError) Is(target error) bool {
	return target == ErrRequestDenied
}

// RateLimitedError is returned when the guard denies a request for
// exceeding its rate limit.
type RateLimitedError struct {
	// RetryAfter indicates how long to wait before retrying.
	RetryAfter time.Duration
	// RequestID is the server-assigned correlation ID.
	RequestID string
}

// Error returns a human-readable description of the rate limit denial.
func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrRateLimited).
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// ServerUnreachableError is returned when the statguard server cannot be
// contacted and the client is configured to fail closed.
type ServerUnreachableError struct {
	// Cause is the underlying error.
	Cause error
}

// Error returns a human-readable description of the failure.
func (e *ServerUnreachableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("server unreachable: %v", e.Cause)
	}
	return "server unreachable"
}

// Unwrap returns the underlying error cause.
func (e *ServerUnreachableError) Unwrap() error {
	return e.Cause
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrServerUnreachable).
func (e *ServerUnreachableError) Is(target error) bool {
	return target == ErrServerUnreachable
}
