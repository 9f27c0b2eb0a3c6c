package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the orchestrator.
type ErrorCode string

// Orchestration error codes
const (
	ErrRoutingInvalid          ErrorCode = "ROUTING_INVALID"
	ErrRecursionLimit          ErrorCode = "RECURSION_LIMIT"
	ErrNestedTeamFailed        ErrorCode = "NESTED_TEAM_FAILED"
	ErrOrchestratorUnavailable ErrorCode = "ORCHESTRATOR_UNAVAILABLE"
	ErrTeamInvalid             ErrorCode = "TEAM_INVALID"
	ErrCancelled               ErrorCode = "CANCELLED"
)

// Session error codes
const (
	ErrSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrSessionBusy     ErrorCode = "SESSION_BUSY"
	ErrSessionClosed   ErrorCode = "SESSION_CLOSED"
)

// Request / resource error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrForbidden      ErrorCode = "FORBIDDEN"
	ErrPathForbidden  ErrorCode = "PATH_FORBIDDEN"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrToolFailed     ErrorCode = "TOOL_FAILED"
	ErrUpstreamError  ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsErrorCode reports whether any *Error in the chain carries code.
func IsErrorCode(err error, code ErrorCode) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HTTPStatusFor returns the HTTP status an error should be reported with.
func HTTPStatusFor(err error) int {
	e, ok := AsError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	switch e.Code {
	case ErrInvalidRequest, ErrTeamInvalid:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden, ErrPathForbidden:
		return http.StatusForbidden
	case ErrNotFound, ErrSessionNotFound:
		return http.StatusNotFound
	case ErrSessionBusy:
		return http.StatusConflict
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrOrchestratorUnavailable, ErrSessionClosed:
		return http.StatusServiceUnavailable
	case ErrUpstreamError:
		return http.StatusBadGateway
	case ErrCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// Common constructors

// NewRoutingError reports an oracle label outside the enumerated option set.
func NewRoutingError(team, label string, options []string) *Error {
	return Errorf(ErrRoutingInvalid, "team %q: invalid routing decision %q (options: %v)", team, label, options)
}

// NewRecursionLimitError reports that a run hit its step limit.
func NewRecursionLimitError(limit int) *Error {
	return Errorf(ErrRecursionLimit, "recursion limit of %d reached without hitting a stop condition", limit)
}

// NewOrchestratorUnavailableError reports a session without a usable team.
func NewOrchestratorUnavailableError() *Error {
	return NewError(ErrOrchestratorUnavailable, "orchestrator unavailable")
}

// NewCancelledError wraps a context error.
func NewCancelledError(cause error) *Error {
	return NewError(ErrCancelled, "run cancelled").WithCause(cause)
}
