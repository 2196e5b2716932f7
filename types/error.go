package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Request error codes
const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"
	ErrAuthentication  ErrorCode = "AUTHENTICATION"
	ErrUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrRateLimited     ErrorCode = "RATE_LIMITED"
	ErrNotFound        ErrorCode = "NOT_FOUND"
	ErrInternalError   ErrorCode = "INTERNAL_ERROR"
	ErrUpstreamError   ErrorCode = "UPSTREAM_ERROR"
	ErrUpstreamTimeout ErrorCode = "UPSTREAM_TIMEOUT"
)

// Turn error codes
const (
	// ErrIncompatibleShape: a candidate fails even the fully relaxed schema.
	// The producer is defective; never retried silently.
	ErrIncompatibleShape ErrorCode = "INCOMPATIBLE_SHAPE"
	// ErrStreamError: the model stream failed mid-turn.
	ErrStreamError       ErrorCode = "STREAM_ERROR"
	ErrTurnCancelled     ErrorCode = "TURN_CANCELLED"
	ErrAgentBusy         ErrorCode = "AGENT_BUSY"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrSinkClosed        ErrorCode = "SINK_CLOSED"
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

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
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

// AsError extracts a *Error from the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsErrorCode reports whether any *Error in the chain carries code.
func IsErrorCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
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

// NewStreamError wraps an upstream stream failure.
func NewStreamError(cause error) *Error {
	return NewError(ErrStreamError, "model stream failed").
		WithCause(cause).
		WithRetryable(true)
}

// NewIncompatibleShapeError wraps a relaxed-schema validation failure.
func NewIncompatibleShapeError(cause error) *Error {
	return NewError(ErrIncompatibleShape, "candidate does not derive from schema").
		WithCause(cause)
}
