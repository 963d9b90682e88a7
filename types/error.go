package types

import "fmt"

// ErrorCode represents a unified error code across the core.
type ErrorCode string

// Session and routing error codes
const (
	ErrValidation         ErrorCode = "VALIDATION"
	ErrSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"
	ErrSessionExpired     ErrorCode = "SESSION_EXPIRED"
	ErrInvalidTransition  ErrorCode = "INVALID_TRANSITION"
	ErrRollbackBounds     ErrorCode = "ROLLBACK_BOUNDS"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrSecurityEscalation ErrorCode = "SECURITY_ESCALATION"
)

// Dispatch and store error codes
const (
	ErrWorkerNotFound   ErrorCode = "WORKER_NOT_FOUND"
	ErrDispatchFailed   ErrorCode = "DISPATCH_FAILED"
	ErrChainTooLong     ErrorCode = "CHAIN_TOO_LONG"
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrStoreClosed      ErrorCode = "STORE_CLOSED"
	ErrInternalError    ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	SessionID string    `json:"session_id,omitempty"`
	Cause     error     `json:"-"`
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

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithSession tags the error with the session it concerns.
func (e *Error) WithSession(sessionID string) *Error {
	e.SessionID = sessionID
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
