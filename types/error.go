package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the module.
type ErrorCode string

// Messaging error codes
const (
	ErrMailboxClosed ErrorCode = "MAILBOX_CLOSED"
	ErrMailboxFull   ErrorCode = "MAILBOX_FULL"
	ErrAgentNotFound ErrorCode = "AGENT_NOT_FOUND"
)

// Responder error codes
const (
	ErrRespondTransient ErrorCode = "RESPOND_TRANSIENT"
	ErrRespondFatal     ErrorCode = "RESPOND_FATAL"
	ErrProviderFailure  ErrorCode = "PROVIDER_FAILURE"
	ErrRateLimited      ErrorCode = "RATE_LIMITED"
)

// Orchestration error codes
const (
	ErrNoEligibleSpeaker        ErrorCode = "NO_ELIGIBLE_SPEAKER"
	ErrSelectionPolicyViolation ErrorCode = "SELECTION_POLICY_VIOLATION"
	ErrInterrupted              ErrorCode = "INTERRUPTED"
)

// General error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrTimeout        ErrorCode = "TIMEOUT"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrFatal          ErrorCode = "FATAL"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Agent     AgentID   `json:"agent,omitempty"`
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

// WithAgent records the agent the error is attributed to.
func (e *Error) WithAgent(id AgentID) *Error {
	e.Agent = id
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

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// IsErrorCode reports whether err carries the given code anywhere in its chain.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}
