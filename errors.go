package aguibridge

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyInput is returned when a required input slice is empty.
	ErrEmptyInput = errors.New("empty input")

	// ErrNoToolResults is returned when a tool batch carries no usable results.
	ErrNoToolResults = errors.New("no tool results found in submission")

	// ErrCapacityExceeded is returned when the concurrent execution ceiling is hit.
	ErrCapacityExceeded = errors.New("maximum concurrent executions reached")

	// ErrSessionNotFound is returned when a session lookup misses.
	ErrSessionNotFound = errors.New("session not found")
)

// ErrorCategory classifies errors by how they should be handled.
type ErrorCategory string

const (
	// ErrorTransient indicates the error is temporary and the operation can be retried.
	// Examples: rate limits, temporary network issues, server overload.
	ErrorTransient ErrorCategory = "transient"

	// ErrorPermanent indicates the error is not recoverable through retry.
	// Examples: invalid API key, insufficient permissions, model not found.
	ErrorPermanent ErrorCategory = "permanent"

	// ErrorUserInput indicates the caller provided invalid input that must be corrected.
	ErrorUserInput ErrorCategory = "user_input"
)

// CategorizedError is an error that provides information about how it should be handled.
type CategorizedError interface {
	error
	Category() ErrorCategory
	Retryable() bool           // convenience: returns true if Category == ErrorTransient
	StatusCode() int           // HTTP status code if applicable, 0 otherwise
	RetryAfter() time.Duration // suggested retry delay from server, 0 if not available
}

// Error is a categorized error with metadata for error handling decisions.
// Model adapters return it so the runtime can tell a rate limit from a bad key.
type Error struct {
	Msg        string
	Cat        ErrorCategory
	Code       int           // HTTP status code, 0 if not applicable
	RetryDelay time.Duration // from Retry-After header, 0 if not available
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Category returns the error category.
func (e *Error) Category() ErrorCategory { return e.Cat }

// Retryable returns true if the error is transient and can be retried.
func (e *Error) Retryable() bool { return e.Cat == ErrorTransient }

// StatusCode returns the HTTP status code, or 0 if not applicable.
func (e *Error) StatusCode() int { return e.Code }

// RetryAfter returns the suggested retry delay, or 0 if not available.
func (e *Error) RetryAfter() time.Duration { return e.RetryDelay }

// NewTransientError creates a transient error that can be retried.
func NewTransientError(msg string, statusCode int, cause error) *Error {
	return &Error{Msg: msg, Cat: ErrorTransient, Code: statusCode, Cause: cause}
}

// NewTransientErrorWithRetry creates a transient error with a suggested retry delay.
func NewTransientErrorWithRetry(msg string, statusCode int, retryAfter time.Duration, cause error) *Error {
	return &Error{Msg: msg, Cat: ErrorTransient, Code: statusCode, RetryDelay: retryAfter, Cause: cause}
}

// NewPermanentError creates a permanent error that should not be retried.
func NewPermanentError(msg string, statusCode int, cause error) *Error {
	return &Error{Msg: msg, Cat: ErrorPermanent, Code: statusCode, Cause: cause}
}

// NewUserInputError creates an error indicating invalid caller input.
func NewUserInputError(msg string, statusCode int, cause error) *Error {
	return &Error{Msg: msg, Cat: ErrorUserInput, Code: statusCode, Cause: cause}
}

// IsTransient reports whether err, or any error it wraps, is transient.
func IsTransient(err error) bool {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.Category() == ErrorTransient
	}
	return false
}

// IsPermanent reports whether err, or any error it wraps, is permanent.
func IsPermanent(err error) bool {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.Category() == ErrorPermanent
	}
	return false
}

// IsUserInput reports whether err, or any error it wraps, is a user input error.
func IsUserInput(err error) bool {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.Category() == ErrorUserInput
	}
	return false
}

// StatusCodeOf returns the HTTP status code from a categorized error, or 0.
func StatusCodeOf(err error) int {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.StatusCode()
	}
	return 0
}

// RetryAfterOf returns the retry delay from a categorized error, or 0.
func RetryAfterOf(err error) time.Duration {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.RetryAfter()
	}
	return 0
}

// RunErrorCode is the machine-readable code carried by a RUN_ERROR event.
type RunErrorCode string

const (
	CodeBackgroundExecution  RunErrorCode = "BACKGROUND_EXECUTION_ERROR"
	CodeExecution            RunErrorCode = "EXECUTION_ERROR"
	CodeExecutionTimeout     RunErrorCode = "EXECUTION_TIMEOUT"
	CodeNoToolResults        RunErrorCode = "NO_TOOL_RESULTS"
	CodeToolResultProcessing RunErrorCode = "TOOL_RESULT_PROCESSING_ERROR"
	CodeEncoding             RunErrorCode = "ENCODING_ERROR"
	CodeAgent                RunErrorCode = "AGENT_ERROR"
)

// RunError is an error destined for the client as a RUN_ERROR event.
type RunError struct {
	Code  RunErrorCode
	Msg   string
	Cause error
}

func (e *RunError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *RunError) Unwrap() error { return e.Cause }

// NewRunError creates a RunError with the given code.
func NewRunError(code RunErrorCode, msg string, cause error) *RunError {
	return &RunError{Code: code, Msg: msg, Cause: cause}
}

// RunErrorCodeOf returns the code of the first RunError in err's chain,
// falling back to fallback when there is none.
func RunErrorCodeOf(err error, fallback RunErrorCode) RunErrorCode {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code
	}
	return fallback
}
