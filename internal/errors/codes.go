package errors

import (
	"fmt"
)

// ErrorCode represents a specific error type for engine operations.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a referenced conversation is absent.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeGeneratorFailed indicates answer generation failure.
	ErrCodeGeneratorFailed ErrorCode = "GENERATOR_FAILED"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeStoreUnavailable indicates a backing store is unreachable.
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
)

// EngineError represents a structured error for engine operations.
type EngineError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// GetCode returns the error code.
func (e *EngineError) GetCode() ErrorCode {
	return e.Code
}

// Convenience constructors for common error types.

// NotFound creates a not found error.
func NotFound(msg string) *EngineError {
	return &EngineError{Code: ErrCodeNotFound, Message: msg}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *EngineError {
	return &EngineError{Code: ErrCodeInvalidArgument, Message: msg}
}

// GeneratorFailed creates a generator failed error.
func GeneratorFailed(msg string, cause error) *EngineError {
	return &EngineError{Code: ErrCodeGeneratorFailed, Message: msg, Cause: cause}
}

// Timeout creates a timeout error.
func Timeout(msg string) *EngineError {
	return &EngineError{Code: ErrCodeTimeout, Message: msg}
}

// StoreUnavailable creates a store unavailable error.
func StoreUnavailable(msg string, cause error) *EngineError {
	return &EngineError{Code: ErrCodeStoreUnavailable, Message: msg, Cause: cause}
}

// CodeOf extracts the ErrorCode from an error, if it carries one.
func CodeOf(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	if e, ok := err.(*EngineError); ok {
		return e.Code, true
	}
	return "", false
}
