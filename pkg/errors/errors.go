// Package errors provides structured error types for the soldep application.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across CLI and API
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INPUT_*: Input validation failures (file count/size limits)
//   - FETCH_*: Networked content retrieval failures
//   - UNSUPPORTED_*: Import paths no registered library matches
//   - INTERNAL_*: Unexpected internal errors
//
// # Usage
//
//	err := errors.New(errors.ErrCodeUnsupportedImport, "no library matches %q", path)
//	if errors.Is(err, errors.ErrCodeUnsupportedImport) {
//	    // Handle unsupported import
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeFetchHTTP, origErr, "fetch %s", url)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInputTooLarge Code = "INPUT_TOO_LARGE"
	ErrCodeInvalidPath   Code = "INVALID_PATH"

	// Resolution errors
	ErrCodeUnsupportedImport Code = "UNSUPPORTED_IMPORT"
	ErrCodeAllVersionsFailed Code = "ALL_VERSIONS_FAILED"
	ErrCodeIterationLimit    Code = "ITERATION_LIMIT_EXCEEDED"
	ErrCodeNotFound          Code = "NOT_FOUND"

	// Network errors
	ErrCodeFetchTimeout Code = "FETCH_TIMEOUT"
	ErrCodeFetchHTTP    Code = "FETCH_HTTP_ERROR"
	ErrCodeNetwork      Code = "NETWORK_ERROR"
	ErrCodeDeadline     Code = "DEADLINE_EXCEEDED"

	// Compiler collaborator errors
	ErrCodeCompilerFailure Code = "COMPILER_FAILURE"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
