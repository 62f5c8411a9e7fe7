package errors

import (
	stderrors "errors"
	"fmt"
)

// DocragError is the structured error type for docrag.
// It carries enough context for logging, retry decisions and user presentation.
type DocragError struct {
	// Code is the unique error code (e.g., "ERR_201_FILE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *DocragError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *DocragError) Unwrap() error {
	return e.Cause
}

// Is matches another DocragError by code, so errors.Is works with sentinel values.
func (e *DocragError) Is(target error) bool {
	if t, ok := target.(*DocragError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *DocragError) WithDetail(key, value string) *DocragError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *DocragError) WithSuggestion(suggestion string) *DocragError {
	e.Suggestion = suggestion
	return e
}

// New creates a new DocragError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *DocragError {
	return &DocragError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a DocragError from an existing error, reusing its message.
func Wrap(code string, err error) *DocragError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *DocragError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an I/O-related error.
func IOError(message string, cause error) *DocragError {
	return New(ErrCodeFileNotFound, message, cause)
}

// NetworkError creates a retryable network error.
func NetworkError(message string, cause error) *DocragError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *DocragError {
	return New(ErrCodeInvalidInput, message, cause)
}

// IsRetryable reports whether any DocragError in the chain is retryable.
func IsRetryable(err error) bool {
	var de *DocragError
	if stderrors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// IsFatal reports whether the error has fatal severity.
func IsFatal(err error) bool {
	var de *DocragError
	if stderrors.As(err, &de) {
		return de.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code, or "" if err is not a DocragError.
func GetCode(err error) string {
	var de *DocragError
	if stderrors.As(err, &de) {
		return de.Code
	}
	return ""
}
