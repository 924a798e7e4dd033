package errors

import (
	"fmt"
)

// IndexError is the structured error type for docdex.
// It provides context for error handling, logging, and user presentation.
type IndexError struct {
	// Code is the unique error code (e.g., "ERR_201_DOCUMENT_READ").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, External, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *IndexError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with IndexError.
func (e *IndexError) Is(target error) bool {
	if t, ok := target.(*IndexError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *IndexError) WithDetail(key, value string) *IndexError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new IndexError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *IndexError {
	return &IndexError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an IndexError from an existing error.
// The error's message becomes the IndexError message.
func Wrap(code string, err error) *IndexError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// DocumentReadError creates a per-document read error.
func DocumentReadError(path string, cause error) *IndexError {
	return New(ErrCodeDocumentRead, fmt.Sprintf("failed to read document %s", path), cause).
		WithDetail("path", path)
}

// CorruptStateError creates a persisted-state corruption error.
// Recovery is always a full rebuild, never a partial load.
func CorruptStateError(store string, cause error) *IndexError {
	return New(ErrCodeCorruptState, fmt.Sprintf("%s is corrupt, rebuild required", store), cause).
		WithDetail("store", store)
}

// EmbeddingError creates a chunk-scoped embedding failure.
func EmbeddingError(chunkID string, cause error) *IndexError {
	return New(ErrCodeEmbeddingFailed, "embedding computation failed", cause).
		WithDetail("chunk_id", chunkID)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is an IndexError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ie, ok := err.(*IndexError); ok {
		return ie.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ie, ok := err.(*IndexError); ok {
		return ie.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an IndexError.
// Returns empty string if not an IndexError.
func GetCode(err error) string {
	if ie, ok := err.(*IndexError); ok {
		return ie.Code
	}
	return ""
}
