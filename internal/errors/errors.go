// Package errors provides structured error types for the moneytrail pipeline.
// All errors include a category, code, message, and fatal flag so callers can
// tell absorbed per-row problems apart from run-aborting prerequisite failures.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by pipeline concern.
type ErrorCategory string

const (
	ErrCategoryParse      ErrorCategory = "PARSE"
	ErrCategoryEncoding   ErrorCategory = "ENCODING"
	ErrCategoryPrereq     ErrorCategory = "PREREQ"
	ErrCategoryReference  ErrorCategory = "REFERENCE"
	ErrCategoryStore      ErrorCategory = "STORE"
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Parse codes
	CodeMalformedRow = "MALFORMED_ROW"

	// Encoding codes
	CodeUndecodableFile = "UNDECODABLE_FILE"

	// Prerequisite codes
	CodeMissingDirectory = "MISSING_DIRECTORY"
	CodeMissingFile      = "MISSING_FILE"
	CodeEmptyTable       = "EMPTY_TABLE"

	// Reference codes
	CodeMalformedReference = "MALFORMED_REFERENCE"

	// Store codes
	CodeOpenFailed   = "OPEN_FAILED"
	CodeInsertFailed = "INSERT_FAILED"
	CodeExecFailed   = "EXEC_FAILED"

	// Validation codes
	CodeCheckFailed = "CHECK_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// PipelineError is the structured error type used throughout the pipeline.
type PipelineError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Cause    error
	Fatal    bool
}

// Error returns a formatted error string.
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new PipelineError.
func New(category ErrorCategory, code, message string) *PipelineError {
	return &PipelineError{
		Category: category,
		Code:     code,
		Message:  message,
		Fatal:    isFatal(category, code),
	}
}

// Wrap creates a new PipelineError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *PipelineError {
	return &PipelineError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
		Fatal:    isFatal(category, code),
	}
}

// IsFatal checks whether an error (or its chain) should abort the run.
func IsFatal(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Fatal
	}
	// Unclassified errors abort: nothing below the pipeline absorbs them.
	return err != nil
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a PipelineError.
func GetCategory(err error) ErrorCategory {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a PipelineError.
func GetCode(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// isFatal implements the propagation policy: per-row parse problems and
// reference-data problems are absorbed where they occur; prerequisite,
// encoding-exhaustion, and store failures terminate the run.
func isFatal(category ErrorCategory, code string) bool {
	switch category {
	case ErrCategoryPrereq, ErrCategoryStore, ErrCategoryEncoding, ErrCategoryInternal:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewParseError(message string) *PipelineError {
	return New(ErrCategoryParse, CodeMalformedRow, message)
}

func NewEncodingError(message string, cause error) *PipelineError {
	return Wrap(ErrCategoryEncoding, CodeUndecodableFile, message, cause)
}

func NewPrereqError(code, message string) *PipelineError {
	return New(ErrCategoryPrereq, code, message)
}

func NewReferenceError(message string, cause error) *PipelineError {
	return Wrap(ErrCategoryReference, CodeMalformedReference, message, cause)
}

func NewStoreError(code, message string, cause error) *PipelineError {
	return Wrap(ErrCategoryStore, code, message, cause)
}

func NewInternalError(message string, cause error) *PipelineError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
