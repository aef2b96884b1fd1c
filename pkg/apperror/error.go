// Package apperror defines the application error taxonomy shared by HTTP
// handlers and the processing pipeline.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents an application error with HTTP status and error code
type Error struct {
	HTTPStatus int
	Code       string
	Message    string
	Internal   error
	Details    map[string]any
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the internal error
func (e *Error) Unwrap() error {
	return e.Internal
}

// WithInternal returns a copy of the error with an internal error attached
func (e *Error) WithInternal(err error) *Error {
	return &Error{
		HTTPStatus: e.HTTPStatus,
		Code:       e.Code,
		Message:    e.Message,
		Internal:   err,
		Details:    e.Details,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *Error) WithMessage(message string) *Error {
	return &Error{
		HTTPStatus: e.HTTPStatus,
		Code:       e.Code,
		Message:    message,
		Internal:   e.Internal,
		Details:    e.Details,
	}
}

// WithDetails returns a copy of the error with details attached
func (e *Error) WithDetails(details map[string]any) *Error {
	return &Error{
		HTTPStatus: e.HTTPStatus,
		Code:       e.Code,
		Message:    e.Message,
		Internal:   e.Internal,
		Details:    details,
	}
}

// New creates a new application error
func New(status int, code, message string) *Error {
	return &Error{
		HTTPStatus: status,
		Code:       code,
		Message:    message,
	}
}

// Error codes used across the pipeline. Pipeline workers classify failures
// by these codes to decide whether a job may be retried.
const (
	CodeValidation          = "validation"
	CodeBadRequest          = "bad_request"
	CodeNotFound            = "not_found"
	CodeConflict            = "conflict"
	CodeBusinessRule        = "business_rule_violation"
	CodeUnsupportedFileType = "unsupported_file_type"
	CodeFileTooLarge        = "file_too_large"
	CodeExtractionFailed    = "extraction_failed"
	CodeExternalService     = "external_service"
	CodeTimeout             = "timeout"
	CodeInternal            = "internal_error"
	CodeDatabase            = "database_error"
)

// Common error definitions
var (
	ErrValidation          = New(http.StatusUnprocessableEntity, CodeValidation, "Validation failed")
	ErrBadRequest          = New(http.StatusBadRequest, CodeBadRequest, "Invalid request")
	ErrNotFound            = New(http.StatusNotFound, CodeNotFound, "Resource not found")
	ErrConflict            = New(http.StatusConflict, CodeConflict, "Resource already exists")
	ErrBusinessRule        = New(http.StatusUnprocessableEntity, CodeBusinessRule, "Business rule violated")
	ErrUnsupportedFileType = New(http.StatusUnsupportedMediaType, CodeUnsupportedFileType, "Unsupported file type")
	ErrFileTooLarge        = New(http.StatusRequestEntityTooLarge, CodeFileTooLarge, "File exceeds the maximum allowed size")
	ErrExtractionFailed    = New(http.StatusBadGateway, CodeExtractionFailed, "Text extraction failed")
	ErrExternalService     = New(http.StatusBadGateway, CodeExternalService, "Downstream service error")
	ErrTimeout             = New(http.StatusGatewayTimeout, CodeTimeout, "Operation timed out")
	ErrInternal            = New(http.StatusInternalServerError, CodeInternal, "An internal error occurred")
	ErrDatabase            = New(http.StatusInternalServerError, CodeDatabase, "Database operation failed")
)

// CodeOf returns the application error code for err, or CodeInternal when the
// error does not carry one.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// Retryable reports whether a failure with this error may be attempted again.
// Validation, lookup, and per-document terminal errors are never retried;
// downstream faults and timeouts are. Internal errors are retryable so a
// transient bug or crash gets one more chance before the job fails for good
// (the engine caps them at a single retry).
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeExternalService, CodeTimeout, CodeExtractionFailed, CodeDatabase, CodeInternal:
		return true
	default:
		return false
	}
}

// NewBadRequest creates a bad request error with a custom message
func NewBadRequest(message string) *Error {
	return ErrBadRequest.WithMessage(message)
}

// NewValidation creates a validation error with a custom message
func NewValidation(message string) *Error {
	return ErrValidation.WithMessage(message)
}

// NewNotFound creates a not found error for a resource type and ID
func NewNotFound(resourceType, id string) *Error {
	return ErrNotFound.WithMessage(fmt.Sprintf("%s '%s' not found", resourceType, id))
}

// NewInternal creates an internal error with a message and optional wrapped error
func NewInternal(message string, err error) *Error {
	return &Error{
		HTTPStatus: http.StatusInternalServerError,
		Code:       CodeInternal,
		Message:    message,
		Internal:   err,
	}
}

// NewExternal creates an external service error wrapping a downstream failure
func NewExternal(message string, err error) *Error {
	return &Error{
		HTTPStatus: http.StatusBadGateway,
		Code:       CodeExternalService,
		Message:    message,
		Internal:   err,
	}
}
