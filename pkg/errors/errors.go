// Package errors defines structured error types for the ratekeeper service.
// Each error carries a machine-readable code and an HTTP status so the HTTP
// layer can map failures without inspecting messages.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies an error category.
type ErrorCode string

const (
	// ErrCodeConfig marks fatal startup-time configuration errors:
	// unknown rule keys, malformed CIDRs, invalid quotas. Never recoverable
	// at request time.
	ErrCodeConfig ErrorCode = "config_error"

	// ErrCodeStoreUnavailable marks counter-store connectivity or timeout
	// failures. Absorbed by the fail-open/fail-closed policy; never shown
	// to end users as a distinct type.
	ErrCodeStoreUnavailable ErrorCode = "store_unavailable"

	// ErrCodeRateLimitExceeded is the structured code attached to 429
	// responses. Quota exhaustion itself is verdict data, not an error.
	ErrCodeRateLimitExceeded ErrorCode = "rate_limit_exceeded"

	ErrCodeInvalidRequest ErrorCode = "invalid_request"
	ErrCodeUnauthorized   ErrorCode = "unauthorized"
	ErrCodeForbidden      ErrorCode = "forbidden"
	ErrCodeNotFound       ErrorCode = "not_found"
	ErrCodeInternal       ErrorCode = "internal_error"
)

// AppError is a structured application error.
type AppError struct {
	code       ErrorCode
	httpStatus int
	message    string
	cause      error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error category code.
func (e *AppError) Code() ErrorCode { return e.code }

// HTTPStatus returns the HTTP status this error maps to.
func (e *AppError) HTTPStatus() int { return e.httpStatus }

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *AppError) Unwrap() error { return e.cause }

// WithCause attaches an underlying error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.cause = cause
	return e
}

// New creates an AppError with an explicit code and status.
func New(code ErrorCode, httpStatus int, message string) *AppError {
	return &AppError{code: code, httpStatus: httpStatus, message: message}
}

// ================================================================================
// Constructors
// ================================================================================

// ErrConfig creates a fatal configuration error.
func ErrConfig(format string, args ...interface{}) *AppError {
	return New(ErrCodeConfig, http.StatusInternalServerError, fmt.Sprintf(format, args...))
}

// ErrStoreUnavailable wraps a counter-store failure.
func ErrStoreUnavailable(cause error) *AppError {
	return New(ErrCodeStoreUnavailable, http.StatusServiceUnavailable, "counter store unavailable").WithCause(cause)
}

// ErrInvalidRequest creates a 400-mapped error.
func ErrInvalidRequest(message string) *AppError {
	return New(ErrCodeInvalidRequest, http.StatusBadRequest, message)
}

// ErrUnauthorized creates a 401-mapped error.
func ErrUnauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, http.StatusUnauthorized, message)
}

// ErrForbidden creates a 403-mapped error.
func ErrForbidden(message string) *AppError {
	return New(ErrCodeForbidden, http.StatusForbidden, message)
}

// ErrNotFound creates a 404-mapped error.
func ErrNotFound(message string) *AppError {
	return New(ErrCodeNotFound, http.StatusNotFound, message)
}

// ErrInternal creates a 500-mapped error.
func ErrInternal(message string) *AppError {
	return New(ErrCodeInternal, http.StatusInternalServerError, message)
}

// ================================================================================
// Inspection Helpers
// ================================================================================

// CodeOf extracts the ErrorCode from err, or ErrCodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	var app *AppError
	if stderrors.As(err, &app) {
		return app.Code()
	}
	return ErrCodeInternal
}

// IsStoreUnavailable reports whether err is a counter-store failure.
func IsStoreUnavailable(err error) bool {
	return CodeOf(err) == ErrCodeStoreUnavailable
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool {
	return CodeOf(err) == ErrCodeConfig
}
