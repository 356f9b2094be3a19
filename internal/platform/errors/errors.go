// Package errors provides structured errors with HTTP status mapping and the translation
// from domain sentinel errors to client-facing responses.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/corpsj/weet-ai/internal/domain"
)

// ErrorType is the category of an error, used for the status code, the metric label
// and the "type" field of the response.
type ErrorType string

const (
	// TypeValidation indicates invalid input (HTTP 400)
	TypeValidation ErrorType = "validation"
	// TypeNotFound indicates resource not found (HTTP 404)
	TypeNotFound ErrorType = "not_found"
	// TypeTooLarge indicates an oversized request body (HTTP 413)
	TypeTooLarge ErrorType = "too_large"
	// TypeRateLimited indicates the client exceeded its request budget (HTTP 429)
	TypeRateLimited ErrorType = "rate_limited"
	// TypeInternal indicates server-side error (HTTP 500)
	TypeInternal ErrorType = "internal"
	// TypeExternal indicates a failing upstream, e.g. the weights host (HTTP 502)
	TypeExternal ErrorType = "external"
	// TypeUnavailable indicates a feature that is switched off or not ready (HTTP 503)
	TypeUnavailable ErrorType = "unavailable"
)

// Error represents a structured error with type, message, and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeTooLarge:
		return http.StatusRequestEntityTooLarge
	case TypeRateLimited:
		return http.StatusTooManyRequests
	case TypeExternal:
		return http.StatusBadGateway
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause, Context: make(map[string]any)}
}

// ValidationError creates a new validation error (HTTP 400).
func ValidationError(message string) *Error {
	return newError(TypeValidation, message, nil)
}

// NotFoundError creates a new not-found error (HTTP 404).
func NotFoundError(message string) *Error {
	return newError(TypeNotFound, message, nil)
}

// RateLimitedError creates a new rate-limited error (HTTP 429).
func RateLimitedError(message string) *Error {
	return newError(TypeRateLimited, message, nil)
}

// InternalError creates a new internal error (HTTP 500).
func InternalError(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

// ExternalError creates a new external service error (HTTP 502).
func ExternalError(message string, cause error) *Error {
	return newError(TypeExternal, message, cause)
}

// UnavailableError creates a new unavailable error (HTTP 503).
func UnavailableError(message string, cause error) *Error {
	return newError(TypeUnavailable, message, cause)
}

// WithContext adds a context field to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse is the JSON body sent to clients. Success is always false.
type ErrorResponse struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Context: e.Context,
	}
}

// AsStructuredError converts any error into a structured Error. Structured errors are returned
// unchanged, domain errors are mapped to their category, anything else becomes internal.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return fromDomain(err)
}

func fromDomain(err error) *Error {
	switch {
	case errors.Is(err, domain.ErrInvalidImage),
		errors.Is(err, domain.ErrInvalidScale),
		errors.Is(err, domain.ErrUnknownModel):
		return newError(TypeValidation, err.Error(), nil)
	case errors.Is(err, domain.ErrWeightFetch):
		return ExternalError("failed to fetch model weights", err)
	case errors.Is(err, domain.ErrRecordNotFound):
		return NotFoundError(err.Error())
	case errors.Is(err, domain.ErrHistoryDisabled), errors.Is(err, domain.ErrRegistryClosed):
		return UnavailableError(err.Error(), err)
	case errors.Is(err, domain.ErrInference):
		return InternalError("inference failed", err)
	case errors.Is(err, context.DeadlineExceeded):
		return UnavailableError("request timed out", err)
	default:
		return InternalError("internal server error", err)
	}
}
