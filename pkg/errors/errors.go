package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type baseError struct {
	message string
}

func (e *baseError) Error() string {
	return e.message
}

// ValidationError represents a malformed request or payload (HTTP 400)
type ValidationError struct {
	baseError
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{baseError{message: message}}
}

func NewValidationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{baseError{message: fmt.Sprintf(format, args...)}}
}

// UnauthorizedError represents an authentication error (HTTP 401)
type UnauthorizedError struct {
	baseError
}

func NewUnauthorizedError(message string) *UnauthorizedError {
	return &UnauthorizedError{baseError{message: message}}
}

// PermissionError represents a permission error (HTTP 403)
type PermissionError struct {
	baseError
}

func NewPermissionError(message string) *PermissionError {
	return &PermissionError{baseError{message: message}}
}

// NotFoundError represents a missing record or a session the bridge does not know (HTTP 404)
type NotFoundError struct {
	baseError
}

func NewNotFoundError(message string) *NotFoundError {
	return &NotFoundError{baseError{message: message}}
}

func NewNotFoundErrorf(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{baseError{message: fmt.Sprintf(format, args...)}}
}

// ConflictError represents a conflict error (HTTP 409)
type ConflictError struct {
	baseError
}

func NewConflictError(message string) *ConflictError {
	return &ConflictError{baseError{message: message}}
}

// RateLimitError represents a throttled request (HTTP 429)
type RateLimitError struct {
	baseError
}

func NewRateLimitError(message string) *RateLimitError {
	return &RateLimitError{baseError{message: message}}
}

// InternalError represents an internal server error (HTTP 500)
type InternalError struct {
	baseError
}

func NewInternalError(message string) *InternalError {
	return &InternalError{baseError{message: message}}
}

func NewInternalErrorf(format string, args ...interface{}) *InternalError {
	return &InternalError{baseError{message: fmt.Sprintf(format, args...)}}
}

// ServiceUnavailableError represents a service unavailable error (HTTP 503)
type ServiceUnavailableError struct {
	baseError
}

func NewServiceUnavailableError(message string) *ServiceUnavailableError {
	return &ServiceUnavailableError{baseError{message: message}}
}

// ConfigurationError is a missing or invalid setting. It is fatal and never retried.
type ConfigurationError struct {
	baseError
}

func NewConfigurationError(message string) *ConfigurationError {
	return &ConfigurationError{baseError{message: message}}
}

func NewConfigurationErrorf(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{baseError{message: fmt.Sprintf(format, args...)}}
}

// TransportError is a failed call to the bridge: network failure, timeout or non-2xx reply.
// StatusCode is zero when no HTTP response was received.
type TransportError struct {
	baseError
	StatusCode int
	cause      error
}

func NewTransportError(statusCode int, message string, cause error) *TransportError {
	return &TransportError{
		baseError:  baseError{message: message},
		StatusCode: statusCode,
		cause:      cause,
	}
}

func (e *TransportError) Unwrap() error {
	return e.cause
}

// Retryable reports whether repeating the call can succeed.
// Client errors are final except request timeout and rate limiting.
// A 2xx reply whose body reports failure is treated as transient.
func (e *TransportError) Retryable() bool {
	if e.StatusCode < http.StatusBadRequest {
		return true
	}
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= 500
}

// IsRetryable reports whether err is a transport failure worth retrying
func IsRetryable(err error) bool {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Retryable()
	}
	return false
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr)
}
