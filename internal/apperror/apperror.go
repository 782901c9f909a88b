// Package apperror defines the error taxonomy shared by every layer.
//
// Services return *AppError values wrapping one of the sentinels below.
// Only the HTTP boundary (internal/handler) turns them into status codes,
// using errors.Is on the sentinel and the AppError's Message for the body.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrMalformedPayload   = errors.New("malformed payload")
	ErrUpstream           = errors.New("upstream error")
	ErrMisconfigured      = errors.New("misconfigured")
)

type AppError struct {
	Err     error  // sentinel, matched with errors.Is
	Message string // human-readable, returned to the client
	Field   string // optional: offending input field

	// UpstreamStatus is the status returned by the external provider for
	// ErrUpstream errors. Zero means the call never got a response.
	UpstreamStatus int
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Unauthorized is returned whenever a protected operation runs without a
// verified identity.
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "Not authenticated"
	}
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// InsufficientPoints is the 4xx-class outcome of a debit the store refused.
// Callers must not retry it as if it were transient.
func InsufficientPoints() *AppError {
	return &AppError{
		Err:     ErrInsufficientPoints,
		Message: "Insufficient points",
	}
}

func InvalidSignature() *AppError {
	return &AppError{
		Err:     ErrInvalidSignature,
		Message: "invalid signature",
	}
}

func MalformedPayload(message string) *AppError {
	return &AppError{
		Err:     ErrMalformedPayload,
		Message: message,
	}
}

// Upstream reports a failed call to an external provider. The provider's
// status and body are kept in the message for diagnostics.
func Upstream(provider string, status int, body string) *AppError {
	return &AppError{
		Err:            ErrUpstream,
		Message:        fmt.Sprintf("%s error: %d %s", provider, status, body),
		UpstreamStatus: status,
	}
}

func Misconfigured(message string) *AppError {
	return &AppError{
		Err:     ErrMisconfigured,
		Message: message,
	}
}
