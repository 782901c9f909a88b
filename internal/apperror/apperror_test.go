package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("prompt", "prompt is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Unauthorized wraps ErrUnauthorized",
			err:       Unauthorized(""),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "InsufficientPoints wraps ErrInsufficientPoints",
			err:       InsufficientPoints(),
			target:    ErrInsufficientPoints,
			wantMatch: true,
		},
		{
			name:      "wrapped Upstream still matches through fmt.Errorf",
			err:       fmt.Errorf("generating: %w", Upstream("OpenRouter", 503, "busy")),
			target:    ErrUpstream,
			wantMatch: true,
		},
		{
			name:      "InvalidSignature does NOT match ErrMalformedPayload",
			err:       InvalidSignature(),
			target:    ErrMalformedPayload,
			wantMatch: false,
		},
		{
			name:      "InsufficientPoints does NOT match ErrUpstream",
			err:       InsufficientPoints(),
			target:    ErrUpstream,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "Unauthorized falls back to default message",
			err:         Unauthorized(""),
			wantMessage: "Not authenticated",
		},
		{
			name:        "InsufficientPoints has fixed message",
			err:         InsufficientPoints(),
			wantMessage: "Insufficient points",
		},
		{
			name:        "Upstream carries provider status and body",
			err:         Upstream("OpenRouter", 429, "rate limited"),
			wantMessage: "OpenRouter error: 429 rate limited",
		},
		{
			name:        "MalformedPayload uses custom message",
			err:         MalformedPayload("invalid json"),
			wantMessage: "invalid json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := InvalidSignature()
	if unwrapped := err.Unwrap(); unwrapped != ErrInvalidSignature {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, ErrInvalidSignature)
	}
}

func TestUpstreamStatus(t *testing.T) {
	err := Upstream("Creem", 500, "boom")
	if err.UpstreamStatus != 500 {
		t.Errorf("UpstreamStatus = %d, want 500", err.UpstreamStatus)
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("model", "unknown model")
	if err.Field != "model" {
		t.Errorf("Field = %q, want %q", err.Field, "model")
	}
}
