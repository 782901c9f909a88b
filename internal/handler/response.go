package handler

// RESPONSE HELPERS:
// Every endpoint answers JSON. Errors share one shape:
//
//	{"error": "Insufficient points", "code": "insufficient_points"}
//
// "error" is the human-readable message the web client shows as-is;
// "code" is stable and meant for programmatic checks.

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sakif/bananagen/internal/apperror"
	"github.com/sakif/bananagen/internal/service"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// LoginResponse tells an anonymous caller where to sign in.
type LoginResponse struct {
	Login string `json:"login"`
}

// writeJSON sends data with the given status. Headers must be set before
// WriteHeader; anything set afterwards is ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// headers are gone already; nothing left but to log
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps the sentinel at the root of err to a status and code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrInsufficientPoints):
		return http.StatusPaymentRequired, "insufficient_points"
	case errors.Is(err, apperror.ErrInvalidSignature):
		return http.StatusUnauthorized, "invalid_signature"
	case errors.Is(err, apperror.ErrMalformedPayload):
		return http.StatusBadRequest, "malformed_payload"
	case errors.Is(err, apperror.ErrUpstream):
		return http.StatusBadGateway, "upstream_error"
	case errors.Is(err, apperror.ErrMisconfigured):
		return http.StatusInternalServerError, "misconfigured"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError maps a service error to its HTTP reply.
//
// For an *apperror.AppError the body carries its Message. Other errors
// (store or transport failures) carry their own text so operators can see
// which dependency broke.
func writeError(w http.ResponseWriter, err error) {
	var login *service.LoginRequiredError
	if errors.As(err, &login) {
		writeJSON(w, http.StatusUnauthorized, LoginResponse{Login: login.Login})
		return
	}

	status, code := errorStatus(err)

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, status, ErrorResponse{
			Error: appErr.Message,
			Code:  code,
			Field: appErr.Field,
		})
		return
	}

	writeJSON(w, status, ErrorResponse{
		Error: err.Error(),
		Code:  code,
	})
}

// decodeJSON reads r's body into dst. The body size is capped by the
// server's MaxBytesReader.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return decodeError(err)
	}
	return nil
}

// decodeError classifies a failure to read or decode a request body.
func decodeError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperror.ValidationFailed("", fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
	}
	return apperror.MalformedPayload("invalid json")
}
