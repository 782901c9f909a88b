// Package billing integrates with the Creem payment provider: verifying
// signed webhook deliveries and creating hosted checkout sessions.
package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/bananagen/internal/apperror"
	"github.com/sakif/bananagen/internal/model"
)

// SignatureHeaders are checked in order; the first non-empty one is used.
var SignatureHeaders = []string{"X-Creem-Signature", "Creem-Signature", "X-Signature"}

const sigPrefix = "sha256="

// SignatureFromHeader returns the delivery's signature header value, or ""
// when none of SignatureHeaders is present.
func SignatureFromHeader(h http.Header) string {
	for _, name := range SignatureHeaders {
		if v := h.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// Sign returns the lowercase hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether provided is the HMAC-SHA256 of payload
// under secret. A leading "sha256=" (any case) and surrounding spaces are
// ignored. The comparison takes the same time wherever the first
// difference is.
//
// An empty secret never verifies.
func VerifySignature(payload []byte, secret, provided string) bool {
	if secret == "" {
		return false
	}
	if len(provided) >= len(sigPrefix) && strings.EqualFold(provided[:len(sigPrefix)], sigPrefix) {
		provided = provided[len(sigPrefix):]
	}
	provided = strings.TrimSpace(provided)

	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(provided))
}

// ParseEvent decodes a verified payload. Call it only after
// VerifySignature returned true.
//
// Any JSON object is accepted. id, type and eventType are picked up only
// when they are strings.
func ParseEvent(payload []byte) (*model.WebhookEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return nil, apperror.MalformedPayload("invalid json")
	}

	typ := stringField(fields, "type")
	if typ == "" {
		typ = stringField(fields, "eventType")
	}
	return &model.WebhookEvent{
		ID:         stringField(fields, "id"),
		Type:       typ,
		Payload:    json.RawMessage(payload),
		ReceivedAt: time.Now().UTC(),
	}, nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	var v string
	if raw, ok := fields[key]; ok && json.Unmarshal(raw, &v) == nil {
		return v
	}
	return ""
}
