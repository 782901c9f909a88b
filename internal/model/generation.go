package model

import (
	"encoding/json"
	"time"
)

// GenerationRequest is the transient input of one generation call.
// Images are data URIs or http(s) URLs of reference pictures.
type GenerationRequest struct {
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Model  string   `json:"model"`
}

// GenerationResult is what the caller receives back. Raw is the provider
// payload kept for diagnostics; Images may be empty on success.
type GenerationResult struct {
	Images          []string        `json:"images"`
	Raw             json.RawMessage `json:"raw"`
	RemainingPoints int64           `json:"remainingPoints"`
}

// WebhookEvent is a verified, parsed payment-provider event.
type WebhookEvent struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"receivedAt"`
}
