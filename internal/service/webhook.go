package service

import (
	"context"
	"log/slog"

	"github.com/sakif/bananagen/internal/apperror"
	"github.com/sakif/bananagen/internal/billing"
	"github.com/sakif/bananagen/internal/model"
)

// WebhookService authenticates and records payment-provider deliveries.
//
// Events are acknowledged and logged. They carry no ledger effect yet:
// subscription credits are granted by operator tooling.
type WebhookService struct {
	secret string
	logger *slog.Logger
}

func NewWebhookService(secret string, logger *slog.Logger) *WebhookService {
	return &WebhookService{secret: secret, logger: logger}
}

// Handle verifies signature over the exact payload bytes and parses the
// event. The payload is never decoded before the signature checks out.
func (s *WebhookService) Handle(ctx context.Context, payload []byte, signature string) (*model.WebhookEvent, error) {
	if s.secret == "" {
		return nil, apperror.Misconfigured("missing secret")
	}
	if !billing.VerifySignature(payload, s.secret, signature) {
		s.logger.WarnContext(ctx, "webhook signature rejected",
			slog.Int("bytes", len(payload)),
			slog.Bool("signaturePresent", signature != ""),
		)
		return nil, apperror.InvalidSignature()
	}

	event, err := billing.ParseEvent(payload)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "webhook received",
		slog.String("eventID", event.ID),
		slog.String("type", event.Type),
	)
	return event, nil
}
