package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/bananagen/internal/auth"
	"github.com/sakif/bananagen/internal/billing"
	"github.com/sakif/bananagen/internal/service"
)

// BillingHandler serves checkout, the payment webhook and the price list.
type BillingHandler struct {
	checkout *service.CheckoutService
	webhooks *service.WebhookService
	logger   *slog.Logger
}

func NewBillingHandler(checkout *service.CheckoutService, webhooks *service.WebhookService, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		checkout: checkout,
		webhooks: webhooks,
		logger:   logger,
	}
}

// HandleCheckout creates a hosted checkout session.
//
// HTTP: POST /api/creem/checkout
//
// Body: {"priceId": "...", "returnUrl": "/pricing"}
// Reply: {"url": "..."}, or 401 {"login": "/auth/login?next=..."} when
// the caller is not signed in.
func (h *BillingHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	who, _ := auth.IdentityFromContext(r.Context())

	var in service.CheckoutInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	url, err := h.checkout.Checkout(r.Context(), who, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// HandleWebhook receives a signed payment event.
//
// HTTP: POST /api/creem/webhook
//
// The signature covers the exact bytes sent, so the body is read raw and
// handed over untouched.
func (h *BillingHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, decodeError(err))
		return
	}

	if _, err := h.webhooks.Handle(r.Context(), payload, billing.SignatureFromHeader(r.Header)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// HandlePlans lists the configured prices and the model costs.
//
// HTTP: GET /api/plans
func (h *BillingHandler) HandlePlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.checkout.Catalog())
}
