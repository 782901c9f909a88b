package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/sakif/bananagen/internal/apperror"
	"github.com/sakif/bananagen/internal/billing"
	"github.com/sakif/bananagen/internal/imagegen"
	"github.com/sakif/bananagen/internal/model"
)

const defaultReturnPath = "/pricing"

// CheckoutProvider creates hosted checkout sessions.
// *billing.CheckoutClient implements it.
type CheckoutProvider interface {
	Configured() bool
	CreateSession(ctx context.Context, req billing.CheckoutRequest) (string, error)
}

// CheckoutInput is the body of a checkout call. ReturnURL is the path the
// payment page sends the browser back to.
type CheckoutInput struct {
	PriceID   string `json:"priceId" validate:"required"`
	ReturnURL string `json:"returnUrl" validate:"omitempty,localpath"`
}

// LoginRequiredError is returned to anonymous checkout callers. Login is
// the path that signs the user in and brings them back.
type LoginRequiredError struct {
	Login string
}

func (e *LoginRequiredError) Error() string {
	return "login required"
}

func (e *LoginRequiredError) Unwrap() error {
	return apperror.ErrUnauthorized
}

// Plan is one purchasable subscription price.
type Plan struct {
	Tier     string `json:"tier"`
	Interval string `json:"interval"`
	PriceID  string `json:"priceId"`
}

// Catalog is what the pricing page needs: subscription prices and the
// per-generation cost of each model.
type Catalog struct {
	Plans  []Plan           `json:"plans"`
	Models []imagegen.Model `json:"models"`
}

// CheckoutService starts purchases and describes what can be bought.
type CheckoutService struct {
	provider CheckoutProvider
	siteURL  string
	plans    []Plan
	logger   *slog.Logger
}

// NewCheckoutService creates a CheckoutService. Plans with an empty price
// id are not offered.
func NewCheckoutService(provider CheckoutProvider, siteURL string, plans []Plan, logger *slog.Logger) *CheckoutService {
	offered := make([]Plan, 0, len(plans))
	for _, p := range plans {
		if p.PriceID != "" {
			offered = append(offered, p)
		}
	}
	return &CheckoutService{
		provider: provider,
		siteURL:  siteURL,
		plans:    offered,
		logger:   logger,
	}
}

// Checkout creates a checkout session for who and returns its URL.
//
// Anonymous callers get a *LoginRequiredError; no session is created.
func (s *CheckoutService) Checkout(ctx context.Context, who *model.Identity, in CheckoutInput) (string, error) {
	if err := validateStruct(in); err != nil {
		return "", err
	}
	if s.provider == nil || !s.provider.Configured() {
		return "", apperror.Misconfigured("CREEM_API_KEY not set")
	}

	returnPath := in.ReturnURL
	if returnPath == "" {
		returnPath = defaultReturnPath
	}
	if who == nil || who.ID == "" {
		return "", &LoginRequiredError{Login: "/auth/login?next=" + url.QueryEscape(returnPath)}
	}

	req := billing.CheckoutRequest{
		PriceID:    in.PriceID,
		SuccessURL: s.siteURL + returnPath + "?status=success",
		CancelURL:  s.siteURL + returnPath + "?status=cancelled",
		Customer: &billing.Customer{
			Email: who.Email,
			Name:  who.Name,
		},
	}

	checkoutURL, err := s.provider.CreateSession(ctx, req)
	if err != nil {
		return "", fmt.Errorf("service/checkout: creating session for %s: %w", who.ID, err)
	}

	s.logger.Info("checkout session created",
		slog.String("userID", who.ID),
		slog.String("priceID", in.PriceID),
	)
	return checkoutURL, nil
}

func (s *CheckoutService) Catalog() Catalog {
	return Catalog{
		Plans:  s.plans,
		Models: imagegen.Models(),
	}
}
