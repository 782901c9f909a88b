// Package service holds the business rules between the HTTP handlers and
// the integrations (ledger, inference provider, payment provider).
//
//	Handler (HTTP) → Service (rules) → repository / imagegen / billing
//
// Services never read requests or write responses. They receive the
// caller's identity explicitly and return *apperror.AppError values that
// the handler layer maps to status codes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/sakif/bananagen/internal/apperror"
	"github.com/sakif/bananagen/internal/imagegen"
	"github.com/sakif/bananagen/internal/model"
	"github.com/sakif/bananagen/internal/repository"
)

// Generator produces images. *imagegen.Gateway implements it.
type Generator interface {
	Ready() error
	Generate(ctx context.Context, req model.GenerationRequest) (*imagegen.Output, error)
}

// GenerateInput is the body of a generation call.
type GenerateInput struct {
	Prompt string   `json:"prompt"`
	Images []string `json:"images" validate:"dive,imageref"`
	Model  string   `json:"model"`
}

// GenerationService charges for and runs image generations.
//
// ORDER OF OPERATIONS:
//  1. Reject anonymous callers.
//  2. Validate the input and resolve the model (cost + reason).
//  3. Check the provider is configured.
//  4. Debit the ledger once. A refused debit ends the call with 402.
//  5. Generate. Once paid for, generation is not cancelled by the client
//     going away.
//
// Nothing is charged when steps 1-3 fail. When step 5 fails after a
// successful debit the points stay spent unless refunds are enabled.
type GenerationService struct {
	points  repository.PointsRepository
	gen     Generator
	granter repository.PointsGranter
	logger  *slog.Logger
}

type GenerationOption func(*GenerationService)

// WithRefund enables the compensating credit for generations that fail
// after the debit.
func WithRefund(granter repository.PointsGranter) GenerationOption {
	return func(s *GenerationService) {
		s.granter = granter
	}
}

func NewGenerationService(
	points repository.PointsRepository,
	gen Generator,
	logger *slog.Logger,
	opts ...GenerationOption,
) *GenerationService {
	s := &GenerationService{
		points: points,
		gen:    gen,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate runs one paid generation for who. requestID is the caller's
// idempotency key; when empty a fresh one is minted. It is recorded in the
// ledger meta only and does not deduplicate retries.
func (s *GenerationService) Generate(ctx context.Context, who *model.Identity, in GenerateInput, requestID string) (*model.GenerationResult, error) {
	if who == nil || who.ID == "" {
		return nil, apperror.Unauthorized("")
	}

	if err := validateStruct(in); err != nil {
		return nil, err
	}
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" && len(in.Images) == 0 {
		return nil, apperror.ValidationFailed("prompt", "Provide a prompt and/or at least one image")
	}

	m, err := imagegen.ResolveModel(in.Model)
	if err != nil {
		return nil, err
	}
	if err := s.gen.Ready(); err != nil {
		return nil, err
	}

	if requestID == "" {
		requestID = uuid.NewString()
	}
	meta := map[string]any{
		"requestId": requestID,
		"model":     m.Selector,
	}

	remaining, err := s.points.Spend(ctx, *who, m.Cost, m.Reason, meta)
	if err != nil {
		return nil, fmt.Errorf("service/generation: debiting %d points: %w", m.Cost, err)
	}
	if remaining == nil {
		s.logger.Info("generation refused: insufficient points",
			slog.String("userID", who.ID),
			slog.String("model", m.Selector),
			slog.Int64("cost", m.Cost),
		)
		return nil, apperror.InsufficientPoints()
	}

	s.logger.Info("points debited",
		slog.String("userID", who.ID),
		slog.String("requestID", requestID),
		slog.String("reason", m.Reason),
		slog.Int64("remaining", *remaining),
	)

	out, err := s.gen.Generate(context.WithoutCancel(ctx), model.GenerationRequest{
		Prompt: prompt,
		Images: in.Images,
		Model:  m.Selector,
	})
	if err != nil {
		s.compensate(ctx, who, m, meta, err)
		return nil, err
	}

	if len(out.Images) == 0 {
		s.logger.Warn("generation returned no images",
			slog.String("userID", who.ID),
			slog.String("requestID", requestID),
		)
	}

	return &model.GenerationResult{
		Images:          out.Images,
		Raw:             out.Raw,
		RemainingPoints: *remaining,
	}, nil
}

// compensate handles a generation that failed after the debit.
func (s *GenerationService) compensate(ctx context.Context, who *model.Identity, m imagegen.Model, meta map[string]any, cause error) {
	if s.granter == nil {
		s.logger.Warn("generation failed after debit, points not refunded",
			slog.String("userID", who.ID),
			slog.Any("requestID", meta["requestId"]),
			slog.Int64("cost", m.Cost),
			slog.String("error", cause.Error()),
		)
		return
	}

	balance, err := s.granter.Grant(context.WithoutCancel(ctx), who.ID, m.Cost, "refund:"+m.Reason, meta)
	if err != nil {
		s.logger.Error("refund failed",
			slog.String("userID", who.ID),
			slog.Any("requestID", meta["requestId"]),
			slog.Int64("cost", m.Cost),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Info("points refunded",
		slog.String("userID", who.ID),
		slog.Any("requestID", meta["requestId"]),
		slog.Int64("balance", balance),
	)
}
