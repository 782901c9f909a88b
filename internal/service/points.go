package service

import (
	"context"
	"fmt"

	"github.com/sakif/bananagen/internal/apperror"
	"github.com/sakif/bananagen/internal/model"
	"github.com/sakif/bananagen/internal/repository"
)

// PointsService exposes the caller's balance and ledger.
type PointsService struct {
	points       repository.PointsRepository
	historyLimit int
}

func NewPointsService(points repository.PointsRepository, historyLimit int) *PointsService {
	if historyLimit <= 0 {
		historyLimit = repository.DefaultHistoryLimit
	}
	return &PointsService{points: points, historyLimit: historyLimit}
}

func (s *PointsService) Balance(ctx context.Context, who *model.Identity) (*model.Balance, error) {
	if who == nil || who.ID == "" {
		return nil, apperror.Unauthorized("")
	}
	pts, err := s.points.Balance(ctx, *who)
	if err != nil {
		return nil, fmt.Errorf("service/points: reading balance for %s: %w", who.ID, err)
	}
	return &model.Balance{Points: pts}, nil
}

// History returns the newest entries first. The result is never nil.
func (s *PointsService) History(ctx context.Context, who *model.Identity) ([]model.LedgerEntry, error) {
	if who == nil || who.ID == "" {
		return nil, apperror.Unauthorized("")
	}
	entries, err := s.points.History(ctx, *who, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("service/points: reading history for %s: %w", who.ID, err)
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	return entries, nil
}
