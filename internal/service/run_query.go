package service

import (
	"context"
	"fmt"

	"github.com/xiaot623/gogo/ragrouter/internal/domain"
)

// GetRun returns the audit record of one chat request.
func (s *Service) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, domain.NewNotFoundError("Run", runID)
	}
	return run, nil
}

func (s *Service) GetRunEvents(ctx context.Context, runID string, afterTs int64, limit int) ([]domain.Event, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	events, err := s.store.GetEvents(ctx, runID, afterTs, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get run events: %w", err)
	}
	return events, nil
}
