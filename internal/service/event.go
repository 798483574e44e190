package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/ragrouter/internal/domain"
)

// recordEvent records an event to the store.
func (s *Service) recordEvent(ctx context.Context, runID string, eventType domain.EventType, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &domain.Event{
		EventID: "evt_" + uuid.New().String()[:8],
		RunID:   runID,
		Ts:      time.Now().UnixMilli(),
		Type:    eventType,
		Payload: payloadBytes,
	}

	return s.store.CreateEvent(ctx, event)
}

// traceEvent records an event for runID when there is one. Failures are logged
// and never reach the caller.
func (s *Service) traceEvent(ctx context.Context, runID string, eventType domain.EventType, payload interface{}) {
	if runID == "" {
		return
	}
	if err := s.recordEvent(context.WithoutCancel(ctx), runID, eventType, payload); err != nil {
		s.logger.Warn("failed to record event", "run_id", runID, "type", eventType, "error", err)
	}
}

type runIDKey struct{}

func withRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func runIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
