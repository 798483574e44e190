package service

import (
	"context"
	"fmt"

	"github.com/xiaot623/gogo/ragrouter/internal/domain"
)

const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 200
)

// GetMessages returns the most recent limit messages of a session, oldest
// first. A non-positive limit selects the default; larger limits are capped.
func (s *Service) GetMessages(ctx context.Context, sessionID string, limit int) (*domain.MessageListResponse, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	limit = min(limit, MaxMessageLimit)

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, domain.NewNotFoundError("Session", sessionID)
	}

	messages, err := s.store.GetMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return &domain.MessageListResponse{Messages: messages, Total: len(messages)}, nil
}

// loadHistory returns the turns preceding the current message, at most the
// configured window. A store failure degrades to an empty history and is
// recorded on the run.
func (s *Service) loadHistory(ctx context.Context, sessionID, currentID string) []domain.Message {
	window := s.historyWindow()
	messages, err := s.store.GetMessages(ctx, sessionID, window+1)
	if err != nil {
		s.logger.Warn("failed to get messages, answering without history", "session_id", sessionID, "error", err)
		s.traceEvent(ctx, runIDFrom(ctx), domain.EventTypeHistoryDegraded, domain.HistoryDegradedPayload{
			SessionID: sessionID,
			Error:     err.Error(),
		})
		return nil
	}

	history := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		if m.MessageID != currentID {
			history = append(history, m)
		}
	}
	if len(history) > window {
		history = history[len(history)-window:]
	}
	return history
}
