package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/ragrouter/internal/domain"
)

// ResolveSession returns the session named by sessionID, or a new one when the
// id is empty, not a UUID, or unknown. Only store failures are errors.
func (s *Service) ResolveSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID != "" {
		if _, err := uuid.Parse(sessionID); err != nil {
			s.logger.Warn("invalid session id, creating new session", "session_id", sessionID)
		} else {
			session, err := s.store.GetSession(ctx, sessionID)
			if err != nil {
				return nil, fmt.Errorf("failed to get session: %w", err)
			}
			if session != nil {
				return session, nil
			}
			s.logger.Warn("session not found, creating new session", "session_id", sessionID)
		}
	}

	session := &domain.Session{
		SessionID: uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.logger.Info("created session", "session_id", session.SessionID)
	return session, nil
}
