package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/ragrouter/internal/domain"
)

// startRun opens the audit record of one request. It returns "" when the run
// could not be created; tracing is then skipped for the request.
func (s *Service) startRun(ctx context.Context, sessionID string, mode domain.Mode) string {
	runID := "run_" + uuid.New().String()[:8]
	run := &domain.Run{
		RunID:     runID,
		SessionID: sessionID,
		Status:    domain.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		s.logger.Warn("failed to create run", "session_id", sessionID, "error", err)
		return ""
	}

	s.traceEvent(ctx, runID, domain.EventTypeRunStarted, domain.RunStartedPayload{
		SessionID: sessionID,
		Mode:      mode,
	})
	return runID
}

func (s *Service) setRunDestination(ctx context.Context, runID string, destination domain.Destination) {
	if runID == "" {
		return
	}
	if err := s.store.UpdateRunDestination(ctx, runID, destination); err != nil {
		s.logger.Warn("failed to update run destination", "run_id", runID, "error", err)
	}
}

// finishRun closes the run as DONE, or FAILED when runErr is set.
func (s *Service) finishRun(ctx context.Context, runID, messageID string, runErr error) {
	if runID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)

	if runErr == nil {
		s.traceEvent(ctx, runID, domain.EventTypeRunDone, domain.RunDonePayload{MessageID: messageID})
		if err := s.store.UpdateRunCompleted(ctx, runID, domain.RunStatusDone, nil); err != nil {
			s.logger.Error("failed to update run status", "run_id", runID, "error", err)
		}
		return
	}

	s.traceEvent(ctx, runID, domain.EventTypeRunFailed, domain.RunFailedPayload{
		Error:     runErr.Error(),
		MessageID: messageID,
	})
	errData, _ := json.Marshal(map[string]string{
		"code":    string(domain.CodeOf(runErr)),
		"message": runErr.Error(),
	})
	if err := s.store.UpdateRunCompleted(ctx, runID, domain.RunStatusFailed, errData); err != nil {
		s.logger.Error("failed to update run status", "run_id", runID, "error", err)
	}
}
