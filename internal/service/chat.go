package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xiaot623/gogo/ragrouter/internal/domain"
	"github.com/xiaot623/gogo/ragrouter/internal/observability"
	"github.com/xiaot623/gogo/ragrouter/internal/pipeline"
	"github.com/xiaot623/gogo/ragrouter/internal/router"
)

// stream guards the caller's emit. After the first failed send every later
// send is dropped and reports that failure. The terminal event is always
// attempted, exactly once.
type stream struct {
	emit   pipeline.EmitFunc
	err    error
	closed bool
}

func (st *stream) send(e domain.StreamEvent) error {
	if st.err != nil {
		return st.err
	}
	if err := st.emit(e); err != nil {
		st.err = err
		return err
	}
	return nil
}

func (st *stream) close(e domain.StreamEvent) error {
	if st.closed {
		return nil
	}
	st.closed = true
	observability.StreamClosed(string(e.Type))
	return st.emit(e)
}

// ProcessMessage handles one chat turn. Events are delivered through emit in
// order: an optional metadata event, tokens, then exactly one done or error.
//
// The returned message is the persisted assistant turn. It is non-nil whenever
// that row was written, including after a pipeline failure, in which case the
// failure is returned alongside it.
func (s *Service) ProcessMessage(ctx context.Context, req domain.ChatRequest, emit pipeline.EmitFunc) (*domain.Message, error) {
	ctx, span := s.tracer.Start(ctx, "chat.process_message")
	defer span.End()
	st := &stream{emit: emit}

	session, err := s.ResolveSession(ctx, req.SessionID)
	if err != nil {
		return nil, s.abort(ctx, span, st, "", "", err)
	}
	span.SetAttributes(attribute.String("session_id", session.SessionID))

	mode := req.EffectiveMode()
	runID := s.startRun(ctx, session.SessionID, mode)
	ctx = withRunID(ctx, runID)
	logger := s.logger.With("session_id", session.SessionID, "run_id", runID)

	userMsg := &domain.Message{
		MessageID: uuid.NewString(),
		SessionID: session.SessionID,
		RunID:     runID,
		Role:      domain.RoleUser,
		Content:   req.Message,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, userMsg); err != nil {
		return nil, s.abort(ctx, span, st, runID, "", fmt.Errorf("failed to save user message: %w", err))
	}
	s.traceEvent(ctx, runID, domain.EventTypeUserInput, domain.UserInputPayload{
		MessageID: userMsg.MessageID,
		Content:   req.Message,
	})

	history := s.loadHistory(ctx, session.SessionID, userMsg.MessageID)

	decision, forced := s.route(ctx, mode, req.Message)
	if !forced {
		// The caller may already be gone; the turn is still persisted below.
		_ = st.send(domain.MetadataEvent(decision.Destination, decision.Reasoning))
	}
	s.traceEvent(ctx, runID, domain.EventTypeRouteDecided, domain.RouteDecidedPayload{
		Destination: decision.Destination,
		Reasoning:   decision.Reasoning,
		Forced:      forced,
		Degraded:    decision.Degraded,
	})
	s.setRunDestination(ctx, runID, decision.Destination)
	observability.QueryRouted(string(decision.Destination))
	logger.Info("message routed", "destination", decision.Destination, "reasoning", decision.Reasoning, "forced", forced)

	var result pipeline.Result
	if st.err != nil {
		result = pipeline.Result{
			Outcome:  pipeline.OutcomeFailure,
			Metadata: baseMetadata(decision.Destination),
			Err:      st.err,
		}
	} else {
		result = s.runPipeline(ctx, decision.Destination, pipeline.Input{
			Query:   req.Message,
			History: pipeline.HistoryMessages(history),
		}, st.send)
	}

	// Persistence must survive the caller going away.
	persistCtx := context.WithoutCancel(ctx)
	metadata := result.Metadata
	if result.Outcome == pipeline.OutcomeFailure {
		metadata = metadata.Failed(result.Err)
	}
	assistant := &domain.Message{
		MessageID:     uuid.NewString(),
		SessionID:     session.SessionID,
		RunID:         runID,
		Role:          domain.RoleAssistant,
		Content:       result.Answer,
		RouteDecision: decision.Destination,
		Metadata:      &metadata,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.CreateMessage(persistCtx, assistant); err != nil {
		return nil, s.abort(persistCtx, span, st, runID, "", fmt.Errorf("failed to save assistant message: %w", err))
	}

	switch result.Outcome {
	case pipeline.OutcomeFailure:
		return assistant, s.abort(persistCtx, span, st, runID, assistant.MessageID, result.Err)
	case pipeline.OutcomeDegraded:
		logger.Warn("pipeline degraded", "destination", decision.Destination, "error", result.Err)
	}

	if err := st.close(domain.DoneEvent()); err != nil {
		logger.Debug("failed to send done event", "error", err)
	}
	s.finishRun(persistCtx, runID, assistant.MessageID, nil)
	return assistant, nil
}

// route returns the forced destination of a non-auto mode, or classifies the
// utterance. Classification never fails.
func (s *Service) route(ctx context.Context, mode domain.Mode, utterance string) (router.Decision, bool) {
	if dest, ok := mode.Forced(); ok {
		return router.Decision{Destination: dest, Reasoning: "forced by mode " + string(mode)}, true
	}

	ctx, span := s.tracer.Start(ctx, "chat.route")
	defer span.End()
	decision := s.classifier.Classify(ctx, utterance)
	span.SetAttributes(
		attribute.String("destination", string(decision.Destination)),
		attribute.Bool("degraded", decision.Degraded),
	)
	return decision, false
}

func (s *Service) runPipeline(ctx context.Context, dest domain.Destination, in pipeline.Input, emit pipeline.EmitFunc) pipeline.Result {
	ctx, span := s.tracer.Start(ctx, "chat.pipeline", trace.WithAttributes(attribute.String("destination", string(dest))))
	defer span.End()

	p, ok := s.pipelines[dest]
	if !ok {
		p = s.pipelines[domain.DestinationConversation]
	}
	result := p.Run(ctx, in, emit)
	span.SetAttributes(attribute.String("outcome", string(result.Outcome)))
	if result.Outcome == pipeline.OutcomeFailure && result.Err != nil {
		span.RecordError(result.Err)
	}

	s.traceEvent(ctx, runIDFrom(ctx), domain.EventTypePipelineDone, domain.PipelineDonePayload{
		Destination: dest,
		Outcome:     string(result.Outcome),
		AnswerChars: len([]rune(result.Answer)),
	})
	return result
}

// abort closes the stream with an error event and fails the run. It returns
// err so callers can hand it back.
func (s *Service) abort(ctx context.Context, span trace.Span, st *stream, runID, messageID string, err error) error {
	s.logger.Error("chat turn failed", "run_id", runID, "message_id", messageID, "error", err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if emitErr := st.close(domain.ErrorEvent(err.Error())); emitErr != nil {
		s.logger.Debug("failed to send error event", "run_id", runID, "error", emitErr)
	}
	s.finishRun(ctx, runID, messageID, err)
	return err
}

// baseMetadata is the metadata of a destination whose pipeline never ran.
func baseMetadata(dest domain.Destination) domain.Metadata {
	switch dest {
	case domain.DestinationDocumentQA:
		return domain.RetrievalMetadata()
	case domain.DestinationStructuredQuery:
		return domain.StructuredMetadata("")
	}
	return domain.ConversationMetadata()
}
