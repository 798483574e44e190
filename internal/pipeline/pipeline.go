// Package pipeline implements the three answer pipelines a routed message
// can be dispatched to.
package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/xiaot623/gogo/ragrouter/internal/adapter/llm"
	"github.com/xiaot623/gogo/ragrouter/internal/domain"
)

// Outcome classifies how a pipeline run ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	// OutcomeDegraded means an answer was produced but describes a recoverable
	// problem, e.g. a rejected or failing query.
	OutcomeDegraded Outcome = "degraded"
	OutcomeFailure  Outcome = "failure"
)

// EmitFunc delivers one event to the caller. A non-nil error means the caller
// is gone and the pipeline must stop.
type EmitFunc func(domain.StreamEvent) error

// Input is what every pipeline receives.
type Input struct {
	Query   string
	History []llm.ChatMessage
}

// Result is the explicit outcome of a run. Answer holds everything emitted as
// tokens so far, even on failure.
type Result struct {
	Outcome  Outcome
	Answer   string
	Metadata domain.Metadata
	Err      error
}

// Pipeline answers one routed message.
type Pipeline interface {
	Run(ctx context.Context, in Input, emit EmitFunc) Result
}

var (
	_ Pipeline = (*Retrieval)(nil)
	_ Pipeline = (*Structured)(nil)
	_ Pipeline = (*Conversation)(nil)
)

// HistoryMessages converts stored turns into chat messages, oldest first.
func HistoryMessages(msgs []domain.Message) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		role := llm.RoleUser
		if m.Role == domain.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.ChatMessage{Role: role, Content: m.Content})
	}
	return out
}

// streamErr separates a failed emit from a failed generation.
type streamErr struct{ err error }

func (e *streamErr) Error() string { return e.err.Error() }
func (e *streamErr) Unwrap() error { return e.err }

// streamAnswer forwards each generated increment as a token event and returns
// the concatenated answer. Emit failures are returned unwrapped; generation
// failures are wrapped as upstream errors.
func streamAnswer(ctx context.Context, client llm.LLMClient, req *llm.ChatCompletionRequest, emit EmitFunc) (string, error) {
	var answer strings.Builder
	_, err := client.CreateChatCompletionStream(ctx, req, func(chunk *llm.StreamChunk) error {
		text := chunk.Text()
		if text == "" {
			return nil
		}
		answer.WriteString(text)
		if err := emit(domain.TokenEvent(text)); err != nil {
			return &streamErr{err: err}
		}
		return nil
	})
	if err == nil {
		return answer.String(), nil
	}
	var se *streamErr
	if errors.As(err, &se) {
		return answer.String(), se.err
	}
	return answer.String(), domain.NewUpstreamError("generation failed", err)
}

func buildMessages(system string, history []llm.ChatMessage, query string) []llm.ChatMessage {
	msgs := make([]llm.ChatMessage, 0, len(history)+2)
	if system != "" {
		msgs = append(msgs, llm.ChatMessage{Role: llm.RoleSystem, Content: system})
	}
	msgs = append(msgs, history...)
	return append(msgs, llm.ChatMessage{Role: llm.RoleUser, Content: query})
}

func failed(answer string, md domain.Metadata, err error) Result {
	return Result{Outcome: OutcomeFailure, Answer: answer, Metadata: md, Err: err}
}
