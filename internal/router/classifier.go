// Package router decides which pipeline answers a message.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xiaot623/gogo/ragrouter/internal/adapter/llm"
	"github.com/xiaot623/gogo/ragrouter/internal/domain"
)

// Decision is the outcome of classifying one message.
type Decision struct {
	Destination domain.Destination
	Reasoning   string
	// Degraded is set when classification failed and the fallback was used.
	Degraded bool
}

// legacy route tags still produced by older prompts.
var aliases = map[string]domain.Destination{
	"rag":          domain.DestinationDocumentQA,
	"sql":          domain.DestinationStructuredQuery,
	"general_chat": domain.DestinationConversation,
}

// Classifier routes messages with a JSON-mode completion.
type Classifier struct {
	llm    llm.LLMClient
	model  string
	logger *slog.Logger
}

// NewClassifier creates a new LLM-backed route classifier.
func NewClassifier(client llm.LLMClient, model string) *Classifier {
	return &Classifier{
		llm:    client,
		model:  model,
		logger: slog.Default().With("component", "router"),
	}
}

// Classify always returns a decision. Any failure falls back to conversation.
func (c *Classifier) Classify(ctx context.Context, utterance string) Decision {
	resp, err := c.llm.CreateChatCompletion(ctx, &llm.ChatCompletionRequest{
		Model: c.model,
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: utterance},
		},
		Temperature: 0,
		JSONMode:    true,
		Operation:   "classify",
	})
	if err != nil {
		return c.fallback(err)
	}

	decision, err := parseDecision(resp.Content())
	if err != nil {
		return c.fallback(err)
	}
	c.logger.Info("route decided", "destination", decision.Destination, "reasoning", decision.Reasoning)
	return decision
}

func (c *Classifier) fallback(err error) Decision {
	c.logger.Error("router failed, falling back to conversation", "err", err)
	return Decision{
		Destination: domain.DestinationConversation,
		Reasoning:   "Router error: " + err.Error(),
		Degraded:    true,
	}
}

func parseDecision(raw string) (Decision, error) {
	var out struct {
		Destination string `json:"destination"`
		Reasoning   string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		return Decision{}, fmt.Errorf("invalid router output: %w", err)
	}

	tag := strings.ToLower(strings.TrimSpace(out.Destination))
	dest := domain.Destination(tag)
	if alias, ok := aliases[tag]; ok {
		dest = alias
	}
	if !dest.Valid() {
		return Decision{}, fmt.Errorf("unknown destination %q", out.Destination)
	}
	return Decision{Destination: dest, Reasoning: out.Reasoning}, nil
}

// stripFences removes a surrounding ``` or ```json fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "{[") {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
