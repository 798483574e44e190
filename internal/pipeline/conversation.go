package pipeline

import (
	"context"

	"github.com/xiaot623/gogo/ragrouter/internal/adapter/llm"
	"github.com/xiaot623/gogo/ragrouter/internal/domain"
)

const conversationTemperature = 0.7

// Conversation streams a free-form reply with recent history.
type Conversation struct {
	llm   llm.LLMClient
	model string
}

// NewConversation creates a new conversational pipeline.
func NewConversation(client llm.LLMClient, model string) *Conversation {
	return &Conversation{llm: client, model: model}
}

// Run streams a model reply to the message and its history.
func (p *Conversation) Run(ctx context.Context, in Input, emit EmitFunc) Result {
	md := domain.ConversationMetadata()
	answer, err := streamAnswer(ctx, p.llm, &llm.ChatCompletionRequest{
		Model:       p.model,
		Messages:    buildMessages(conversationSystemPrompt, in.History, in.Query),
		Temperature: conversationTemperature,
		Operation:   "converse",
	}, emit)
	if err != nil {
		return failed(answer, md, err)
	}
	return Result{Outcome: OutcomeSuccess, Answer: answer, Metadata: md}
}
