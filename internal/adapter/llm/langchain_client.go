package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainClient talks to an OpenAI-compatible endpoint through langchaingo.
type LangChainClient struct {
	model   llms.Model
	name    string
	timeout time.Duration
}

// NewLangChainClient creates a client for the given chat model.
func NewLangChainClient(baseURL, apiKey, model string, timeout time.Duration) (*LangChainClient, error) {
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return &LangChainClient{model: client, name: model, timeout: timeout}, nil
}

// CreateChatCompletion sends a non-streaming request.
func (c *LangChainClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.model.GenerateContent(ctx, toMessageContent(req.Messages), c.callOptions(req)...)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("generate content: empty response")
	}

	choice := resp.Choices[0]
	return &ChatCompletionResponse{
		Model: c.modelName(req),
		Choices: []Choice{{
			Message:      &ChatMessage{Role: RoleAssistant, Content: choice.Content},
			FinishReason: choice.StopReason,
		}},
		Usage: usageFrom(choice.GenerationInfo),
	}, nil
}

// CreateChatCompletionStream streams increments to callback as they arrive.
func (c *LangChainClient) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*Usage, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	model := c.modelName(req)
	opts := append(c.callOptions(req), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		return callback(&StreamChunk{
			Model:   model,
			Choices: []Choice{{Delta: &ChatMessage{Role: RoleAssistant, Content: string(chunk)}}},
		})
	}))

	resp, err := c.model.GenerateContent(ctx, toMessageContent(req.Messages), opts...)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}
	return usageFrom(resp.Choices[0].GenerationInfo), nil
}

func (c *LangChainClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *LangChainClient) modelName(req *ChatCompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return c.name
}

func (c *LangChainClient) callOptions(req *ChatCompletionRequest) []llms.CallOption {
	opts := []llms.CallOption{
		llms.WithModel(c.modelName(req)),
		llms.WithTemperature(req.Temperature),
	}
	if req.JSONMode {
		opts = append(opts, llms.WithJSONMode())
	}
	return opts
}

func toMessageContent(messages []ChatMessage) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case RoleSystem:
			role = llms.ChatMessageTypeSystem
		case RoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}

func usageFrom(info map[string]any) *Usage {
	if info == nil {
		return nil
	}
	return &Usage{
		PromptTokens:     intField(info, "PromptTokens"),
		CompletionTokens: intField(info, "CompletionTokens"),
		TotalTokens:      intField(info, "TotalTokens"),
	}
}

func intField(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
