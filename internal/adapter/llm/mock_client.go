package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// MockClient is a deterministic LLMClient used in MOCK mode and tests.
// Respond overrides the built-in heuristics when set.
type MockClient struct {
	Respond func(req *ChatCompletionRequest) (string, error)
	// ChunkSize controls how streamed responses are split. Defaults to 10.
	ChunkSize int
}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// CreateChatCompletion returns a mock response.
func (m *MockClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := m.generateMockResponse(req)
	if err != nil {
		return nil, err
	}

	return &ChatCompletionResponse{
		Model: req.Model,
		Choices: []Choice{{
			Message:      &ChatMessage{Role: RoleAssistant, Content: content},
			FinishReason: "stop",
		}},
		Usage: m.usage(req, content),
	}, nil
}

// CreateChatCompletionStream simulates a streaming response.
func (m *MockClient) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*Usage, error) {
	content, err := m.generateMockResponse(req)
	if err != nil {
		return nil, err
	}

	size := m.ChunkSize
	if size <= 0 {
		size = 10
	}
	for _, chunk := range splitIntoChunks(content, size) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := callback(&StreamChunk{
			Model:   req.Model,
			Choices: []Choice{{Delta: &ChatMessage{Role: RoleAssistant, Content: chunk}}},
		}); err != nil {
			return nil, err
		}
	}

	return m.usage(req, content), nil
}

// generateMockResponse produces a plausible answer for each kind of request:
// a routing decision for JSON-mode calls, SQL for text-to-SQL prompts, and an
// echo of the last user message otherwise.
func (m *MockClient) generateMockResponse(req *ChatCompletionRequest) (string, error) {
	if m.Respond != nil {
		return m.Respond(req)
	}

	lastUserMessage := lastContent(req.Messages, RoleUser)
	if req.JSONMode {
		destination, reasoning := mockRoute(lastUserMessage)
		b, _ := json.Marshal(map[string]string{"destination": destination, "reasoning": reasoning})
		return string(b), nil
	}
	if strings.Contains(lastContent(req.Messages, RoleSystem), "PostgreSQL") {
		return "SELECT NULL", nil
	}
	if lastUserMessage == "" {
		return "[MOCK] This is a mock response from the LLM client.", nil
	}
	return fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(lastUserMessage, 100)), nil
}

func mockRoute(text string) (string, string) {
	lower := strings.ToLower(text)
	for _, w := range []string{"customer", "order", "product", "employee", "sales", "revenue", "supplier", "how many"} {
		if strings.Contains(lower, w) {
			return "structured_query", "[MOCK] mentions business data: " + w
		}
	}
	for _, w := range []string{"hello", "hi", "who are you", "poem"} {
		if strings.HasPrefix(lower, w) {
			return "conversation", "[MOCK] greeting or creative request"
		}
	}
	return "document_qa", "[MOCK] defaulting to document search"
}

func lastContent(messages []ChatMessage, role string) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == role {
			return messages[i].Content
		}
	}
	return ""
}

func (m *MockClient) usage(req *ChatCompletionRequest, content string) *Usage {
	prompt := 0
	for _, msg := range req.Messages {
		prompt += len(msg.Content) / 4
	}
	return &Usage{
		PromptTokens:     prompt,
		CompletionTokens: len(content) / 4,
		TotalTokens:      prompt + len(content)/4,
	}
}

// splitIntoChunks splits a string into chunks of approximately the given size.
// Chunks never split a UTF-8 sequence.
func splitIntoChunks(s string, chunkSize int) []string {
	if len(s) == 0 {
		return nil
	}

	var chunks []string
	runes := []rune(s)
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
