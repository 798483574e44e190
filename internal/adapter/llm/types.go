package llm

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatCompletionRequest is a provider-neutral chat request.
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	// JSONMode asks the provider for a single JSON object as output.
	JSONMode bool `json:"json_mode,omitempty"`
	// Operation labels the call for latency metrics (classify, generate_sql, ...).
	Operation string `json:"-"`
}

// ChatMessage represents a chat message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse represents a non-streaming completion.
type ChatCompletionResponse struct {
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Content returns the text of the first choice.
func (r *ChatCompletionResponse) Content() string {
	if r == nil || len(r.Choices) == 0 || r.Choices[0].Message == nil {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Choice represents a completion choice.
type Choice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	Delta        *ChatMessage `json:"delta,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamChunk is a single increment of a streamed completion.
type StreamChunk struct {
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

// Text returns the delta text carried by the chunk.
func (c *StreamChunk) Text() string {
	if c == nil || len(c.Choices) == 0 || c.Choices[0].Delta == nil {
		return ""
	}
	return c.Choices[0].Delta.Content
}

// StreamCallback is invoked for each chunk of a streamed completion.
type StreamCallback func(chunk *StreamChunk) error
