package llm

import (
	"log/slog"
	"time"
)

// NewLLMClient creates an LLM client. With mock set it returns a MockClient;
// otherwise a langchaingo-backed client.
func NewLLMClient(mock bool, baseURL, apiKey, model string, timeout time.Duration) (LLMClient, error) {
	if mock {
		slog.Info("mock mode detected, using mock LLM client")
		return NewMockClient(), nil
	}
	return NewLangChainClient(baseURL, apiKey, model, timeout)
}
