package service

import (
	"context"
	"time"

	"github.com/xiaot623/gogo/ragrouter/internal/adapter/llm"
	"github.com/xiaot623/gogo/ragrouter/internal/domain"
	"github.com/xiaot623/gogo/ragrouter/internal/observability"
)

// instrumentedClient wraps the model client used by the classifier and the
// pipelines. Every call observes latency per operation and, when the context
// carries a run id, records an llm_call_done event.
type instrumentedClient struct {
	inner   llm.LLMClient
	service *Service
}

var _ llm.LLMClient = (*instrumentedClient)(nil)

func (c *instrumentedClient) CreateChatCompletion(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	startTime := time.Now()
	resp, err := c.inner.CreateChatCompletion(ctx, req)

	var usage *llm.Usage
	model := req.Model
	if resp != nil {
		usage = resp.Usage
		if resp.Model != "" {
			model = resp.Model
		}
	}
	c.done(ctx, req.Operation, model, startTime, usage, err)
	return resp, err
}

func (c *instrumentedClient) CreateChatCompletionStream(ctx context.Context, req *llm.ChatCompletionRequest, callback llm.StreamCallback) (*llm.Usage, error) {
	startTime := time.Now()
	responseModel := req.Model

	// Wrap callback to capture model
	wrapperCallback := func(chunk *llm.StreamChunk) error {
		if chunk.Model != "" {
			responseModel = chunk.Model
		}
		return callback(chunk)
	}

	usage, err := c.inner.CreateChatCompletionStream(ctx, req, wrapperCallback)
	c.done(ctx, req.Operation, responseModel, startTime, usage, err)
	return usage, err
}

func (c *instrumentedClient) done(ctx context.Context, operation, model string, startTime time.Time, usage *llm.Usage, err error) {
	latency := time.Since(startTime)
	observability.ObserveLLMLatency(operation, latency)

	runID := runIDFrom(ctx)
	if runID == "" {
		return
	}
	payload := domain.LLMCallDonePayload{
		Operation: operation,
		Model:     model,
		LatencyMs: latency.Milliseconds(),
	}
	if usage != nil {
		payload.PromptTokens = usage.PromptTokens
		payload.CompletionTokens = usage.CompletionTokens
		payload.TotalTokens = usage.TotalTokens
	}
	if err != nil {
		payload.Error = err.Error()
	}
	c.service.traceEvent(ctx, runID, domain.EventTypeLLMCallDone, payload)
}
