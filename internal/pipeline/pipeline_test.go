package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/ragrouter/internal/adapter/embedding"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/llm"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/vectorindex"
	"github.com/xiaot623/gogo/ragrouter/internal/domain"
)

type recorder struct {
	events []domain.StreamEvent
	failAt int
}

func (r *recorder) emit(e domain.StreamEvent) error {
	if r.failAt > 0 && len(r.events)+1 >= r.failAt {
		return errors.New("client disconnected")
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) text() string {
	var b strings.Builder
	for _, e := range r.events {
		b.WriteString(e.Content)
	}
	return b.String()
}

func TestRetrieval_UsesContextAndStreams(t *testing.T) {
	ctx := context.Background()
	emb := embedding.NewMockEmbedder(64)
	idx := vectorindex.NewMemoryIndex(64)
	chunk := domain.Chunk{Text: "Refunds are accepted within 30 days.", Index: 0, TotalChunks: 1, Filename: "policy.pdf"}
	vec, err := emb.EmbedText(ctx, chunk.Text)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, "doc-1", []domain.Chunk{chunk}, [][]float32{vec}))

	var got *llm.ChatCompletionRequest
	client := &llm.MockClient{ChunkSize: 4, Respond: func(req *llm.ChatCompletionRequest) (string, error) {
		got = req
		return "Within 30 days [Source: policy.pdf]", nil
	}}
	history := []llm.ChatMessage{{Role: llm.RoleUser, Content: "hi"}, {Role: llm.RoleAssistant, Content: "hello"}}

	rec := &recorder{}
	res := NewRetrieval(emb, idx, client, "gpt-4o", 0).Run(ctx, Input{Query: "refund window?", History: history}, rec.emit)

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, domain.RetrievalMetadata(), res.Metadata)
	assert.Equal(t, "Within 30 days [Source: policy.pdf]", res.Answer)
	assert.Equal(t, res.Answer, rec.text())
	assert.Greater(t, len(rec.events), 1)

	require.NotNil(t, got)
	assert.Zero(t, got.Temperature)
	require.Len(t, got.Messages, 4)
	assert.Contains(t, got.Messages[0].Content, "[Document 1: policy.pdf (Score: ")
	assert.Contains(t, got.Messages[0].Content, ")]\nRefunds are accepted within 30 days.")
	assert.Equal(t, "refund window?", got.Messages[3].Content)
}

func TestRetrieval_NoHits(t *testing.T) {
	var system string
	client := &llm.MockClient{Respond: func(req *llm.ChatCompletionRequest) (string, error) {
		system = req.Messages[0].Content
		return "I don't know.", nil
	}}
	rec := &recorder{}
	res := NewRetrieval(embedding.NewMockEmbedder(8), vectorindex.NewMemoryIndex(8), client, "m", 5).
		Run(context.Background(), Input{Query: "anything"}, rec.emit)

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Contains(t, system, "Context:\nNo relevant documents found.")
}

func TestRetrieval_EmbeddingFailure(t *testing.T) {
	emb := embedding.NewMockEmbedder(8)
	emb.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("quota exceeded")
	}
	rec := &recorder{}
	res := NewRetrieval(emb, vectorindex.NewMemoryIndex(8), llm.NewMockClient(), "m", 5).
		Run(context.Background(), Input{Query: "q"}, rec.emit)

	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.Equal(t, domain.ErrorUpstream, domain.CodeOf(res.Err))
	assert.Empty(t, rec.events)
}

func TestFormatContext(t *testing.T) {
	got := formatContext([]domain.SearchResult{
		{Text: "alpha", Score: 0.912, Filename: "a.pdf"},
		{Text: "beta", Score: 0.5, Filename: "b.md"},
	})
	assert.Equal(t, "[Document 1: a.pdf (Score: 0.91)]\nalpha\n\n[Document 2: b.md (Score: 0.50)]\nbeta", got)
	assert.Equal(t, "No relevant documents found.", formatContext(nil))
}

func TestConversation_StreamsAtHigherTemperature(t *testing.T) {
	var got *llm.ChatCompletionRequest
	client := &llm.MockClient{Respond: func(req *llm.ChatCompletionRequest) (string, error) {
		got = req
		return "Hello! How can I help?", nil
	}}
	rec := &recorder{}
	res := NewConversation(client, "m").Run(context.Background(), Input{Query: "hello"}, rec.emit)

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, domain.ConversationMetadata(), res.Metadata)
	assert.Equal(t, "Hello! How can I help?", rec.text())
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
}

func TestConversation_EmitFailureStopsGeneration(t *testing.T) {
	client := &llm.MockClient{ChunkSize: 2, Respond: func(req *llm.ChatCompletionRequest) (string, error) {
		return "abcdefghij", nil
	}}
	rec := &recorder{failAt: 3}
	res := NewConversation(client, "m").Run(context.Background(), Input{Query: "hello"}, rec.emit)

	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.EqualError(t, res.Err, "client disconnected")
	assert.Len(t, rec.events, 2)
	assert.Equal(t, "abcdef", res.Answer)
}

func TestConversation_GenerationFailure(t *testing.T) {
	client := &llm.MockClient{Respond: func(req *llm.ChatCompletionRequest) (string, error) {
		return "", errors.New("503 service unavailable")
	}}
	res := NewConversation(client, "m").Run(context.Background(), Input{Query: "hello"}, (&recorder{}).emit)

	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.Equal(t, domain.ErrorUpstream, domain.CodeOf(res.Err))
	assert.Contains(t, res.Err.Error(), "503")
}

func TestHistoryMessages(t *testing.T) {
	msgs := HistoryMessages([]domain.Message{
		{Role: domain.RoleUser, Content: "q"},
		{Role: domain.RoleAssistant, Content: "a"},
	})
	assert.Equal(t, []llm.ChatMessage{{Role: llm.RoleUser, Content: "q"}, {Role: llm.RoleAssistant, Content: "a"}}, msgs)
}
