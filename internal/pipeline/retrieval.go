package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xiaot623/gogo/ragrouter/internal/adapter/embedding"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/llm"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/vectorindex"
	"github.com/xiaot623/gogo/ragrouter/internal/domain"
)

const (
	DefaultTopK      = 5
	noDocumentsFound = "No relevant documents found."
)

// Retrieval answers from the most similar document chunks.
type Retrieval struct {
	embedder embedding.Embedder
	index    vectorindex.Index
	llm      llm.LLMClient
	model    string
	topK     int
	logger   *slog.Logger
}

// NewRetrieval creates a new document question-answering pipeline.
func NewRetrieval(embedder embedding.Embedder, index vectorindex.Index, client llm.LLMClient, model string, topK int) *Retrieval {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retrieval{
		embedder: embedder,
		index:    index,
		llm:      client,
		model:    model,
		topK:     topK,
		logger:   slog.Default().With("component", "pipeline", "destination", domain.DestinationDocumentQA),
	}
}

// Run retrieves the top chunks for the message and streams an answer grounded on them.
func (p *Retrieval) Run(ctx context.Context, in Input, emit EmitFunc) Result {
	md := domain.RetrievalMetadata()

	vector, err := p.embedder.EmbedText(ctx, in.Query)
	if err != nil {
		return failed("", md, domain.NewUpstreamError("embedding failed", err))
	}
	hits, err := p.index.Search(ctx, vector, p.topK)
	if err != nil {
		return failed("", md, domain.NewUpstreamError("vector search failed", err))
	}
	p.logger.Debug("retrieved chunks", "count", len(hits))

	answer, err := streamAnswer(ctx, p.llm, &llm.ChatCompletionRequest{
		Model:       p.model,
		Messages:    buildMessages(fmt.Sprintf(retrievalSystemPrompt, formatContext(hits)), in.History, in.Query),
		Temperature: 0,
		Operation:   "answer_documents",
	}, emit)
	if err != nil {
		return failed(answer, md, err)
	}
	return Result{Outcome: OutcomeSuccess, Answer: answer, Metadata: md}
}

func formatContext(hits []domain.SearchResult) string {
	if len(hits) == 0 {
		return noDocumentsFound
	}
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = fmt.Sprintf("[Document %d: %s (Score: %.2f)]\n%s", i+1, h.Filename, h.Score, h.Text)
	}
	return strings.Join(parts, "\n\n")
}
