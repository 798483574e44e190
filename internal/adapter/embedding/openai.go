package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIEmbedder implements Embedder using OpenAI-compatible embedding APIs.
type OpenAIEmbedder struct {
	embedder embeddings.Embedder
	timeout  time.Duration
	logger   *slog.Logger
}

// NewOpenAIEmbedder creates an embedder for the given model.
func NewOpenAIEmbedder(baseURL, apiKey, model string, batchSize int, timeout time.Duration) (*OpenAIEmbedder, error) {
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithEmbeddingModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}

	embedOpts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if batchSize > 0 {
		embedOpts = append(embedOpts, embeddings.WithBatchSize(batchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, embedOpts...)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	return &OpenAIEmbedder{
		embedder: embedder,
		timeout:  timeout,
		logger:   slog.Default().With("component", "openai-embedder"),
	}, nil
}

// EmbedText generates a vector embedding for a single text string.
func (e *OpenAIEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vector")
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	e.logger.Debug("generating embeddings", "count", len(texts))
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}
