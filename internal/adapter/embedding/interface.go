// Package embedding turns text into vectors for similarity search.
package embedding

import "context"

// Embedder generates vector embeddings from text.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates embeddings for multiple texts in one batch.
	// The result has one vector per input, in input order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

var (
	_ Embedder = (*OpenAIEmbedder)(nil)
	_ Embedder = (*MockEmbedder)(nil)
	_ Embedder = (*CachedEmbedder)(nil)
)
