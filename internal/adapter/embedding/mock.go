package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"
	"unicode"
)

// MockEmbedder is a test double for Embedder.
// The default vectors hash each word into a bucket, so texts sharing words
// land close together under cosine similarity.
type MockEmbedder struct {
	Dimension int

	// EmbedTextsFunc replaces the default behaviour when set.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	calls atomic.Int64
}

// NewMockEmbedder creates a mock embedder producing vectors of dim length.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{Dimension: dim}
}

// EmbedText generates a deterministic embedding for text.
func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates deterministic embeddings for multiple texts.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = hashVector(text, m.dim())
	}
	return out, nil
}

// CallCount returns the number of batch calls made.
func (m *MockEmbedder) CallCount() int {
	return int(m.calls.Load())
}

func (m *MockEmbedder) dim() int {
	if m.Dimension <= 0 {
		return 64
	}
	return m.Dimension
}

func hashVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[int(h.Sum32())%dim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
