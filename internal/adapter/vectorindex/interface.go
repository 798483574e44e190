// Package vectorindex stores document chunk embeddings and answers
// nearest-neighbour queries over them.
package vectorindex

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/ragrouter/internal/domain"
)

const (
	// DefaultClassName is the collection holding document chunks.
	DefaultClassName = "DocumentChunk"
	// DefaultDimension matches text-embedding-3-small.
	DefaultDimension = 1536

	upsertBatchSize = 100
)

// Index is a vector store for document chunks. Scores are cosine similarity,
// higher is closer.
type Index interface {
	// EnsureCollection creates the chunk collection if it does not exist.
	EnsureCollection(ctx context.Context) error
	// Upsert writes one point per chunk. Re-upserting the same document
	// overwrites its points in place.
	Upsert(ctx context.Context, documentID string, chunks []domain.Chunk, vectors [][]float32) error
	// Search returns up to topK chunks in descending score order.
	Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error)
	// DeleteByDocument removes every point of the document.
	DeleteByDocument(ctx context.Context, documentID string) error
}

var (
	_ Index = (*WeaviateIndex)(nil)
	_ Index = (*MemoryIndex)(nil)
)

var pointNamespace = uuid.MustParse("6f1c2a8e-4b7d-5e90-a1c3-2d4e6f8a0b1c")

// PointID returns the stable id of a chunk point.
func PointID(documentID string, chunkIndex int) string {
	return uuid.NewSHA1(pointNamespace, []byte(documentID+":"+strconv.Itoa(chunkIndex))).String()
}

func checkUpsert(chunks []domain.Chunk, vectors [][]float32, dim int) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if dim <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return nil
}
