package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/ragrouter/internal/domain"
)

func chunksFor(docID, filename string, texts ...string) []domain.Chunk {
	out := make([]domain.Chunk, len(texts))
	for i, t := range texts {
		out[i] = domain.Chunk{Text: t, Index: i, TotalChunks: len(texts), DocumentID: docID, Filename: filename}
	}
	return out
}

func TestMemoryIndex_SearchOrdersByScore(t *testing.T) {
	idx := NewMemoryIndex(2)
	ctx := context.Background()
	require.NoError(t, idx.EnsureCollection(ctx))

	chunks := chunksFor("doc-1", "a.txt", "east", "north-east", "north")
	vectors := [][]float32{{1, 0}, {1, 1}, {0, 1}}
	require.NoError(t, idx.Upsert(ctx, "doc-1", chunks, vectors))

	results, err := idx.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "east", results[0].Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "north-east", results[1].Text)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Equal(t, "a.txt", results[0].Filename)
}

func TestMemoryIndex_UpsertIsIdempotent(t *testing.T) {
	idx := NewMemoryIndex(0)
	ctx := context.Background()
	chunks := chunksFor("doc-1", "a.txt", "one", "two")
	vectors := [][]float32{{1, 0}, {0, 1}}

	require.NoError(t, idx.Upsert(ctx, "doc-1", chunks, vectors))
	require.NoError(t, idx.Upsert(ctx, "doc-1", chunks, vectors))
	assert.Equal(t, 2, idx.Len())
}

func TestMemoryIndex_DeleteByDocument(t *testing.T) {
	idx := NewMemoryIndex(0)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "doc-1", chunksFor("doc-1", "a", "x"), [][]float32{{1}}))
	require.NoError(t, idx.Upsert(ctx, "doc-2", chunksFor("doc-2", "b", "y"), [][]float32{{1}}))

	require.NoError(t, idx.DeleteByDocument(ctx, "doc-1"))

	results, err := idx.Search(ctx, []float32{1}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-2", results[0].DocumentID)
}

func TestMemoryIndex_RejectsMismatchedInput(t *testing.T) {
	idx := NewMemoryIndex(3)
	ctx := context.Background()

	err := idx.Upsert(ctx, "d", chunksFor("d", "f", "a", "b"), [][]float32{{1, 2, 3}})
	assert.ErrorContains(t, err, "got 1 vectors for 2 chunks")

	err = idx.Upsert(ctx, "d", chunksFor("d", "f", "a"), [][]float32{{1, 2}})
	assert.ErrorContains(t, err, "dimension 2, want 3")
}

func TestMemoryIndex_EmptySearch(t *testing.T) {
	idx := NewMemoryIndex(0)
	results, err := idx.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPointID_Stable(t *testing.T) {
	assert.Equal(t, PointID("doc", 3), PointID("doc", 3))
	assert.NotEqual(t, PointID("doc", 3), PointID("doc", 4))
	assert.NotEqual(t, PointID("doc", 3), PointID("other", 3))
}
