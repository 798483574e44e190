package vectorindex

import (
	"cmp"
	"context"
	"math"
	"slices"
	"sync"

	"github.com/xiaot623/gogo/ragrouter/internal/domain"
)

type memoryPoint struct {
	chunk  domain.Chunk
	vector []float32
}

// MemoryIndex is an in-process Index using brute-force cosine similarity.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	points    map[string]memoryPoint
}

// NewMemoryIndex creates an empty index. A dimension of 0 skips size checks.
func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{dimension: dimension, points: make(map[string]memoryPoint)}
}

// EnsureCollection is a no-op.
func (m *MemoryIndex) EnsureCollection(ctx context.Context) error {
	return nil
}

// Upsert stores chunks keyed by their stable point id.
func (m *MemoryIndex) Upsert(ctx context.Context, documentID string, chunks []domain.Chunk, vectors [][]float32) error {
	if err := checkUpsert(chunks, vectors, m.dimension); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range chunks {
		c.DocumentID = documentID
		m.points[PointID(documentID, c.Index)] = memoryPoint{chunk: c, vector: slices.Clone(vectors[i])}
	}
	return nil
}

// Search scans every point.
func (m *MemoryIndex) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return []domain.SearchResult{}, nil
	}
	m.mu.RLock()
	results := make([]domain.SearchResult, 0, len(m.points))
	for _, p := range m.points {
		results = append(results, domain.SearchResult{
			Text:       p.chunk.Text,
			Score:      cosine(vector, p.vector),
			DocumentID: p.chunk.DocumentID,
			Filename:   p.chunk.Filename,
			ChunkIndex: p.chunk.Index,
		})
	}
	m.mu.RUnlock()

	slices.SortFunc(results, func(a, b domain.SearchResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.DocumentID, b.DocumentID); c != 0 {
			return c
		}
		return cmp.Compare(a.ChunkIndex, b.ChunkIndex)
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteByDocument drops the document's points.
func (m *MemoryIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if p.chunk.DocumentID == documentID {
			delete(m.points, id)
		}
	}
	return nil
}

// Len returns the number of stored points.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
