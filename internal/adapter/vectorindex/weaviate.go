package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/xiaot623/gogo/ragrouter/internal/domain"
)

// WeaviateIndex implements Index on a Weaviate class with externally
// supplied vectors.
type WeaviateIndex struct {
	client    *weaviate.Client
	class     string
	dimension int
	logger    *slog.Logger
}

// NewWeaviateIndex connects to the Weaviate instance at rawURL and stores
// chunks in class.
func NewWeaviateIndex(rawURL, apiKey, class string, dimension int) (*WeaviateIndex, error) {
	if class == "" {
		class = DefaultClassName
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid weaviate url: %q", rawURL)
	}
	cfg := weaviate.Config{Host: parsed.Host, Scheme: parsed.Scheme}
	if apiKey != "" {
		cfg.AuthConfig = auth.ApiKey{Value: apiKey}
	}
	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return &WeaviateIndex{
		client:    client,
		class:     class,
		dimension: dimension,
		logger:    slog.Default().With("component", "weaviate-index"),
	}, nil
}

func chunkClass(name string) *models.Class {
	filterable := true
	return &models.Class{
		Class:       name,
		Description: "A chunk of an uploaded document.",
		Vectorizer:  "none",
		VectorIndexConfig: map[string]any{
			"distance": "cosine",
		},
		Properties: []*models.Property{
			{Name: "text", DataType: []string{"text"}, Tokenization: "word"},
			{Name: "document_id", DataType: []string{"text"}, Tokenization: "field", IndexFilterable: &filterable},
			{Name: "filename", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "chunk_index", DataType: []string{"int"}},
			{Name: "total_chunks", DataType: []string{"int"}},
		},
	}
}

// EnsureCollection creates the chunk class when the getter reports it missing.
func (w *WeaviateIndex) EnsureCollection(ctx context.Context) error {
	if _, err := w.client.Schema().ClassGetter().WithClassName(w.class).Do(ctx); err == nil {
		return nil
	}
	w.logger.Info("collection not found, creating", "class", w.class)
	if err := w.client.Schema().ClassCreator().WithClass(chunkClass(w.class)).Do(ctx); err != nil {
		// Lost a creation race with another writer.
		if _, getErr := w.client.Schema().ClassGetter().WithClassName(w.class).Do(ctx); getErr == nil {
			return nil
		}
		return fmt.Errorf("create class %s: %w", w.class, err)
	}
	return nil
}

// Upsert imports chunks in batches. Object ids derive from document id and
// chunk index, so a repeat import replaces the earlier objects.
func (w *WeaviateIndex) Upsert(ctx context.Context, documentID string, chunks []domain.Chunk, vectors [][]float32) error {
	if err := checkUpsert(chunks, vectors, w.dimension); err != nil {
		return err
	}
	objects := chunkObjects(w.class, documentID, chunks, vectors)
	for start := 0; start < len(objects); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(objects))
		resp, err := w.client.Batch().ObjectsBatcher().WithObjects(objects[start:end]...).Do(ctx)
		if err != nil {
			return fmt.Errorf("batch import: %w", err)
		}
		if msgs := batchErrors(resp); len(msgs) > 0 {
			return fmt.Errorf("batch import: %d objects failed: %s", len(msgs), strings.Join(msgs, "; "))
		}
	}
	w.logger.Debug("upserted chunks", "document_id", documentID, "count", len(objects))
	return nil
}

func chunkObjects(class, documentID string, chunks []domain.Chunk, vectors [][]float32) []*models.Object {
	objects := make([]*models.Object, len(chunks))
	for i, c := range chunks {
		objects[i] = &models.Object{
			Class:  class,
			ID:     strfmt.UUID(PointID(documentID, c.Index)),
			Vector: vectors[i],
			Properties: map[string]any{
				"text":         c.Text,
				"document_id":  documentID,
				"filename":     c.Filename,
				"chunk_index":  c.Index,
				"total_chunks": c.TotalChunks,
			},
		}
	}
	return objects
}

func batchErrors(resp []models.ObjectsGetResponse) []string {
	var msgs []string
	for _, item := range resp {
		if item.Result == nil || item.Result.Errors == nil {
			continue
		}
		for _, e := range item.Result.Errors.Error {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}

type searchResponse struct {
	Get map[string][]struct {
		Text        string `json:"text"`
		DocumentID  string `json:"document_id"`
		Filename    string `json:"filename"`
		ChunkIndex  int    `json:"chunk_index"`
		TotalChunks int    `json:"total_chunks"`
		Additional  struct {
			Distance float64 `json:"distance"`
		} `json:"_additional"`
	} `json:"Get"`
}

// Search runs a nearVector query and converts cosine distance to similarity.
func (w *WeaviateIndex) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return []domain.SearchResult{}, nil
	}
	nearVector := w.client.GraphQL().NearVectorArgBuilder().WithVector(vector)
	fields := []graphql.Field{
		{Name: "text"},
		{Name: "document_id"},
		{Name: "filename"},
		{Name: "chunk_index"},
		{Name: "total_chunks"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}
	resp, err := w.client.GraphQL().Get().
		WithClassName(w.class).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search: %w", err)
	}
	return parseSearch(resp, w.class)
}

func parseSearch(resp *models.GraphQLResponse, class string) ([]domain.SearchResult, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil graphql response")
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("weaviate search: %s", strings.Join(msgs, "; "))
	}
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql data: %w", err)
	}
	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode graphql data: %w", err)
	}
	hits := parsed.Get[class]
	results := make([]domain.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, domain.SearchResult{
			Text:       h.Text,
			Score:      1 - h.Additional.Distance,
			DocumentID: h.DocumentID,
			Filename:   h.Filename,
			ChunkIndex: h.ChunkIndex,
		})
	}
	return results, nil
}

// DeleteByDocument removes all objects whose document_id matches.
func (w *WeaviateIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	where := filters.Where().
		WithPath([]string{"document_id"}).
		WithOperator(filters.Equal).
		WithValueText(documentID)
	_, err := w.client.Batch().ObjectsBatchDeleter().
		WithClassName(w.class).
		WithOutput("minimal").
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return nil
}
