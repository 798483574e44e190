package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/xiaot623/gogo/ragrouter/internal/adapter/embedding"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/vectorindex"
	"github.com/xiaot623/gogo/ragrouter/internal/domain"
	"github.com/xiaot623/gogo/ragrouter/internal/observability"
	store "github.com/xiaot623/gogo/ragrouter/internal/repository"
)

const (
	DefaultMaxUploadBytes = 50 << 20
	DefaultBatchSize      = 100
	DefaultPoolSize       = 4
)

// Options tunes the ingestion service. Zero values take defaults.
type Options struct {
	ChunkSize      int
	ChunkOverlap   int
	BatchSize      int
	PoolSize       int
	MaxUploadBytes int64
}

// Service runs the upload pipeline and manages document records.
type Service struct {
	store     store.Store
	embedder  embedding.Embedder
	index     vectorindex.Index
	chunker   *Chunker
	pool      *ants.Pool
	batchSize int
	maxBytes  int64
	logger    *slog.Logger
}

func NewService(st store.Store, embedder embedding.Embedder, index vectorindex.Index, opts Options) (*Service, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultPoolSize
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	pool, err := ants.NewPool(opts.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}
	return &Service{
		store:     st,
		embedder:  embedder,
		index:     index,
		chunker:   NewChunker(opts.ChunkSize, opts.ChunkOverlap),
		pool:      pool,
		batchSize: opts.BatchSize,
		maxBytes:  opts.MaxUploadBytes,
		logger:    slog.Default().With("component", "ingestion"),
	}, nil
}

// Release stops the worker pool.
func (s *Service) Release() {
	s.pool.Release()
}

// ProcessDocument validates, stores and indexes one upload. Validation
// failures return before any record is written. Later failures leave the
// record in status error and return a document processing error.
func (s *Service) ProcessDocument(ctx context.Context, filename, contentType string, data []byte) (*domain.Document, error) {
	fileType, ok := SupportedTypes[contentType]
	if !ok {
		return nil, domain.NewValidationError(fmt.Sprintf("Unsupported file type: %s", contentType), nil)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, domain.NewTooLargeError(fmt.Sprintf("File size (%d bytes) exceeds maximum (%d bytes)", len(data), s.maxBytes))
	}
	if len(data) == 0 {
		return nil, domain.NewValidationError("File is empty", nil)
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:        uuid.NewString(),
		Filename:  filename,
		FileType:  fileType,
		SizeBytes: int64(len(data)),
		Status:    domain.DocumentStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	logger := s.logger.With("document_id", doc.ID, "filename", filename)
	logger.Info("processing document", "bytes", len(data), "file_type", fileType)

	chunkCount, err := s.ingest(ctx, doc, data, contentType)
	if err != nil {
		logger.Error("document processing failed", "err", err)
		doc.Status = domain.DocumentStatusError
		doc.ErrorMessage = err.Error()
		doc.UpdatedAt = time.Now().UTC()
		if uerr := s.store.UpdateDocument(context.WithoutCancel(ctx), doc); uerr != nil {
			logger.Error("failed to record document error", "err", uerr)
		}
		observability.DocumentProcessed(string(domain.DocumentStatusError))
		return doc, domain.NewDocumentProcessingError("Processing failed", err)
	}

	doc.Status = domain.DocumentStatusReady
	doc.ChunkCount = chunkCount
	doc.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}
	observability.DocumentProcessed(string(domain.DocumentStatusReady))
	logger.Info("document processed", "chunks", chunkCount)
	return doc, nil
}

func (s *Service) ingest(ctx context.Context, doc *domain.Document, data []byte, contentType string) (int, error) {
	text, err := Extract(data, contentType)
	if err != nil {
		return 0, err
	}
	chunks, err := s.chunker.Chunk(text, doc.ID, doc.Filename)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, errNoText
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding failed: %w", err)
	}

	if err := s.index.EnsureCollection(ctx); err != nil {
		return 0, fmt.Errorf("ensure collection: %w", err)
	}
	if err := s.index.Upsert(ctx, doc.ID, chunks, vectors); err != nil {
		return 0, fmt.Errorf("upsert vectors: %w", err)
	}
	return len(chunks), nil
}

// embed sends batches to the worker pool and reassembles the vectors in
// input order.
func (s *Service) embed(ctx context.Context, texts []string) ([][]float32, error) {
	nBatches := (len(texts) + s.batchSize - 1) / s.batchSize
	results := make([][][]float32, nBatches)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for b := 0; b < nBatches; b++ {
		start := b * s.batchSize
		end := min(start+s.batchSize, len(texts))
		batch := texts[start:end]
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				setErr(err)
				return
			}
			vectors, err := s.embedder.EmbedTexts(ctx, batch)
			if err != nil {
				setErr(err)
				return
			}
			if len(vectors) != len(batch) {
				setErr(fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch)))
				return
			}
			results[b] = vectors
		})
		if err != nil {
			wg.Done()
			setErr(err)
			break
		}
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	out := make([][]float32, 0, len(texts))
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// ListDocuments returns all documents, newest first.
func (s *Service) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

func (s *Service) GetDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if doc == nil {
		return nil, domain.NewNotFoundError("Document", documentID)
	}
	return doc, nil
}

// DeleteDocument removes the record and, best effort, its vectors.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if err := s.index.DeleteByDocument(ctx, documentID); err != nil {
		s.logger.Warn("failed to delete vectors", "document_id", documentID, "err", err)
	}
	deleted, err := s.store.DeleteDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if !deleted {
		return domain.NewNotFoundError("Document", documentID)
	}
	s.logger.Info("deleted document", "document_id", documentID, "filename", doc.Filename)
	return nil
}
