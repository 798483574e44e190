package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/gogo/ragrouter/config"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/embedding"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/llm"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/sqlengine"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/vectorindex"
	"github.com/xiaot623/gogo/ragrouter/internal/ingestion"
	store "github.com/xiaot623/gogo/ragrouter/internal/repository"
	"github.com/xiaot623/gogo/ragrouter/internal/safety"
	"github.com/xiaot623/gogo/ragrouter/internal/service"
	httptransport "github.com/xiaot623/gogo/ragrouter/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("ragrouter stopped with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))

	slog.Info("starting ragrouter",
		"version", cfg.Version,
		"port", cfg.HTTPPort,
		"mode", cfg.Mode,
		"sql_engine", cfg.SQLEngineDriver,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer db.Close()

	// Initialize model and index collaborators
	llmClient, err := llm.NewLLMClient(cfg.IsMock(), cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.ChatModel, cfg.LLMTimeout)
	if err != nil {
		return fmt.Errorf("initialize llm client: %w", err)
	}
	embedder, closeEmbedder, err := newEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("initialize embedder: %w", err)
	}
	defer closeEmbedder()
	index, err := newIndex(cfg)
	if err != nil {
		return fmt.Errorf("initialize vector index: %w", err)
	}

	// Initialize SQL engine and its safety gate
	engine, err := sqlengine.Open(sqlengine.Dialect(cfg.SQLEngineDriver), cfg.SQLEngineDSN, sqlengine.WithTimeout(cfg.SQLTimeout))
	if err != nil {
		return fmt.Errorf("initialize sql engine: %w", err)
	}
	defer engine.Close()
	validator, err := safety.NewValidator(ctx, nil)
	if err != nil {
		return fmt.Errorf("initialize query validator: %w", err)
	}

	// Initialize document ingestion
	documents, err := ingestion.NewService(db, embedder, index, ingestion.Options{
		ChunkSize:      cfg.ChunkSize,
		ChunkOverlap:   cfg.ChunkOverlap,
		BatchSize:      cfg.EmbedBatchSize,
		PoolSize:       cfg.EmbedPoolSize,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		return fmt.Errorf("initialize ingestion: %w", err)
	}
	defer documents.Release()

	// Initialize service
	svc := service.New(service.Deps{
		Store:     db,
		LLM:       llmClient,
		Embedder:  embedder,
		Index:     index,
		SQLEngine: engine,
		Validator: validator,
		Documents: documents,
		Config:    cfg,
	})

	server := httptransport.NewServer(svc, cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		slog.Info("http server listening", "addr", addr)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down ragrouter")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("failed to shutdown http server gracefully", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("ragrouter stopped")
	return nil
}

// newEmbedder returns the embedder and a release func for its cache.
func newEmbedder(cfg *config.Config) (embedding.Embedder, func(), error) {
	noop := func() {}
	if cfg.IsMock() {
		return embedding.NewMockEmbedder(cfg.VectorDimension), noop, nil
	}
	remote, err := embedding.NewOpenAIEmbedder(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbedBatchSize, cfg.LLMTimeout)
	if err != nil {
		return nil, noop, err
	}
	if cfg.EmbedCacheDir == "" {
		return remote, noop, nil
	}
	cached, err := embedding.NewCachedEmbedder(remote, cfg.EmbeddingModel, cfg.EmbedCacheDir)
	if err != nil {
		return nil, noop, err
	}
	return cached, func() {
		if err := cached.Close(); err != nil {
			slog.Warn("failed to close embedding cache", "error", err)
		}
	}, nil
}

func newIndex(cfg *config.Config) (vectorindex.Index, error) {
	if cfg.IsMock() {
		return vectorindex.NewMemoryIndex(cfg.VectorDimension), nil
	}
	return vectorindex.NewWeaviateIndex(cfg.WeaviateURL(), cfg.WeaviateAPIKey, cfg.VectorCollection, cfg.VectorDimension)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
