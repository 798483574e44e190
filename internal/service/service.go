// Package service implements the chat orchestrator: it resolves the session,
// routes each message to a pipeline, streams the answer and persists both
// turns of the exchange.
package service

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/xiaot623/gogo/ragrouter/config"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/embedding"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/llm"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/sqlengine"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/vectorindex"
	"github.com/xiaot623/gogo/ragrouter/internal/domain"
	"github.com/xiaot623/gogo/ragrouter/internal/ingestion"
	"github.com/xiaot623/gogo/ragrouter/internal/observability"
	"github.com/xiaot623/gogo/ragrouter/internal/pipeline"
	store "github.com/xiaot623/gogo/ragrouter/internal/repository"
	"github.com/xiaot623/gogo/ragrouter/internal/router"
)

// Deps are the collaborators the service is built from. They are shared by
// all requests and must be safe for concurrent use.
type Deps struct {
	Store     store.Store
	LLM       llm.LLMClient
	Embedder  embedding.Embedder
	Index     vectorindex.Index
	SQLEngine sqlengine.Engine
	Validator pipeline.QueryValidator
	Documents *ingestion.Service
	Config    *config.Config
}

type Service struct {
	store      store.Store
	classifier *router.Classifier
	pipelines  map[domain.Destination]pipeline.Pipeline
	documents  *ingestion.Service
	config     *config.Config
	logger     *slog.Logger
	tracer     trace.Tracer
}

// New wires the classifier and the three pipelines around an instrumented
// LLM client that records latency and llm_call_done trace events.
func New(deps Deps) *Service {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Defaults()
	}
	s := &Service{
		store:     deps.Store,
		documents: deps.Documents,
		config:    cfg,
		logger:    slog.Default().With("component", "service"),
		tracer:    observability.Tracer("ragrouter/service"),
	}

	client := &instrumentedClient{inner: deps.LLM, service: s}
	s.classifier = router.NewClassifier(client, cfg.ChatModel)
	s.pipelines = map[domain.Destination]pipeline.Pipeline{
		domain.DestinationDocumentQA:      pipeline.NewRetrieval(deps.Embedder, deps.Index, client, cfg.ChatModel, cfg.RetrievalTopK),
		domain.DestinationStructuredQuery: pipeline.NewStructured(deps.SQLEngine, deps.Validator, client, cfg.ChatModel, cfg.SQLSchemaFilter),
		domain.DestinationConversation:    pipeline.NewConversation(client, cfg.ChatModel),
	}
	return s
}

func (s *Service) historyWindow() int {
	if s.config.HistoryWindow <= 0 {
		return 10
	}
	return s.config.HistoryWindow
}

// Version is the build version reported by the health endpoint.
func (s *Service) Version() string {
	return s.config.Version
}
