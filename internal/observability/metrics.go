// Package observability holds the Prometheus metrics and tracer shared by
// the service.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const namespace = "ragrouter"

var (
	// documentsProcessed counts ingested uploads by final status.
	documentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_processed_total",
		Help:      "Documents processed by final status",
	}, []string{"status"})

	// queriesTotal counts chat requests by the destination they ran on.
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queries_total",
		Help:      "Chat queries by route",
	}, []string{"route"})

	llmLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "llm_latency_seconds",
		Help:      "Language model call latency in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	}, []string{"operation"})

	// streamTerminal counts closed streams by terminal event type.
	streamTerminal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_terminal_total",
		Help:      "Chat streams closed, by terminal event type",
	}, []string{"type"})
)

func DocumentProcessed(status string) {
	documentsProcessed.WithLabelValues(status).Inc()
}

func QueryRouted(route string) {
	queriesTotal.WithLabelValues(route).Inc()
}

func ObserveLLMLatency(operation string, d time.Duration) {
	llmLatency.WithLabelValues(operation).Observe(d.Seconds())
}

func StreamClosed(terminal string) {
	streamTerminal.WithLabelValues(terminal).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Tracer returns the named tracer from the global provider. Spans are no-ops
// until a provider is installed.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
