package observability

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(queriesTotal.WithLabelValues("document_qa"))
	QueryRouted("document_qa")
	assert.Equal(t, before+1, testutil.ToFloat64(queriesTotal.WithLabelValues("document_qa")))

	before = testutil.ToFloat64(streamTerminal.WithLabelValues("error"))
	StreamClosed("error")
	assert.Equal(t, before+1, testutil.ToFloat64(streamTerminal.WithLabelValues("error")))

	before = testutil.ToFloat64(documentsProcessed.WithLabelValues("ready"))
	DocumentProcessed("ready")
	assert.Equal(t, before+1, testutil.ToFloat64(documentsProcessed.WithLabelValues("ready")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	ObserveLLMLatency("classify", 120*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `ragrouter_llm_latency_seconds_count{operation="classify"}`)
}
