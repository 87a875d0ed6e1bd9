package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, rec Recorder) string {
	t.Helper()
	server := httptest.NewServer(rec.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsExposition(t *testing.T) {
	metrics, err := InitMetrics()
	require.NoError(t, err)
	defer metrics.Shutdown(context.Background())

	ctx := context.Background()
	metrics.RecordSearch(ctx, 120*time.Millisecond, false)
	metrics.StageCompleted(ctx, "retrieval", 40*time.Millisecond, false)
	metrics.RecordLLMCall(ctx, "openai", "generate", 300*time.Millisecond, 512)
	metrics.RecordRerankBatch(ctx, "cross_encoder")
	metrics.RecordEnrichmentTool(ctx, "weather", true)
	metrics.RecordHealthCheck(ctx, "postgres", true)

	body := scrape(t, metrics)
	assert.Contains(t, body, "groundwork_search_duration_seconds")
	assert.Contains(t, body, "groundwork_stage_duration_seconds")
	assert.Contains(t, body, "groundwork_llm_calls_total")
	assert.Contains(t, body, "groundwork_llm_tokens_total")
	assert.Contains(t, body, "groundwork_rerank_batches_total")
	assert.Contains(t, body, "groundwork_enrichment_tools_total")
	assert.Contains(t, body, "groundwork_health_checks_total")
	assert.Contains(t, body, `stage="retrieval"`)
	assert.Contains(t, body, `provider="openai"`)
}

func TestLLMTokensSkippedWhenZero(t *testing.T) {
	metrics, err := InitMetrics()
	require.NoError(t, err)
	defer metrics.Shutdown(context.Background())

	metrics.RecordLLMCall(context.Background(), "openai", "embed", time.Millisecond, 0)

	body := scrape(t, metrics)
	assert.Contains(t, body, "groundwork_llm_calls_total")
	assert.NotContains(t, body, `groundwork_llm_tokens_total{`)
}

func TestNewDisabled(t *testing.T) {
	rec, err := New(false)
	require.NoError(t, err)
	assert.IsType(t, NoopRecorder{}, rec)

	server := httptest.NewServer(rec.Handler())
	defer server.Close()
	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGlobalRecorder(t *testing.T) {
	t.Cleanup(func() { SetGlobal(nil) })

	assert.IsType(t, NoopRecorder{}, Global(), "default recorder is the no-op one")

	metrics, err := InitMetrics()
	require.NoError(t, err)
	defer metrics.Shutdown(context.Background())

	SetGlobal(metrics)
	assert.Same(t, metrics, Global())

	Global().RecordRerankBatch(context.Background(), "score_sort")
	assert.Contains(t, scrape(t, metrics), `strategy="score_sort"`)

	SetGlobal(nil)
	assert.IsType(t, NoopRecorder{}, Global(), "nil resets to the no-op recorder")
}

func TestHTTPMiddleware(t *testing.T) {
	metrics, err := InitMetrics()
	require.NoError(t, err)
	defer metrics.Shutdown(context.Background())

	router := chi.NewRouter()
	router.Use(HTTPMiddleware(metrics))
	router.Get("/collections/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/collections/col-1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	body := scrape(t, metrics)
	assert.Contains(t, body, "groundwork_http_requests_total")
	assert.Contains(t, body, `route="/collections/{id}"`)
	assert.Contains(t, body, `status="418"`)
}
