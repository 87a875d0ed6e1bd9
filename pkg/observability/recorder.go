package observability

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Recorder is the engine-facing metrics surface. Components depend on
// this interface so a disabled deployment costs nothing but interface
// dispatch to no-ops.
type Recorder interface {
	RecordSearch(ctx context.Context, duration time.Duration, failed bool)
	StageCompleted(ctx context.Context, stage string, duration time.Duration, failed bool)
	RecordLLMCall(ctx context.Context, provider, operation string, duration time.Duration, tokens int)
	RecordRerankBatch(ctx context.Context, strategy string)
	RecordEnrichmentTool(ctx context.Context, tool string, success bool)
	RecordHealthCheck(ctx context.Context, service string, healthy bool)

	Handler() http.Handler
	Shutdown(ctx context.Context) error
}

// New returns a live Recorder when enabled, the no-op one otherwise.
func New(enabled bool) (Recorder, error) {
	if !enabled {
		return NoopRecorder{}, nil
	}
	return InitMetrics()
}

var (
	globalMu sync.RWMutex
	global   Recorder = NoopRecorder{}
)

// SetGlobal installs the process-wide recorder. Call sites deep in the
// pipeline (the LLM provider, rerank batches, enrichment tools) report
// through Global instead of threading the recorder down every
// constructor. Passing nil restores the no-op recorder.
func SetGlobal(rec Recorder) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if rec == nil {
		rec = NoopRecorder{}
	}
	global = rec
}

// Global returns the installed recorder, the no-op one by default.
func Global() Recorder {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// NoopRecorder discards every measurement.
type NoopRecorder struct{}

func (NoopRecorder) RecordSearch(context.Context, time.Duration, bool) {}

func (NoopRecorder) StageCompleted(context.Context, string, time.Duration, bool) {}

func (NoopRecorder) RecordLLMCall(context.Context, string, string, time.Duration, int) {}

func (NoopRecorder) RecordRerankBatch(context.Context, string) {}

func (NoopRecorder) RecordEnrichmentTool(context.Context, string, bool) {}

func (NoopRecorder) RecordHealthCheck(context.Context, string, bool) {}

func (NoopRecorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "metrics disabled", http.StatusNotFound)
	})
}

func (NoopRecorder) Shutdown(context.Context) error { return nil }
