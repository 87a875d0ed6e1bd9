package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/groundwork-ai/groundwork/pkg/observability"
)

// MetadataKey is the key under which enrichment results are merged
// into a search response's metadata map.
const MetadataKey = "mcp_enrichment"

// Options control one enrichment run.
type Options struct {
	// Enabled gates the whole run; disabled enrichment produces no
	// metadata at all.
	Enabled bool `json:"enabled"`

	// Tools to invoke; empty discovers every tool the gateway lists.
	Tools []string `json:"tools,omitempty"`

	// TimeoutSeconds bounds each individual tool call.
	TimeoutSeconds int `json:"timeout,omitempty"`

	// Parallel runs tools concurrently (default true).
	Parallel *bool `json:"parallel,omitempty"`

	// FailSilently records tool failures in metadata instead of
	// returning an error (default true).
	FailSilently *bool `json:"fail_silently,omitempty"`
}

func (o Options) parallel() bool {
	return o.Parallel == nil || *o.Parallel
}

func (o Options) failSilently() bool {
	return o.FailSilently == nil || *o.FailSilently
}

func (o Options) timeout() time.Duration {
	if o.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// ToolResult records one tool invocation.
type ToolResult struct {
	Name            string `json:"name"`
	Success         bool   `json:"success"`
	Data            any    `json:"data,omitempty"`
	Error           string `json:"error,omitempty"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
}

// Result is the metadata block merged under MetadataKey. Success is
// true when at least one tool succeeded.
type Result struct {
	Enabled     bool         `json:"enabled"`
	Success     bool         `json:"success"`
	Error       string       `json:"error,omitempty"`
	TotalTimeMS int64        `json:"total_time_ms"`
	Tools       []ToolResult `json:"tools,omitempty"`
}

// Enricher invokes gateway tools with bounded concurrency and per-tool
// error isolation.
type Enricher struct {
	gateway       Gateway
	maxConcurrent int
}

func NewEnricher(gateway Gateway, maxConcurrent int) *Enricher {
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	return &Enricher{gateway: gateway, maxConcurrent: maxConcurrent}
}

// Enrich runs the configured tools with the given arguments (typically
// the query and the generated answer). It always returns a Result to
// merge into metadata; the error is non-nil only when FailSilently is
// off and something failed.
func (e *Enricher) Enrich(ctx context.Context, arguments map[string]any, opts Options) (*Result, error) {
	if !opts.Enabled {
		return nil, nil
	}

	start := time.Now()
	result := &Result{Enabled: true}

	finish := func(err error) (*Result, error) {
		result.TotalTimeMS = time.Since(start).Milliseconds()
		if err != nil {
			result.Error = err.Error()
			if !opts.failSilently() {
				return result, err
			}
		}
		return result, nil
	}

	if e.gateway == nil {
		return finish(fmt.Errorf("enrichment gateway not configured"))
	}

	tools := opts.Tools
	if len(tools) == 0 {
		listed, err := e.gateway.ListTools(ctx)
		if err != nil {
			return finish(fmt.Errorf("tool discovery failed: %w", err))
		}
		for _, t := range listed {
			tools = append(tools, t.Name)
		}
	}
	if len(tools) == 0 {
		return finish(fmt.Errorf("gateway advertises no tools"))
	}

	result.Tools = make([]ToolResult, len(tools))

	if opts.parallel() {
		sem := semaphore.NewWeighted(int64(e.maxConcurrent))
		for i, name := range tools {
			if err := sem.Acquire(ctx, 1); err != nil {
				result.Tools[i] = ToolResult{Name: name, Error: err.Error()}
				continue
			}
			go func() {
				defer sem.Release(1)
				result.Tools[i] = e.invoke(ctx, name, arguments, opts.timeout())
			}()
		}
		// Draining the semaphore waits for every in-flight tool.
		if err := sem.Acquire(context.Background(), int64(e.maxConcurrent)); err == nil {
			sem.Release(int64(e.maxConcurrent))
		}
	} else {
		for i, name := range tools {
			result.Tools[i] = e.invoke(ctx, name, arguments, opts.timeout())
		}
	}

	for _, tr := range result.Tools {
		if tr.Success {
			result.Success = true
			break
		}
	}

	if !result.Success && !opts.failSilently() {
		return finish(fmt.Errorf("all enrichment tools failed"))
	}
	return finish(nil)
}

// invoke wraps one tool call so a failure becomes an error entry, not
// a propagated error.
func (e *Enricher) invoke(ctx context.Context, name string, arguments map[string]any, timeout time.Duration) ToolResult {
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := e.gateway.CallTool(callCtx, name, arguments)
	observability.Global().RecordEnrichmentTool(ctx, name, err == nil)
	tr := ToolResult{
		Name:            name,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		slog.Debug("enrichment tool failed", "tool", name, "error", err)
		tr.Error = err.Error()
		return tr
	}
	tr.Success = true
	tr.Data = data
	return tr
}
