package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundwork-ai/groundwork/pkg/observability"
)

// mockGateway implements Gateway in memory.
type mockGateway struct {
	mu        sync.Mutex
	tools     []ToolInfo
	listErr   error
	callFn    func(name string, args map[string]any) (any, error)
	callCount int
	inFlight  int
	peak      int
}

func (g *mockGateway) ListTools(ctx context.Context) ([]ToolInfo, error) {
	return g.tools, g.listErr
}

func (g *mockGateway) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	g.mu.Lock()
	g.callCount++
	g.inFlight++
	if g.inFlight > g.peak {
		g.peak = g.inFlight
	}
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.inFlight--
		g.mu.Unlock()
	}()

	return g.callFn(name, args)
}

func boolPtr(b bool) *bool { return &b }

func TestEnrichDisabled(t *testing.T) {
	e := NewEnricher(&mockGateway{}, 5)
	result, err := e.Enrich(context.Background(), nil, Options{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestEnrichAllToolsSucceed(t *testing.T) {
	gw := &mockGateway{
		tools: []ToolInfo{{Name: "weather"}, {Name: "news"}},
		callFn: func(name string, args map[string]any) (any, error) {
			return map[string]any{"tool": name}, nil
		},
	}
	e := NewEnricher(gw, 5)

	result, err := e.Enrich(context.Background(), map[string]any{"query": "q"}, Options{Enabled: true})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Success)
	require.Len(t, result.Tools, 2)
	for _, tr := range result.Tools {
		assert.True(t, tr.Success)
		assert.Empty(t, tr.Error)
	}
	assert.Equal(t, 2, gw.callCount)
}

func TestEnrichExplicitToolsSkipDiscovery(t *testing.T) {
	gw := &mockGateway{
		listErr: fmt.Errorf("discovery must not be called"),
		callFn: func(name string, args map[string]any) (any, error) {
			return "ok", nil
		},
	}
	e := NewEnricher(gw, 5)

	result, err := e.Enrich(context.Background(), nil, Options{Enabled: true, Tools: []string{"weather"}})
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Tools, 1)
	assert.Equal(t, "weather", result.Tools[0].Name)
}

func TestEnrichToolFailureIsIsolated(t *testing.T) {
	gw := &mockGateway{
		callFn: func(name string, args map[string]any) (any, error) {
			if name == "broken" {
				return nil, fmt.Errorf("boom")
			}
			return "ok", nil
		},
	}
	e := NewEnricher(gw, 5)

	result, err := e.Enrich(context.Background(), nil, Options{Enabled: true, Tools: []string{"broken", "weather"}})
	require.NoError(t, err)
	assert.True(t, result.Success, "one success is overall success")

	byName := map[string]ToolResult{}
	for _, tr := range result.Tools {
		byName[tr.Name] = tr
	}
	assert.False(t, byName["broken"].Success)
	assert.Contains(t, byName["broken"].Error, "boom")
	assert.True(t, byName["weather"].Success)
}

func TestEnrichGatewayUnavailable(t *testing.T) {
	gw := &mockGateway{listErr: fmt.Errorf("connection refused")}
	e := NewEnricher(gw, 5)

	result, err := e.Enrich(context.Background(), nil, Options{Enabled: true})
	require.NoError(t, err, "fail_silently defaults to true")
	require.NotNil(t, result)
	assert.True(t, result.Enabled)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "discovery failed")
}

func TestEnrichNilGateway(t *testing.T) {
	e := NewEnricher(nil, 5)
	result, err := e.Enrich(context.Background(), nil, Options{Enabled: true})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not configured")
}

func TestEnrichFailLoudly(t *testing.T) {
	gw := &mockGateway{
		callFn: func(name string, args map[string]any) (any, error) {
			return nil, fmt.Errorf("boom")
		},
	}
	e := NewEnricher(gw, 5)

	result, err := e.Enrich(context.Background(), nil, Options{
		Enabled: true, Tools: []string{"a"}, FailSilently: boolPtr(false),
	})
	require.Error(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
}

func TestEnrichParallelBoundedBySemaphore(t *testing.T) {
	gw := &mockGateway{
		callFn: func(name string, args map[string]any) (any, error) {
			time.Sleep(20 * time.Millisecond)
			return "ok", nil
		},
	}
	e := NewEnricher(gw, 2)

	result, err := e.Enrich(context.Background(), nil, Options{
		Enabled: true,
		Tools:   []string{"t1", "t2", "t3", "t4", "t5", "t6"},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.Tools, 6)
	assert.LessOrEqual(t, gw.peak, 2, "no more than max_concurrent tools in flight")
}

func TestEnrichSequentialPreservesOrder(t *testing.T) {
	var order []string
	gw := &mockGateway{
		callFn: func(name string, args map[string]any) (any, error) {
			order = append(order, name)
			return "ok", nil
		},
	}
	e := NewEnricher(gw, 5)

	result, err := e.Enrich(context.Background(), nil, Options{
		Enabled:  true,
		Tools:    []string{"first", "second", "third"},
		Parallel: boolPtr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, order)
	assert.Equal(t, "first", result.Tools[0].Name)
	assert.Equal(t, "third", result.Tools[2].Name)
}

func TestHTTPGatewayRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2.0", req.JSONRPC)

		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "tools/list":
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"tools":[{"name":"weather","description":"forecast"}]}}`)
		case "tools/call":
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"temperature":21}}`)
		default:
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`)
		}
	}))
	defer server.Close()

	gw := NewHTTPGateway(server.URL)

	tools, err := gw.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "weather", tools[0].Name)

	data, err := gw.CallTool(context.Background(), "weather", map[string]any{"city": "Paris"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"temperature": float64(21)}, data)
}

func TestHTTPGatewayRPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"tool crashed"}}`)
	}))
	defer server.Close()

	gw := NewHTTPGateway(server.URL)
	_, err := gw.CallTool(context.Background(), "weather", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool crashed")
}

// toolRecorder captures per-tool enrichment reports.
type toolRecorder struct {
	observability.NoopRecorder
	mu    sync.Mutex
	tools map[string]bool
}

func (r *toolRecorder) RecordEnrichmentTool(ctx context.Context, tool string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tools == nil {
		r.tools = map[string]bool{}
	}
	r.tools[tool] = success
}

func TestEnrichRecordsPerToolOutcome(t *testing.T) {
	rec := &toolRecorder{}
	observability.SetGlobal(rec)
	t.Cleanup(func() { observability.SetGlobal(nil) })

	gw := &mockGateway{
		callFn: func(name string, args map[string]any) (any, error) {
			if name == "news" {
				return nil, fmt.Errorf("upstream down")
			}
			return "ok", nil
		},
	}
	e := NewEnricher(gw, 5)

	result, err := e.Enrich(context.Background(), nil, Options{
		Enabled: true,
		Tools:   []string{"weather", "news"},
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.tools, 2)
	assert.True(t, rec.tools["weather"])
	assert.False(t, rec.tools["news"])
}
