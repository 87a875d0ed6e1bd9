// Package enrichment augments search responses with results from
// external tools behind a JSON-RPC gateway. Enrichment only ever adds
// metadata; the answer and its evidence are never modified, and no
// tool failure propagates past the enricher unless the caller asked
// for loud failures.
package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/groundwork-ai/groundwork/pkg/httpclient"
)

// ToolInfo describes one tool advertised by the gateway.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Gateway is the tool endpoint consumed by the Enricher.
type Gateway interface {
	ListTools(ctx context.Context) ([]ToolInfo, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (any, error)
}

// HTTPGateway speaks JSON-RPC 2.0 (tools/list, tools/call) over the
// retrying HTTP client.
type HTTPGateway struct {
	url    string
	client *httpclient.Client
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func NewHTTPGateway(url string, opts ...httpclient.Option) *HTTPGateway {
	if len(opts) == 0 {
		opts = []httpclient.Option{
			httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
			httpclient.WithMaxRetries(2),
			httpclient.WithBaseDelay(time.Second),
		}
	}
	return &HTTPGateway{url: url, client: httpclient.New(opts...)}
}

func (g *HTTPGateway) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned HTTP %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed rpcResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("malformed gateway response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("gateway error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	return parsed.Result, nil
}

func (g *HTTPGateway) ListTools(ctx context.Context) ([]ToolInfo, error) {
	result, err := g.call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}

	var listed struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := json.Unmarshal(result, &listed); err != nil {
		return nil, fmt.Errorf("malformed tools/list result: %w", err)
	}
	return listed.Tools, nil
}

func (g *HTTPGateway) CallTool(ctx context.Context, name string, arguments map[string]any) (any, error) {
	result, err := g.call(ctx, "tools/call", callParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}

	var data any
	if len(result) > 0 {
		if err := json.Unmarshal(result, &data); err != nil {
			return nil, fmt.Errorf("malformed tools/call result: %w", err)
		}
	}
	return data, nil
}

var _ Gateway = (*HTTPGateway)(nil)
