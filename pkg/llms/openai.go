package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/groundwork-ai/groundwork/pkg/config"
	"github.com/groundwork-ai/groundwork/pkg/errs"
	"github.com/groundwork-ai/groundwork/pkg/httpclient"
	"github.com/groundwork-ai/groundwork/pkg/observability"
	"github.com/groundwork-ai/groundwork/pkg/tokens"
)

// batchConcurrency bounds parallel completion calls in GenerateBatch.
const batchConcurrency = 4

// OpenAIProvider talks to any OpenAI-compatible endpoint (OpenAI,
// vLLM, Ollama's compat API, LM Studio).
type OpenAIProvider struct {
	name      string
	baseURL   string
	apiKey    string
	model     string
	embedding string
	defaults  Params
	client    *httpclient.Client
	counter   *tokens.Counter
}

func NewOpenAIProvider(cfg *config.LLMConfig) (*OpenAIProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm base_url is required")
	}

	client := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithHeaderParser(httpclient.ParseStandardHeaders),
	)

	// Counter creation only fails when even the fallback encoding is
	// unavailable; CountTokens then degrades to the word estimator.
	counter, _ := tokens.NewCounter(cfg.Model)

	return &OpenAIProvider{
		name:      "openai",
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		embedding: cfg.EmbeddingModel,
		defaults: Params{
			Temperature:       cfg.Params.Temperature,
			MaxNewTokens:      cfg.Params.MaxNewTokens,
			TopP:              cfg.Params.TopP,
			RepetitionPenalty: cfg.Params.RepetitionPenalty,
		},
		client:  client,
		counter: counter,
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	User        string        `json:"user,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (p *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	prompt, err := req.ResolvePrompt()
	if err != nil {
		return "", err
	}

	start := time.Now()
	output, err := p.complete(ctx, req.UserID, prompt, req.Params)
	used := 0
	if err == nil {
		used = p.CountTokens(prompt) + p.CountTokens(output)
	}
	observability.Global().RecordLLMCall(ctx, p.name, "generate", time.Since(start), used)
	return output, err
}

func (p *OpenAIProvider) complete(ctx context.Context, userID, prompt string, override *Params) (string, error) {
	params := p.defaults
	if override != nil {
		params = *override
	}

	body := chatRequest{
		Model:       p.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: params.Temperature,
		MaxTokens:   params.MaxNewTokens,
		TopP:        params.TopP,
		User:        userID,
	}

	var parsed chatResponse
	if err := p.post(ctx, "/chat/completions", body, &parsed); err != nil {
		return "", errs.Wrap(errs.KindLLMProvider, p.name, "Generate", "completion request failed", err)
	}
	if parsed.Error != nil {
		return "", errs.Newf(errs.KindLLMProvider, p.name, "Generate", "provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", errs.New(errs.KindLLMProvider, p.name, "Generate", "provider returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// GenerateBatch fans prompts out concurrently and returns one output per
// input, preserving order. Any single failure fails the batch.
func (p *OpenAIProvider) GenerateBatch(ctx context.Context, userID string, prompts []string, params *Params) ([]string, error) {
	if len(prompts) == 0 {
		return nil, nil
	}

	outputs := make([]string, len(prompts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	for i, prompt := range prompts {
		g.Go(func() error {
			out, err := p.Generate(gctx, GenerateRequest{UserID: userID, Prompt: prompt, Params: params})
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()
	vectors, err := p.embed(ctx, texts)
	observability.Global().RecordLLMCall(ctx, p.name, "embed", time.Since(start), 0)
	return vectors, err
}

func (p *OpenAIProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	var parsed embeddingResponse
	if err := p.post(ctx, "/embeddings", embeddingRequest{Model: p.embedding, Input: texts}, &parsed); err != nil {
		return nil, errs.Wrap(errs.KindLLMProvider, p.name, "Embed", "embedding request failed", err)
	}
	if parsed.Error != nil {
		return nil, errs.Newf(errs.KindLLMProvider, p.name, "Embed", "provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Data) != len(texts) {
		return nil, errs.Newf(errs.KindLLMProvider, p.name, "Embed",
			"expected %d embeddings, got %d", len(texts), len(parsed.Data))
	}

	// The API may return data out of order; the index field is authoritative.
	vectors := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, errs.Newf(errs.KindLLMProvider, p.name, "Embed", "embedding index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

func (p *OpenAIProvider) CountTokens(text string) int {
	if p.counter != nil {
		return p.counter.Count(text)
	}
	return tokens.Estimate(text)
}

func (p *OpenAIProvider) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
