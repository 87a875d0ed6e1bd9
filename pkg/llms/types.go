// Package llms defines the LLM capability contract and its providers.
//
// The engine consumes three narrow operations: text generation (single
// and batched), embedding, and token counting. Any implementation
// satisfying Provider is interchangeable; provider failures surface as
// errs.KindLLMProvider carrying the provider name and operation.
package llms

import (
	"context"

	"github.com/groundwork-ai/groundwork/pkg/template"
)

// Params are per-call sampling parameters. A nil Params means provider
// defaults.
type Params struct {
	Temperature       float64 `json:"temperature,omitempty"`
	MaxNewTokens      int     `json:"max_new_tokens,omitempty"`
	TopK              int     `json:"top_k,omitempty"`
	TopP              float64 `json:"top_p,omitempty"`
	RepetitionPenalty float64 `json:"repetition_penalty,omitempty"`
}

// GenerateRequest describes a single generation call. When Template is
// set it is formatted with Variables and the result replaces Prompt.
type GenerateRequest struct {
	UserID    string
	Prompt    string
	Template  *template.Template
	Variables map[string]string
	Params    *Params
}

// ResolvePrompt returns the effective prompt for the request.
func (r *GenerateRequest) ResolvePrompt() (string, error) {
	if r.Template == nil {
		return r.Prompt, nil
	}
	return r.Template.Format(r.Variables)
}

// Provider is the LLM capability consumed by the engine.
type Provider interface {
	// Name identifies the provider for error reporting.
	Name() string

	// Generate produces one completion for the request.
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// GenerateBatch produces one completion per prompt, in order.
	GenerateBatch(ctx context.Context, userID string, prompts []string, params *Params) ([]string, error)

	// Embed returns one vector per input text. Vector dimension is fixed
	// per provider and model.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// CountTokens counts tokens for accounting. Providers that cannot
	// tokenize return a word-based estimate >= ceil(words * 1.3).
	CountTokens(text string) int
}
