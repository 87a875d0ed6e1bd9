// Package pipeline implements the staged search executor. A request
// flows through a fixed stage order: resolution, query enhancement,
// retrieval, reranking, optional reasoning, generation. Stages mutate a
// shared SearchContext owned by the executing request; the caller
// consumes the context after the last stage.
package pipeline

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/groundwork-ai/groundwork/pkg/evaluation"
	"github.com/groundwork-ai/groundwork/pkg/llms"
	"github.com/groundwork-ai/groundwork/pkg/reasoning"
	"github.com/groundwork-ai/groundwork/pkg/storage"
	"github.com/groundwork-ai/groundwork/pkg/template"
	"github.com/groundwork-ai/groundwork/pkg/vector"
)

// NoDocumentsAnswer is returned verbatim when retrieval finds nothing.
const NoDocumentsAnswer = "I could not find any relevant documents to answer your question."

// SearchInput is the request as it enters the pipeline.
type SearchInput struct {
	Question       string         `json:"question"`
	CollectionID   string         `json:"collection_id"`
	PipelineID     string         `json:"pipeline_id,omitempty"`
	UserID         string         `json:"user_id"`
	ConfigMetadata map[string]any `json:"config_metadata,omitempty"`
}

// Options are the recognized per-request knobs carried in
// ConfigMetadata. Unrecognized keys are preserved in Rest so callers
// can thread opaque settings through the pipeline.
type Options struct {
	TopK              int      `mapstructure:"top_k"`
	TopKRerank        int      `mapstructure:"top_k_rerank"`
	MinScore          float64  `mapstructure:"min_score"`
	RewriteEnabled    bool     `mapstructure:"rewrite_enabled"`
	CoTEnabled        bool     `mapstructure:"cot_enabled"`
	ConversationAware bool     `mapstructure:"conversation_aware"`
	ContextWindow     string   `mapstructure:"context_window"`
	Entities          []string `mapstructure:"entities"`
	EvaluationMode    string   `mapstructure:"evaluation_mode"`

	Rest map[string]any `mapstructure:",remain"`
}

// ParseOptions decodes the free-form config map into typed options.
func ParseOptions(metadata map[string]any) (Options, error) {
	var opts Options
	if len(metadata) == 0 {
		return opts, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return opts, err
	}
	if err := decoder.Decode(metadata); err != nil {
		return opts, fmt.Errorf("invalid config metadata: %w", err)
	}
	return opts, nil
}

// SearchContext is the mutable state of one pipeline run. It is owned
// exclusively by the executing request; stages borrow it during their
// invocation and never retain it.
type SearchContext struct {
	Input   SearchInput
	Options Options

	// Resolved by the resolution stage.
	PipelineID     string
	CollectionName string
	Pipeline       *storage.PipelineConfig
	Provider       llms.Provider
	Params         *llms.Params
	RAGTemplate    *template.Template
	EvalTemplate   *template.Template

	// Produced by later stages.
	RewrittenQuery string
	QueryResults   []vector.ScoredChunk
	Answer         string
	CoT            *reasoning.CoTOutput
	Evaluation     *evaluation.Report

	// Bookkeeping maintained by the executor.
	StageMetadata   map[string]map[string]any
	Errors          []string
	ExecutionTimeMS int64
}

// NewSearchContext builds the context for one run, decoding the typed
// options from the input's config map.
func NewSearchContext(input SearchInput) (*SearchContext, error) {
	opts, err := ParseOptions(input.ConfigMetadata)
	if err != nil {
		return nil, err
	}
	return &SearchContext{
		Input:          input,
		Options:        opts,
		RewrittenQuery: input.Question,
		StageMetadata:  map[string]map[string]any{},
	}, nil
}

// AddError records a recoverable stage error.
func (sc *SearchContext) AddError(stage string, err error) {
	sc.Errors = append(sc.Errors, fmt.Sprintf("%s: %v", stage, err))
}

// Disposition classifies a stage outcome for the executor.
type Disposition int

const (
	// Ok continues to the next stage.
	Ok Disposition = iota

	// Recoverable records the error and continues.
	Recoverable

	// Fatal stops the run; the context keeps everything computed so far.
	Fatal
)

// StageResult is what a stage hands back to the executor.
type StageResult struct {
	Disposition Disposition
	Err         error
	Metadata    map[string]any
}

func ok(metadata map[string]any) StageResult {
	return StageResult{Disposition: Ok, Metadata: metadata}
}

func recoverable(err error) StageResult {
	return StageResult{Disposition: Recoverable, Err: err}
}

func fatal(err error) StageResult {
	return StageResult{Disposition: Fatal, Err: err}
}

// Stage is one step of the pipeline.
type Stage interface {
	Name() string
	Run(ctx context.Context, sc *SearchContext) StageResult
}
