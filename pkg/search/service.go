// Package search exposes the public query entry point. It validates
// and authorizes the request, drives the pipeline executor, and shapes
// the pipeline context into the response: cleaned answer, per-document
// metadata, optional evaluation and optional enrichment.
package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/groundwork-ai/groundwork/pkg/config"
	"github.com/groundwork-ai/groundwork/pkg/enrichment"
	"github.com/groundwork-ai/groundwork/pkg/errs"
	"github.com/groundwork-ai/groundwork/pkg/evaluation"
	"github.com/groundwork-ai/groundwork/pkg/observability"
	"github.com/groundwork-ai/groundwork/pkg/pipeline"
	"github.com/groundwork-ai/groundwork/pkg/reasoning"
	"github.com/groundwork-ai/groundwork/pkg/storage"
	"github.com/groundwork-ai/groundwork/pkg/vector"
)

const component = "Search"

// Output is the response of one search.
type Output struct {
	Answer          string               `json:"answer"`
	Documents       []DocumentMetadata   `json:"documents"`
	QueryResults    []vector.ScoredChunk `json:"query_results"`
	RewrittenQuery  string               `json:"rewritten_query"`
	Evaluation      *evaluation.Report   `json:"evaluation,omitempty"`
	ExecutionTimeMS int64                `json:"execution_time_ms"`
	CoT             *reasoning.CoTOutput `json:"cot_output,omitempty"`
	Metadata        map[string]any       `json:"metadata,omitempty"`
}

// Service is the public search entry point.
type Service struct {
	store     storage.Store
	executor  *pipeline.Executor
	cfg       config.SearchConfig
	enricher  *enrichment.Enricher
	enrichCfg config.EnrichmentConfig
}

// NewService wires the search service. The enricher may be nil when
// enrichment is disabled.
func NewService(store storage.Store, executor *pipeline.Executor, cfg config.SearchConfig, enricher *enrichment.Enricher, enrichCfg config.EnrichmentConfig) *Service {
	return &Service{
		store:     store,
		executor:  executor,
		cfg:       cfg,
		enricher:  enricher,
		enrichCfg: enrichCfg,
	}
}

// Search runs one query end to end.
func (s *Service) Search(ctx context.Context, input pipeline.SearchInput) (*Output, error) {
	start := time.Now()
	output, err := s.search(ctx, input)
	observability.Global().RecordSearch(ctx, time.Since(start), err != nil)
	return output, err
}

func (s *Service) search(ctx context.Context, input pipeline.SearchInput) (*Output, error) {
	input.Question = strings.TrimSpace(input.Question)
	if input.Question == "" {
		return nil, errs.New(errs.KindValidation, component, "Search", "question cannot be empty")
	}
	if len(input.Question) > s.cfg.MaxQuestionLength {
		return nil, errs.Newf(errs.KindValidation, component, "Search",
			"question exceeds %d characters", s.cfg.MaxQuestionLength)
	}

	collection, err := s.store.GetCollection(ctx, input.CollectionID)
	if err != nil {
		return nil, err
	}
	// Access denial reads exactly like a missing collection.
	if !collection.AccessibleBy(input.UserID) {
		return nil, errs.Newf(errs.KindNotFound, component, "Search",
			"collection %q not found", input.CollectionID)
	}

	if input.PipelineID != "" {
		if _, err := s.store.GetPipeline(ctx, input.PipelineID); err != nil {
			return nil, err
		}
	}

	sc, err := pipeline.NewSearchContext(input)
	if err != nil {
		return nil, errs.Wrap(errs.KindValidation, component, "Search", "invalid config metadata", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout())
	defer cancel()

	if err := s.executor.Execute(runCtx, sc); err != nil {
		return nil, err
	}

	files, err := s.store.FilesByCollection(ctx, input.CollectionID)
	if err != nil {
		return nil, err
	}
	documents, err := assembleDocuments(sc.QueryResults, files)
	if err != nil {
		return nil, err
	}

	output := &Output{
		Answer:          CleanAnswer(sc.Answer),
		Documents:       documents,
		QueryResults:    sc.QueryResults,
		RewrittenQuery:  sc.RewrittenQuery,
		ExecutionTimeMS: sc.ExecutionTimeMS,
		CoT:             sc.CoT,
		Metadata:        map[string]any{"stages": sc.StageMetadata},
	}
	if len(sc.Errors) > 0 {
		output.Metadata["stage_errors"] = sc.Errors
	}

	if report := s.evaluate(runCtx, sc); report != nil {
		output.Evaluation = report
	}

	s.enrich(runCtx, sc, output)
	return output, nil
}

// evaluate runs the optional quality scoring selected by the request.
func (s *Service) evaluate(ctx context.Context, sc *pipeline.SearchContext) *evaluation.Report {
	var evaluator evaluation.Evaluator
	switch sc.Options.EvaluationMode {
	case "":
		return nil
	case "cosine":
		evaluator = evaluation.NewCosineEvaluator(sc.Provider)
	case "llm_judge":
		evaluator = evaluation.NewLLMJudgeEvaluator(sc.Provider, sc.EvalTemplate, sc.Input.UserID, sc.Params)
	default:
		slog.Warn("unknown evaluation mode", "mode", sc.Options.EvaluationMode)
		return nil
	}
	return evaluator.Evaluate(ctx, evaluation.Input{
		Query:  sc.RewrittenQuery,
		Answer: sc.Answer,
		Chunks: sc.QueryResults,
	})
}

// enrich merges tool-gateway results under the dedicated metadata key.
// The answer, documents and query results are never touched.
func (s *Service) enrich(ctx context.Context, sc *pipeline.SearchContext, output *Output) {
	if s.enricher == nil || !s.enrichCfg.Enabled {
		return
	}

	result, err := s.enricher.Enrich(ctx, map[string]any{
		"query":  sc.RewrittenQuery,
		"answer": output.Answer,
	}, enrichment.Options{
		Enabled:        true,
		Tools:          s.enrichCfg.Tools,
		TimeoutSeconds: s.enrichCfg.TimeoutSeconds,
		Parallel:       s.enrichCfg.Parallel,
		FailSilently:   s.enrichCfg.FailSilently,
	})
	if err != nil {
		slog.Warn("enrichment failed", "error", err)
	}
	if result != nil {
		output.Metadata[enrichment.MetadataKey] = result
	}
}
