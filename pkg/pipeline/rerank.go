package pipeline

import (
	"context"

	"github.com/groundwork-ai/groundwork/pkg/config"
	"github.com/groundwork-ai/groundwork/pkg/reranking"
	"github.com/groundwork-ai/groundwork/pkg/template"
)

// RerankStage reorders the retrieved chunks with the configured
// strategy. It always runs before generation; a reranking failure is
// recoverable and leaves the first-pass results in place.
type RerankStage struct {
	cfg config.RerankConfig
}

func NewRerankStage(cfg config.RerankConfig) *RerankStage {
	return &RerankStage{cfg: cfg}
}

func (s *RerankStage) Name() string { return "reranking" }

func (s *RerankStage) Run(ctx context.Context, sc *SearchContext) StageResult {
	if !s.cfg.Enabled || len(sc.QueryResults) == 0 {
		return ok(map[string]any{"skipped": true})
	}

	// The judge template follows the same stored-or-builtin resolution
	// as the generation template; builders fall back internally.
	reranker, err := reranking.NewFromConfig(s.cfg, sc.Provider, template.DefaultReranking)
	if err != nil {
		sc.AddError(s.Name(), err)
		return recoverable(err)
	}

	topK := sc.Options.TopKRerank
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	reranked, err := reranker.Rerank(ctx, sc.RewrittenQuery, sc.QueryResults, topK)
	if err != nil {
		sc.AddError(s.Name(), err)
		return recoverable(err)
	}

	sc.QueryResults = reranked
	return ok(map[string]any{
		"strategy":     reranker.Name(),
		"result_count": len(reranked),
	})
}

var _ Stage = (*RerankStage)(nil)
