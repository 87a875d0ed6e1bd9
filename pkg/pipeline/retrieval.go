package pipeline

import (
	"context"

	"github.com/groundwork-ai/groundwork/pkg/config"
	"github.com/groundwork-ai/groundwork/pkg/errs"
	"github.com/groundwork-ai/groundwork/pkg/vector"
)

// RetrievalStage embeds the rewritten query and pulls the top chunks
// from the vector store. Empty retrieval is not an error; generation
// handles it with the fixed no-documents answer.
type RetrievalStage struct {
	store vector.Provider
	cfg   config.SearchConfig
}

func NewRetrievalStage(store vector.Provider, cfg config.SearchConfig) *RetrievalStage {
	return &RetrievalStage{store: store, cfg: cfg}
}

func (s *RetrievalStage) Name() string { return "retrieval" }

func (s *RetrievalStage) Run(ctx context.Context, sc *SearchContext) StageResult {
	topK := sc.Options.TopK
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}
	if topK > s.cfg.MaxTopK {
		topK = s.cfg.MaxTopK
	}

	embeddings, err := sc.Provider.Embed(ctx, []string{sc.RewrittenQuery})
	if err != nil || len(embeddings) != 1 {
		return fatal(errs.Wrap(errs.KindLLMProvider, "Pipeline", s.Name(),
			"query embedding failed", err))
	}

	results, err := s.store.Retrieve(ctx, sc.CollectionName, embeddings[0], topK, nil)
	if err != nil {
		return fatal(errs.Wrap(errs.KindStorage, "Pipeline", s.Name(),
			"vector retrieval failed", err))
	}

	minScore := sc.Options.MinScore
	if minScore == 0 {
		minScore = s.cfg.MinScore
	}
	if minScore > 0 {
		filtered := results[:0]
		for _, result := range results {
			if result.Score() >= minScore {
				filtered = append(filtered, result)
			}
		}
		results = filtered
	}

	sc.QueryResults = results
	return ok(map[string]any{"top_k": topK, "result_count": len(results)})
}

var _ Stage = (*RetrievalStage)(nil)
