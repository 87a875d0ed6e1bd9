// Package reranking reorders retrieved chunks by a relevance signal
// richer than the first-pass vector score.
//
// Every strategy honors the same contract: output sorted by descending
// score, length min(top_k, input length) when top_k is set, and the new
// score written through the ScoredChunk constructor so wrapper and
// chunk scores stay equal.
package reranking

import (
	"context"
	"fmt"
	"sort"

	"github.com/groundwork-ai/groundwork/pkg/config"
	"github.com/groundwork-ai/groundwork/pkg/llms"
	"github.com/groundwork-ai/groundwork/pkg/observability"
	"github.com/groundwork-ai/groundwork/pkg/template"
	"github.com/groundwork-ai/groundwork/pkg/vector"
)

// Reranker reorders scored chunks by relevance to the query.
type Reranker interface {
	Name() string
	Rerank(ctx context.Context, query string, chunks []vector.ScoredChunk, topK int) ([]vector.ScoredChunk, error)
}

// ScoreSortReranker sorts by the pre-existing score without calling any
// model. Absent scores sort as zero.
type ScoreSortReranker struct{}

func NewScoreSortReranker() *ScoreSortReranker {
	return &ScoreSortReranker{}
}

func (r *ScoreSortReranker) Name() string {
	return "score_sort"
}

func (r *ScoreSortReranker) Rerank(ctx context.Context, query string, chunks []vector.ScoredChunk, topK int) ([]vector.ScoredChunk, error) {
	observability.Global().RecordRerankBatch(ctx, r.Name())
	return sortAndTruncate(compactChunks(chunks), topK), nil
}

// NewFromConfig builds the configured reranker strategy.
func NewFromConfig(cfg config.RerankConfig, provider llms.Provider, rerankTemplate *template.Template) (Reranker, error) {
	switch cfg.Strategy {
	case "", "score_sort":
		return NewScoreSortReranker(), nil
	case "llm_judge":
		if provider == nil {
			return nil, fmt.Errorf("llm_judge reranker requires an LLM provider")
		}
		return NewLLMJudgeReranker(provider, rerankTemplate, cfg.BatchSize, cfg.ScoreScale), nil
	case "cross_encoder":
		if cfg.EncoderURL == "" {
			return nil, fmt.Errorf("cross_encoder reranker requires encoder_url")
		}
		return NewCrossEncoderReranker(cfg.EncoderURL, cfg.ScoreScale), nil
	default:
		return nil, fmt.Errorf("unknown rerank strategy: %s", cfg.Strategy)
	}
}

// compactChunks drops zero-value entries so absent results never reach
// a scoring backend.
func compactChunks(chunks []vector.ScoredChunk) []vector.ScoredChunk {
	out := make([]vector.ScoredChunk, 0, len(chunks))
	for _, sc := range chunks {
		c := sc.Chunk()
		if c.ID == "" && c.Text == "" {
			continue
		}
		out = append(out, sc)
	}
	return out
}

// sortAndTruncate sorts by descending score (stable, so equal scores
// keep their input order) and applies top_k.
func sortAndTruncate(chunks []vector.ScoredChunk, topK int) []vector.ScoredChunk {
	out := make([]vector.ScoredChunk, len(chunks))
	copy(out, chunks)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score() > out[j].Score()
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
