package reranking

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/groundwork-ai/groundwork/pkg/llms"
	"github.com/groundwork-ai/groundwork/pkg/observability"
	"github.com/groundwork-ai/groundwork/pkg/template"
	"github.com/groundwork-ai/groundwork/pkg/vector"
)

// parseFailureScore is assigned when a judge response yields no
// parseable number.
const parseFailureScore = 0.5

// LLMJudgeReranker asks an LLM to rate each chunk's relevance on a
// fixed scale. Prompts are batched and batches run concurrently; a
// failed batch falls back to the chunks' original scores so search
// never aborts because reranking did.
type LLMJudgeReranker struct {
	provider  llms.Provider
	template  *template.Template
	batchSize int
	scale     int
}

func NewLLMJudgeReranker(provider llms.Provider, rerankTemplate *template.Template, batchSize, scale int) *LLMJudgeReranker {
	if rerankTemplate == nil {
		rerankTemplate = template.DefaultReranking
	}
	if batchSize <= 0 {
		batchSize = 5
	}
	if scale <= 0 {
		scale = 10
	}
	return &LLMJudgeReranker{
		provider:  provider,
		template:  rerankTemplate,
		batchSize: batchSize,
		scale:     scale,
	}
}

func (r *LLMJudgeReranker) Name() string {
	return "llm_judge"
}

func (r *LLMJudgeReranker) Rerank(ctx context.Context, query string, chunks []vector.ScoredChunk, topK int) ([]vector.ScoredChunk, error) {
	input := compactChunks(chunks)
	if len(input) == 0 {
		return []vector.ScoredChunk{}, nil
	}

	prompts := make([]string, len(input))
	for i, sc := range input {
		prompt, err := r.template.Format(map[string]string{
			"query":    template.Sanitize(query),
			"document": template.Sanitize(sc.Chunk().Text),
			"scale":    strconv.Itoa(r.scale),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build reranking prompt: %w", err)
		}
		prompts[i] = prompt
	}

	// scored[i] replaces input[i]; batches write disjoint ranges.
	scored := make([]vector.ScoredChunk, len(input))

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(input); start += r.batchSize {
		end := min(start+r.batchSize, len(input))
		g.Go(func() error {
			r.scoreBatch(gctx, prompts[start:end], input[start:end], scored[start:end])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return sortAndTruncate(scored, topK), nil
}

// scoreBatch fills out[i] with a rescored copy of batch[i]. Any batch
// level failure (call error, mismatched response count) keeps the
// original scores.
func (r *LLMJudgeReranker) scoreBatch(ctx context.Context, prompts []string, batch, out []vector.ScoredChunk) {
	observability.Global().RecordRerankBatch(ctx, r.Name())
	responses, err := r.provider.GenerateBatch(ctx, "", prompts, nil)
	if err != nil || len(responses) != len(batch) {
		if err != nil {
			slog.Warn("rerank batch failed, keeping original scores",
				"batch_size", len(batch), "error", err)
		} else {
			slog.Warn("rerank batch returned mismatched response count, keeping original scores",
				"expected", len(batch), "got", len(responses))
		}
		copy(out, batch)
		return
	}

	for i, response := range responses {
		score, ok := parseScore(response, float64(r.scale))
		if !ok {
			slog.Debug("unparseable rerank response, using neutral score",
				"chunk_id", batch[i].Chunk().ID, "response", response)
			score = parseFailureScore
		}
		out[i] = batch[i].WithScore(score)
	}
}
