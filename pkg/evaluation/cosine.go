package evaluation

import (
	"context"
	"log/slog"
	"math"

	"github.com/groundwork-ai/groundwork/pkg/llms"
)

// CosineEvaluator scores with embedding similarity. Missing embeddings
// are skipped; a component with no usable pair scores 0.
type CosineEvaluator struct {
	provider llms.Provider
}

func NewCosineEvaluator(provider llms.Provider) *CosineEvaluator {
	return &CosineEvaluator{provider: provider}
}

func (e *CosineEvaluator) Evaluate(ctx context.Context, input Input) *Report {
	report := &Report{Mode: "cosine"}
	if len(input.Chunks) == 0 {
		report.Error = noDocumentsError
		return report
	}

	// One embedding call covers query, answer, and every chunk.
	texts := make([]string, 0, len(input.Chunks)+2)
	texts = append(texts, input.Query, input.Answer)
	for _, sc := range input.Chunks {
		texts = append(texts, sc.Chunk().Text)
	}

	embeddings, err := e.provider.Embed(ctx, texts)
	if err != nil || len(embeddings) != len(texts) {
		slog.Warn("evaluation embedding failed", "error", err)
		report.Error = "embedding failed"
		return report
	}

	query, answer := embeddings[0], embeddings[1]
	chunks := embeddings[2:]

	report.Relevance = clamp01(meanCosine(query, chunks))
	report.Coherence = clamp01(cosine(query, answer))
	report.Faithfulness = clamp01(meanCosine(answer, chunks))
	report.Overall = (report.Relevance + report.Coherence + report.Faithfulness) / 3
	return report
}

// meanCosine averages cosine(ref, v) over the vectors that actually
// have an embedding.
func meanCosine(ref []float32, vectors [][]float32) float64 {
	var sum float64
	var n int
	for _, v := range vectors {
		if len(v) == 0 {
			continue
		}
		sum += cosine(ref, v)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ Evaluator = (*CosineEvaluator)(nil)
