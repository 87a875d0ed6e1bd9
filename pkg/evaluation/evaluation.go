// Package evaluation scores a generated answer against its question
// and retrieved context. Two modes exist: embedding cosine similarity
// and LLM-as-judge. An evaluation never fails a search; problems are
// reported inside the report itself.
package evaluation

import (
	"context"

	"github.com/groundwork-ai/groundwork/pkg/vector"
)

// noDocumentsError is reported when evaluation runs over an empty
// retrieval result.
const noDocumentsError = "No documents found"

// Input is the (question, answer, context) triple under evaluation.
type Input struct {
	Query  string
	Answer string
	Chunks []vector.ScoredChunk
}

// Report holds component scores in [0,1]. JudgeErrors carries per-judge
// failures in LLM mode; Error marks a report that could not be
// computed at all.
type Report struct {
	Mode         string            `json:"mode"`
	Relevance    float64           `json:"relevance"`
	Coherence    float64           `json:"coherence,omitempty"`
	Faithfulness float64           `json:"faithfulness"`
	Overall      float64           `json:"overall"`
	Error        string            `json:"error,omitempty"`
	JudgeErrors  map[string]string `json:"judge_errors,omitempty"`
}

// Evaluator scores one answer.
type Evaluator interface {
	Evaluate(ctx context.Context, input Input) *Report
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
