package pipeline

import (
	"context"

	"github.com/groundwork-ai/groundwork/pkg/reasoning"
)

// ReasoningStage runs chain-of-thought decomposition when the request
// asks for it. Failures are recoverable: the answer is still generated
// without a reasoning trace.
type ReasoningStage struct {
	maxSteps int
}

func NewReasoningStage(maxSteps int) *ReasoningStage {
	return &ReasoningStage{maxSteps: maxSteps}
}

func (s *ReasoningStage) Name() string { return "reasoning" }

func (s *ReasoningStage) Run(ctx context.Context, sc *SearchContext) StageResult {
	if !sc.Options.CoTEnabled {
		return ok(map[string]any{"skipped": true})
	}
	if len(sc.QueryResults) == 0 {
		return ok(map[string]any{"skipped": true, "reason": "no documents"})
	}

	contextText := joinChunkTexts(sc.QueryResults)
	svc := reasoning.NewService(sc.Provider, s.maxSteps)

	output, err := svc.Run(ctx, sc.Input.UserID, sc.RewrittenQuery, contextText, sc.Params)
	if err != nil {
		sc.AddError(s.Name(), err)
		return recoverable(err)
	}

	sc.CoT = output
	return ok(map[string]any{
		"steps":      len(output.Steps),
		"confidence": output.Confidence,
	})
}

var _ Stage = (*ReasoningStage)(nil)
