package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/groundwork-ai/groundwork/pkg/errs"
)

// Metrics receives stage timing events. Implementations must not
// block; the executor calls them inline.
type Metrics interface {
	StageCompleted(ctx context.Context, stage string, duration time.Duration, failed bool)
}

type nopMetrics struct{}

func (nopMetrics) StageCompleted(context.Context, string, time.Duration, bool) {}

// Executor runs the fixed stage order over one SearchContext.
//
// Stage order is a contract: reranking completes before generation
// reads the query results, and reasoning sits between them. A
// recoverable stage error is recorded on the context and execution
// continues; a fatal error stops the run with everything computed so
// far still present on the context.
type Executor struct {
	stages  []Stage
	metrics Metrics
}

// NewExecutor builds an executor over the given stages, in order.
func NewExecutor(stages []Stage, metrics Metrics) *Executor {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Executor{stages: stages, metrics: metrics}
}

// Execute runs every stage. The returned error, if any, is fatal; the
// context is always returned with whatever was computed.
func (e *Executor) Execute(ctx context.Context, sc *SearchContext) error {
	start := time.Now()
	defer func() {
		sc.ExecutionTimeMS = time.Since(start).Milliseconds()
	}()

	for _, stage := range e.stages {
		if err := ctx.Err(); err != nil {
			return errs.Wrap(errs.KindCancellation, "Pipeline", stage.Name(),
				"request deadline reached", err)
		}

		stageStart := time.Now()
		result := stage.Run(ctx, sc)
		elapsed := time.Since(stageStart)

		metadata := result.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["duration_ms"] = elapsed.Milliseconds()
		sc.StageMetadata[stage.Name()] = metadata

		e.metrics.StageCompleted(ctx, stage.Name(), elapsed, result.Disposition == Fatal)

		switch result.Disposition {
		case Ok:
		case Recoverable:
			slog.Warn("pipeline stage recovered",
				"stage", stage.Name(),
				"error", result.Err,
				"duration_ms", elapsed.Milliseconds())
		case Fatal:
			// A deadline firing mid-stage surfaces as cancellation, not as
			// the stage's own failure kind.
			if ctx.Err() != nil && errs.KindOf(result.Err) != errs.KindCancellation {
				return errs.Wrap(errs.KindCancellation, "Pipeline", stage.Name(),
					"request deadline reached", result.Err)
			}
			return result.Err
		}
	}
	return nil
}

// DefaultStages assembles the canonical six-stage order.
func DefaultStages(resolution *ResolutionStage, retrieval *RetrievalStage, rerank *RerankStage, maxReasoningSteps int) []Stage {
	return []Stage{
		resolution,
		NewQueryEnhancementStage(),
		retrieval,
		rerank,
		NewReasoningStage(maxReasoningSteps),
		NewGenerationStage(),
	}
}
