package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/groundwork-ai/groundwork/pkg/errs"
	"github.com/groundwork-ai/groundwork/pkg/llms"
	"github.com/groundwork-ai/groundwork/pkg/storage"
	"github.com/groundwork-ai/groundwork/pkg/template"
	"github.com/groundwork-ai/groundwork/pkg/vector"
)

// GenerationStage formats the retrieved chunks into a context string
// and asks the provider for the final answer. With no retrieved chunks
// the stage short-circuits to the fixed no-documents answer.
type GenerationStage struct{}

func NewGenerationStage() *GenerationStage {
	return &GenerationStage{}
}

func (s *GenerationStage) Name() string { return "generation" }

func (s *GenerationStage) Run(ctx context.Context, sc *SearchContext) StageResult {
	if len(sc.QueryResults) == 0 {
		sc.Answer = NoDocumentsAnswer
		return ok(map[string]any{"skipped": true, "reason": "no documents"})
	}

	strategy := storage.ContextSimple
	maxTokens := 4096
	if sc.Pipeline != nil {
		strategy = sc.Pipeline.ContextStrategy
		maxTokens = sc.Pipeline.MaxContextTokens
	}
	contextText := FormatContext(sc.QueryResults, strategy, maxTokens, sc.Provider.CountTokens)

	answer, err := sc.Provider.Generate(ctx, llms.GenerateRequest{
		UserID:   sc.Input.UserID,
		Template: sc.RAGTemplate,
		Variables: map[string]string{
			"context":  template.Sanitize(contextText),
			"question": template.Sanitize(sc.RewrittenQuery),
		},
		Params: sc.Params,
	})
	if err != nil {
		return fatal(errs.Wrap(errs.KindLLMProvider, "Pipeline", s.Name(),
			"answer generation failed", err))
	}

	sc.Answer = strings.TrimSpace(answer)
	return ok(map[string]any{
		"context_strategy": string(strategy),
		"context_tokens":   sc.Provider.CountTokens(contextText),
	})
}

// FormatContext assembles chunk texts under a token budget.
//
// simple joins chunks in retrieval order; priority joins them by
// descending score; weighted additionally labels each chunk with its
// relevance so the model can weigh conflicting evidence.
func FormatContext(chunks []vector.ScoredChunk, strategy storage.ContextStrategy, maxTokens int, countTokens func(string) int) string {
	ordered := make([]vector.ScoredChunk, len(chunks))
	copy(ordered, chunks)

	switch strategy {
	case storage.ContextPriority, storage.ContextWeighted:
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].Score() > ordered[j].Score()
		})
	}

	var parts []string
	used := 0
	for _, sc := range ordered {
		text := sc.Chunk().Text
		if strategy == storage.ContextWeighted {
			text = fmt.Sprintf("[relevance %.2f] %s", sc.Score(), text)
		}
		cost := countTokens(text)
		if used+cost > maxTokens && len(parts) > 0 {
			break
		}
		parts = append(parts, text)
		used += cost
	}
	return strings.Join(parts, "\n\n")
}

func joinChunkTexts(chunks []vector.ScoredChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, sc := range chunks {
		parts = append(parts, sc.Chunk().Text)
	}
	return strings.Join(parts, "\n\n")
}

var _ Stage = (*GenerationStage)(nil)
