package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/groundwork-ai/groundwork/pkg/llms"
	"github.com/groundwork-ai/groundwork/pkg/template"
)

var (
	booleanGluePattern = regexp.MustCompile(`(?i)\b(AND|OR|NOT)\b`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
	parenthesesPattern = regexp.MustCompile(`[()]`)
)

// SanitizeQuery strips boolean glue, parentheses, and collapses
// whitespace. Applied to every question before retrieval.
func SanitizeQuery(question string) string {
	out := booleanGluePattern.ReplaceAllString(question, " ")
	out = parenthesesPattern.ReplaceAllString(out, " ")
	out = whitespacePattern.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// QueryEnhancementStage rewrites the question for retrieval. Plain
// sanitization always runs; an LLM rewrite is added when the request
// enables it. This stage never fails fatally: on any error the
// sanitized question is used and the error is recorded.
type QueryEnhancementStage struct{}

func NewQueryEnhancementStage() *QueryEnhancementStage {
	return &QueryEnhancementStage{}
}

func (s *QueryEnhancementStage) Name() string { return "query_enhancement" }

func (s *QueryEnhancementStage) Run(ctx context.Context, sc *SearchContext) StageResult {
	sanitized := SanitizeQuery(sc.Input.Question)
	if sanitized == "" {
		sanitized = strings.TrimSpace(sc.Input.Question)
	}
	sc.RewrittenQuery = sanitized

	if !sc.Options.RewriteEnabled {
		return ok(map[string]any{"rewritten": sanitized != sc.Input.Question, "llm_rewrite": false})
	}

	rewritten, err := s.rewrite(ctx, sc, sanitized)
	if err != nil {
		sc.AddError(s.Name(), err)
		return recoverable(err)
	}
	if rewritten != "" {
		sc.RewrittenQuery = rewritten
	}
	return ok(map[string]any{"rewritten": true, "llm_rewrite": true})
}

// rewrite asks the provider for a retrieval-friendly restatement,
// informed by conversation context and entities when present.
func (s *QueryEnhancementStage) rewrite(ctx context.Context, sc *SearchContext, question string) (string, error) {
	if sc.Provider == nil {
		return "", fmt.Errorf("no provider resolved")
	}

	var b strings.Builder
	b.WriteString("Rewrite the question as a standalone search query. Keep it short.\n")
	b.WriteString("Respond with only the rewritten query.\n\n")
	if sc.Options.ContextWindow != "" {
		fmt.Fprintf(&b, "Conversation so far:\n%s\n\n", template.Sanitize(sc.Options.ContextWindow))
	}
	if len(sc.Options.Entities) > 0 {
		fmt.Fprintf(&b, "Known entities: %s\n\n", strings.Join(sc.Options.Entities, ", "))
	}
	fmt.Fprintf(&b, "Question: %s", template.Sanitize(question))

	response, err := sc.Provider.Generate(ctx, llms.GenerateRequest{
		UserID: sc.Input.UserID,
		Prompt: b.String(),
		Params: sc.Params,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(response), `"`)), nil
}

var _ Stage = (*QueryEnhancementStage)(nil)
