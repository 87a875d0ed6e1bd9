package evaluation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/groundwork-ai/groundwork/pkg/llms"
	"github.com/groundwork-ai/groundwork/pkg/template"
)

// Judge aspect names, also the keys of Report.JudgeErrors.
const (
	judgeFaithfulness     = "faithfulness"
	judgeAnswerRelevance  = "answer_relevance"
	judgeContextRelevance = "context_relevance"
)

var floatPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// LLMJudgeEvaluator runs three judges concurrently, one per aspect. A
// failed judge contributes an error string, never an evaluation
// failure.
type LLMJudgeEvaluator struct {
	provider llms.Provider
	template *template.Template
	userID   string
	params   *llms.Params
}

func NewLLMJudgeEvaluator(provider llms.Provider, tmpl *template.Template, userID string, params *llms.Params) *LLMJudgeEvaluator {
	if tmpl == nil {
		tmpl = template.DefaultResponseEvaluation
	}
	return &LLMJudgeEvaluator{provider: provider, template: tmpl, userID: userID, params: params}
}

func (e *LLMJudgeEvaluator) Evaluate(ctx context.Context, input Input) *Report {
	report := &Report{Mode: "llm_judge"}
	if len(input.Chunks) == 0 {
		report.Error = noDocumentsError
		return report
	}

	contextText := chunksText(input)

	judges := []struct {
		name   string
		answer string
		target *float64
	}{
		// Each aspect rates a different pairing of the triple; the shared
		// template sees the pairing through its answer slot.
		{judgeFaithfulness, input.Answer, &report.Faithfulness},
		{judgeAnswerRelevance, input.Answer, &report.Coherence},
		{judgeContextRelevance, contextText, &report.Relevance},
	}

	var (
		mu     sync.Mutex
		errors = map[string]string{}
		wg     sync.WaitGroup
	)
	for _, judge := range judges {
		wg.Add(1)
		go func() {
			defer wg.Done()
			score, err := e.judge(ctx, input.Query, contextText, judge.answer)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errors[judge.name] = err.Error()
				return
			}
			*judge.target = score
		}()
	}
	wg.Wait()

	if len(errors) > 0 {
		report.JudgeErrors = errors
	}

	var sum float64
	var n int
	for _, judge := range judges {
		if _, failed := errors[judge.name]; failed {
			continue
		}
		sum += *judge.target
		n++
	}
	if n > 0 {
		report.Overall = sum / float64(n)
	} else {
		report.Error = "all judges failed"
	}
	return report
}

func (e *LLMJudgeEvaluator) judge(ctx context.Context, question, contextText, answer string) (float64, error) {
	response, err := e.provider.Generate(ctx, llms.GenerateRequest{
		UserID:   e.userID,
		Template: e.template,
		Variables: map[string]string{
			"context":  template.Sanitize(contextText),
			"question": template.Sanitize(question),
			"answer":   template.Sanitize(answer),
		},
		Params: e.params,
	})
	if err != nil {
		return 0, err
	}

	m := floatPattern.FindString(response)
	if m == "" {
		return 0, fmt.Errorf("no score in judge response %q", response)
	}
	score, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, err
	}
	// Judges occasionally answer on a 0-10 scale despite the prompt.
	if score > 1 {
		score /= 10
	}
	return clamp01(score), nil
}

func chunksText(input Input) string {
	parts := make([]string, 0, len(input.Chunks))
	for _, sc := range input.Chunks {
		parts = append(parts, sc.Chunk().Text)
	}
	return strings.Join(parts, "\n\n")
}

var _ Evaluator = (*LLMJudgeEvaluator)(nil)
