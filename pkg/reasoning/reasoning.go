// Package reasoning implements optional chain-of-thought decomposition
// for complex questions. The service splits a question into sub-steps,
// answers each against the retrieved context, and aggregates the trace
// into a CoTOutput the pipeline attaches to its response.
package reasoning

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/groundwork-ai/groundwork/pkg/errs"
	"github.com/groundwork-ai/groundwork/pkg/llms"
	"github.com/groundwork-ai/groundwork/pkg/template"
)

// Step is one reasoning sub-question with its intermediate answer.
type Step struct {
	Index      int     `json:"index"`
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
	Tokens     int     `json:"tokens"`
}

// CoTOutput is the full reasoning trace.
type CoTOutput struct {
	Steps           []Step  `json:"steps"`
	Confidence      float64 `json:"confidence"`
	TotalTokens     int     `json:"total_tokens"`
	ExecutionTimeMS int64   `json:"execution_time_ms"`
}

// defaultConfidence applies when a step answer carries no parseable
// confidence marker.
const defaultConfidence = 0.7

var confidencePattern = regexp.MustCompile(`(?i)confidence\s*:?\s*(\d+(?:\.\d+)?)`)

// Service runs chain-of-thought decomposition against an LLM provider.
type Service struct {
	provider llms.Provider
	maxSteps int
}

func NewService(provider llms.Provider, maxSteps int) *Service {
	if maxSteps <= 0 {
		maxSteps = 4
	}
	return &Service{provider: provider, maxSteps: maxSteps}
}

// Run decomposes the question and answers each step against the
// retrieved context.
func (s *Service) Run(ctx context.Context, userID, question, contextText string, params *llms.Params) (*CoTOutput, error) {
	start := time.Now()

	steps, err := s.decompose(ctx, userID, question, params)
	if err != nil {
		return nil, err
	}

	output := &CoTOutput{Steps: make([]Step, 0, len(steps))}
	for i, sub := range steps {
		step, err := s.answerStep(ctx, userID, i, sub, contextText, params)
		if err != nil {
			// A failed step ends the trace; completed steps are kept.
			slog.Warn("reasoning step failed", "step", i, "error", err)
			break
		}
		output.Steps = append(output.Steps, step)
		output.TotalTokens += step.Tokens
	}

	if len(output.Steps) == 0 {
		return nil, errs.New(errs.KindLLMProvider, "Reasoning", "Run", "no reasoning steps completed")
	}

	var sum float64
	for _, step := range output.Steps {
		sum += step.Confidence
	}
	output.Confidence = sum / float64(len(output.Steps))
	output.ExecutionTimeMS = time.Since(start).Milliseconds()
	return output, nil
}

// decompose asks the model for up to maxSteps sub-questions, one per
// line.
func (s *Service) decompose(ctx context.Context, userID, question string, params *llms.Params) ([]string, error) {
	prompt := fmt.Sprintf(`Break the following question into at most %d smaller
sub-questions that together answer it. One sub-question per line, no
numbering, no commentary.

Question: %s`, s.maxSteps, template.Sanitize(question))

	response, err := s.provider.Generate(ctx, llms.GenerateRequest{
		UserID: userID,
		Prompt: prompt,
		Params: params,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindLLMProvider, "Reasoning", "decompose", "decomposition failed", err)
	}

	var steps []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "0123456789.-) "))
		if line == "" {
			continue
		}
		steps = append(steps, line)
		if len(steps) == s.maxSteps {
			break
		}
	}
	if len(steps) == 0 {
		// A question the model declines to split is its own single step.
		steps = []string{question}
	}
	return steps, nil
}

func (s *Service) answerStep(ctx context.Context, userID string, index int, subQuestion, contextText string, params *llms.Params) (Step, error) {
	prompt := fmt.Sprintf(`Use the context to answer the sub-question. End your
reply with a line "Confidence: N" where N is 0-10.

Context:
%s

Sub-question: %s`, template.Sanitize(contextText), template.Sanitize(subQuestion))

	answer, err := s.provider.Generate(ctx, llms.GenerateRequest{
		UserID: userID,
		Prompt: prompt,
		Params: params,
	})
	if err != nil {
		return Step{}, err
	}

	confidence := defaultConfidence
	if m := confidencePattern.FindStringSubmatch(answer); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			confidence = v / 10
			if confidence > 1 {
				confidence = 1
			}
			if confidence < 0 {
				confidence = 0
			}
		}
		// Strip the confidence line from the visible answer.
		answer = strings.TrimSpace(confidencePattern.ReplaceAllString(answer, ""))
	}

	return Step{
		Index:      index,
		Question:   subQuestion,
		Answer:     answer,
		Confidence: confidence,
		Tokens:     s.provider.CountTokens(prompt) + s.provider.CountTokens(answer),
	}, nil
}
