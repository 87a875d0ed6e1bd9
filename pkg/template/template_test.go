package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundwork-ai/groundwork/pkg/errs"
)

func TestNew_ValidatesPlaceholdersAgainstVariables(t *testing.T) {
	tests := []struct {
		name      string
		format    string
		variables []string
		wantErr   bool
	}{
		{"exact match", "Q: {query} D: {document} S: {scale}", []string{"query", "document", "scale"}, false},
		{"undeclared placeholder", "Q: {query} extra: {oops}", []string{"query"}, true},
		{"unused declared variable", "Q: {query}", []string{"query", "unused"}, true},
		{"empty format", "   ", []string{}, true},
		{"no placeholders", "static prompt", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(KindReranking, tt.format, tt.variables)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errs.Is(err, errs.KindValidation))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNew_RejectsUnknownKind(t *testing.T) {
	_, err := New(Kind("bogus"), "{x}", []string{"x"})
	require.Error(t, err)
}

func TestFormat_SubstitutesAllVariables(t *testing.T) {
	tmpl, err := New(KindRAGQuery, "Context: {context}\nQuestion: {question}", []string{"context", "question"})
	require.NoError(t, err)

	out, err := tmpl.Format(map[string]string{
		"context":  "Paris is the capital of France.",
		"question": "What is the capital of France?",
	})
	require.NoError(t, err)
	assert.Equal(t, "Context: Paris is the capital of France.\nQuestion: What is the capital of France?", out)
}

func TestFormat_MissingVariableFails(t *testing.T) {
	tmpl, err := New(KindRAGQuery, "{context} {question}", []string{"context", "question"})
	require.NoError(t, err)

	_, err = tmpl.Format(map[string]string{"context": "only context"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindValidation))
}

func TestDefaults_DeclareExpectedVariables(t *testing.T) {
	assert.Equal(t, []string{"context", "question"}, DefaultRAGQuery.Variables())
	assert.Equal(t, []string{"document", "query", "scale"}, DefaultReranking.Variables())
	assert.Equal(t, []string{"answer", "context", "question"}, DefaultResponseEvaluation.Variables())
}
