package reranking

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundwork-ai/groundwork/pkg/llms"
	"github.com/groundwork-ai/groundwork/pkg/observability"
	"github.com/groundwork-ai/groundwork/pkg/vector"
)

// mockProvider implements llms.Provider for reranker tests.
type mockProvider struct {
	generateBatch func(prompts []string) ([]string, error)
	batchCalls    atomic.Int32
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Generate(ctx context.Context, req llms.GenerateRequest) (string, error) {
	prompt, err := req.ResolvePrompt()
	if err != nil {
		return "", err
	}
	out, err := m.GenerateBatch(ctx, req.UserID, []string{prompt}, req.Params)
	if err != nil {
		return "", err
	}
	return out[0], nil
}

func (m *mockProvider) GenerateBatch(ctx context.Context, userID string, prompts []string, params *llms.Params) ([]string, error) {
	m.batchCalls.Add(1)
	return m.generateBatch(prompts)
}

func (m *mockProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockProvider) CountTokens(text string) int { return len(text) }

func chunksWithScores(scores ...float64) []vector.ScoredChunk {
	out := make([]vector.ScoredChunk, len(scores))
	for i, s := range scores {
		out[i] = vector.NewScoredChunk(vector.DocumentChunk{
			ID:   fmt.Sprintf("chunk-%d", i),
			Text: fmt.Sprintf("document %d", i),
		}, s)
	}
	return out
}

func assertDescending(t *testing.T, chunks []vector.ScoredChunk) {
	t.Helper()
	for i := 1; i < len(chunks); i++ {
		assert.GreaterOrEqual(t, chunks[i-1].Score(), chunks[i].Score())
	}
}

func assertScoreConsistency(t *testing.T, chunks []vector.ScoredChunk) {
	t.Helper()
	for _, sc := range chunks {
		assert.Equal(t, sc.Score(), sc.Chunk().Score())
	}
}

func TestScoreSortReranker(t *testing.T) {
	r := NewScoreSortReranker()

	out, err := r.Rerank(context.Background(), "q", chunksWithScores(0.2, 0.9, 0.5), 0)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "chunk-1", out[0].Chunk().ID)
	assertDescending(t, out)
	assertScoreConsistency(t, out)
}

func TestScoreSortRerankerTopK(t *testing.T) {
	r := NewScoreSortReranker()

	tests := []struct {
		inputLen int
		topK     int
		wantLen  int
	}{
		{5, 3, 3},
		{5, 10, 5},
		{5, 0, 5},
		{0, 3, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("n%d_k%d", tt.inputLen, tt.topK), func(t *testing.T) {
			scores := make([]float64, tt.inputLen)
			for i := range scores {
				scores[i] = float64(i) / 10
			}
			out, err := r.Rerank(context.Background(), "q", chunksWithScores(scores...), tt.topK)
			require.NoError(t, err)
			assert.Len(t, out, tt.wantLen)
		})
	}
}

func TestScoreSortRerankerIdempotent(t *testing.T) {
	r := NewScoreSortReranker()
	input := chunksWithScores(0.2, 0.9, 0.5)

	once, err := r.Rerank(context.Background(), "q", input, 2)
	require.NoError(t, err)
	twice, err := r.Rerank(context.Background(), "q", once, 2)
	require.NoError(t, err)

	require.Equal(t, len(once), len(twice))
	for i := range once {
		assert.Equal(t, once[i].Chunk().ID, twice[i].Chunk().ID)
		assert.Equal(t, once[i].Score(), twice[i].Score())
	}
}

func TestScoreSortRerankerSkipsZeroValueChunks(t *testing.T) {
	r := NewScoreSortReranker()
	input := []vector.ScoredChunk{
		vector.NewScoredChunk(vector.DocumentChunk{ID: "a", Text: "x"}, 0.4),
		{}, // absent entry
		vector.NewScoredChunk(vector.DocumentChunk{ID: "b", Text: "y"}, 0.8),
	}

	out, err := r.Rerank(context.Background(), "q", input, 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].Chunk().ID)
}

func TestLLMJudgeScoreConsistency(t *testing.T) {
	// Judge rates [9.5, 8.0, 6.5] on a 0-10 scale; original order is
	// preserved because the judge agrees with it.
	provider := &mockProvider{generateBatch: func(prompts []string) ([]string, error) {
		responses := []string{"9.5", "8.0", "6.5"}
		return responses[:len(prompts)], nil
	}}
	r := NewLLMJudgeReranker(provider, nil, 5, 10)

	out, err := r.Rerank(context.Background(), "q", chunksWithScores(0.9, 0.7, 0.5), 3)
	require.NoError(t, err)
	require.Len(t, out, 3)

	wantScores := []float64{0.95, 0.80, 0.65}
	for i, sc := range out {
		assert.Equal(t, fmt.Sprintf("chunk-%d", i), sc.Chunk().ID)
		assert.InDelta(t, wantScores[i], sc.Score(), 1e-9)
		assert.Equal(t, sc.Score(), sc.Chunk().Score())
	}
	assertDescending(t, out)
}

func TestLLMJudgeBatchFailureFallsBack(t *testing.T) {
	provider := &mockProvider{generateBatch: func(prompts []string) ([]string, error) {
		return nil, fmt.Errorf("rate limited")
	}}
	r := NewLLMJudgeReranker(provider, nil, 5, 10)

	scores := []float64{0.91, 0.82, 0.73, 0.64, 0.55, 0.46, 0.37, 0.28, 0.19, 0.10}
	out, err := r.Rerank(context.Background(), "q", chunksWithScores(scores...), 0)
	require.NoError(t, err, "reranking failure must not abort the search")
	require.Len(t, out, 10)

	// Original scores survive and ordering is still descending.
	for i, sc := range out {
		assert.InDelta(t, scores[i], sc.Score(), 1e-9)
	}
	assertDescending(t, out)
	assertScoreConsistency(t, out)
	assert.Equal(t, int32(2), provider.batchCalls.Load(), "10 chunks at batch size 5 is 2 batches")
}

func TestLLMJudgeMismatchedBatchFallsBack(t *testing.T) {
	provider := &mockProvider{generateBatch: func(prompts []string) ([]string, error) {
		return []string{"9"}, nil // fewer responses than prompts
	}}
	r := NewLLMJudgeReranker(provider, nil, 5, 10)

	out, err := r.Rerank(context.Background(), "q", chunksWithScores(0.6, 0.4, 0.2), 0)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.InDelta(t, 0.6, out[0].Score(), 1e-9)
	assert.InDelta(t, 0.4, out[1].Score(), 1e-9)
	assert.InDelta(t, 0.2, out[2].Score(), 1e-9)
}

func TestLLMJudgeParseFailureDefaultsToNeutral(t *testing.T) {
	provider := &mockProvider{generateBatch: func(prompts []string) ([]string, error) {
		out := make([]string, len(prompts))
		for i := range out {
			out[i] = "I cannot rate this document."
		}
		return out, nil
	}}
	r := NewLLMJudgeReranker(provider, nil, 5, 10)

	out, err := r.Rerank(context.Background(), "q", chunksWithScores(0.9), 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, parseFailureScore, out[0].Score())
	assertScoreConsistency(t, out)
}

func TestLLMJudgeEmptyInputMakesNoCalls(t *testing.T) {
	provider := &mockProvider{generateBatch: func(prompts []string) ([]string, error) {
		return nil, fmt.Errorf("should not be called")
	}}
	r := NewLLMJudgeReranker(provider, nil, 5, 10)

	out, err := r.Rerank(context.Background(), "q", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, provider.batchCalls.Load())
}

func TestLLMJudgeTopK(t *testing.T) {
	provider := &mockProvider{generateBatch: func(prompts []string) ([]string, error) {
		out := make([]string, len(prompts))
		for i := range out {
			out[i] = "5/10"
		}
		return out, nil
	}}
	r := NewLLMJudgeReranker(provider, nil, 2, 10)

	out, err := r.Rerank(context.Background(), "q", chunksWithScores(0.1, 0.2, 0.3, 0.4, 0.5), 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		response string
		scale    float64
		want     float64
		ok       bool
	}{
		{"9.5/10", 10, 0.95, true},
		{"The score is 8/10 overall", 10, 0.8, true},
		{"Score: 7", 10, 0.7, true},
		{"rating 6", 10, 0.6, true},
		{"Relevance: 9.0", 10, 0.9, true},
		{"8", 10, 0.8, true},
		{"  3.5 out of ten", 10, 0.35, true},
		{"15", 10, 1.0, true}, // clamped
		{"no number here", 10, 0, false},
		{"", 10, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.response, func(t *testing.T) {
			got, ok := parseScore(tt.response, tt.scale)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestCrossEncoderReranker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"scores": [0.2, 0.9, 0.6]}`)
	}))
	defer server.Close()

	r := NewCrossEncoderReranker(server.URL, 1)
	out, err := r.Rerank(context.Background(), "q", chunksWithScores(0.5, 0.5, 0.5), 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "chunk-1", out[0].Chunk().ID)
	assert.InDelta(t, 0.9, out[0].Score(), 1e-9)
	assert.Equal(t, "chunk-2", out[1].Chunk().ID)
	assertScoreConsistency(t, out)
}

func TestCrossEncoderRerankerScoreCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"scores": [0.2]}`)
	}))
	defer server.Close()

	r := NewCrossEncoderReranker(server.URL, 1)
	_, err := r.Rerank(context.Background(), "q", chunksWithScores(0.5, 0.5), 0)
	assert.Error(t, err)
}

// batchRecorder counts rerank batch reports per strategy.
type batchRecorder struct {
	observability.NoopRecorder
	mu      sync.Mutex
	batches map[string]int
}

func (r *batchRecorder) RecordRerankBatch(ctx context.Context, strategy string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.batches == nil {
		r.batches = map[string]int{}
	}
	r.batches[strategy]++
}

func TestLLMJudgeRecordsEveryBatch(t *testing.T) {
	rec := &batchRecorder{}
	observability.SetGlobal(rec)
	t.Cleanup(func() { observability.SetGlobal(nil) })

	provider := &mockProvider{generateBatch: func(prompts []string) ([]string, error) {
		out := make([]string, len(prompts))
		for i := range out {
			out[i] = "5"
		}
		return out, nil
	}}

	r := NewLLMJudgeReranker(provider, nil, 2, 10)
	_, err := r.Rerank(context.Background(), "q", chunksWithScores(0.1, 0.2, 0.3, 0.4, 0.5), 0)
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 3, rec.batches["llm_judge"], "five chunks at batch size two yield three batches")
}

func TestScoreSortRecordsBatch(t *testing.T) {
	rec := &batchRecorder{}
	observability.SetGlobal(rec)
	t.Cleanup(func() { observability.SetGlobal(nil) })

	_, err := NewScoreSortReranker().Rerank(context.Background(), "q", chunksWithScores(0.3, 0.7), 0)
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.batches["score_sort"])
}
