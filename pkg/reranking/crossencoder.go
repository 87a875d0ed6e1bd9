package reranking

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/groundwork-ai/groundwork/pkg/errs"
	"github.com/groundwork-ai/groundwork/pkg/httpclient"
	"github.com/groundwork-ai/groundwork/pkg/observability"
	"github.com/groundwork-ai/groundwork/pkg/vector"
)

// CrossEncoderReranker scores all (query, document) pairs in one call
// to an external encoder service.
type CrossEncoderReranker struct {
	url    string
	scale  float64
	client *httpclient.Client
}

type crossEncoderRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type crossEncoderResponse struct {
	Scores []float64 `json:"scores"`
}

func NewCrossEncoderReranker(url string, scale int, opts ...httpclient.Option) *CrossEncoderReranker {
	if scale <= 0 {
		scale = 1
	}
	return &CrossEncoderReranker{
		url:    url,
		scale:  float64(scale),
		client: httpclient.New(opts...),
	}
}

func (r *CrossEncoderReranker) Name() string {
	return "cross_encoder"
}

func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, chunks []vector.ScoredChunk, topK int) ([]vector.ScoredChunk, error) {
	input := compactChunks(chunks)
	if len(input) == 0 {
		return []vector.ScoredChunk{}, nil
	}
	// The encoder scores every pair in one round trip.
	observability.Global().RecordRerankBatch(ctx, r.Name())

	documents := make([]string, len(input))
	for i, sc := range input {
		documents[i] = sc.Chunk().Text
	}

	body, err := json.Marshal(crossEncoderRequest{Query: query, Documents: documents})
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "CrossEncoderReranker", "Rerank", "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "CrossEncoderReranker", "Rerank", "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindLLMProvider, "CrossEncoderReranker", "Rerank", "encoder request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errs.Newf(errs.KindLLMProvider, "CrossEncoderReranker", "Rerank",
			"encoder returned status %d: %s", resp.StatusCode, payload)
	}

	var parsed crossEncoderResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errs.Wrap(errs.KindLLMProvider, "CrossEncoderReranker", "Rerank", "malformed encoder response", err)
	}
	if len(parsed.Scores) != len(input) {
		return nil, errs.Newf(errs.KindLLMProvider, "CrossEncoderReranker", "Rerank",
			"encoder returned %d scores for %d documents", len(parsed.Scores), len(input))
	}

	scored := make([]vector.ScoredChunk, len(input))
	for i, sc := range input {
		scored[i] = sc.WithScore(clamp01(parsed.Scores[i] / r.scale))
	}
	return sortAndTruncate(scored, topK), nil
}

var (
	_ Reranker = (*CrossEncoderReranker)(nil)
	_ Reranker = (*ScoreSortReranker)(nil)
	_ Reranker = (*LLMJudgeReranker)(nil)
)
