package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundwork-ai/groundwork/pkg/config"
	"github.com/groundwork-ai/groundwork/pkg/conversation"
	"github.com/groundwork-ai/groundwork/pkg/llms"
	"github.com/groundwork-ai/groundwork/pkg/observability"
	"github.com/groundwork-ai/groundwork/pkg/pipeline"
	"github.com/groundwork-ai/groundwork/pkg/search"
	"github.com/groundwork-ai/groundwork/pkg/storage"
	"github.com/groundwork-ai/groundwork/pkg/vector"
)

type fakeProvider struct {
	answer      string
	generateErr error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Generate(ctx context.Context, req llms.GenerateRequest) (string, error) {
	if _, err := req.ResolvePrompt(); err != nil {
		return "", err
	}
	if p.generateErr != nil {
		return "", p.generateErr
	}
	return p.answer, nil
}

func (p *fakeProvider) GenerateBatch(ctx context.Context, userID string, prompts []string, params *llms.Params) ([]string, error) {
	out := make([]string, len(prompts))
	for i := range out {
		out[i] = p.answer
	}
	return out, nil
}

func (p *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (p *fakeProvider) CountTokens(text string) int { return len(strings.Fields(text)) }

type fakeVectorStore struct {
	results []vector.ScoredChunk
}

func (s *fakeVectorStore) Name() string { return "fake" }

func (s *fakeVectorStore) CreateCollection(ctx context.Context, collection string, dimension int) error {
	return nil
}

func (s *fakeVectorStore) DeleteCollection(ctx context.Context, collection string) error {
	return nil
}

func (s *fakeVectorStore) Upsert(ctx context.Context, collection string, chunks []vector.DocumentChunk) error {
	return nil
}

func (s *fakeVectorStore) Retrieve(ctx context.Context, collection string, vec []float32, topK int, filter map[string]any) ([]vector.ScoredChunk, error) {
	return s.results, nil
}

func (s *fakeVectorStore) Delete(ctx context.Context, collection string, ids []string) error {
	return nil
}

func (s *fakeVectorStore) Close() error { return nil }

func newTestServer(t *testing.T, opts ...Option) (*Server, *storage.MemoryStore, *fakeProvider) {
	t.Helper()
	ctx := context.Background()

	store := storage.NewMemoryStore()
	require.NoError(t, store.CreateCollection(ctx, &storage.Collection{
		ID:           "col-1",
		Name:         "Docs",
		VectorDBName: "collection_abc",
		OwnerID:      "user-1",
		Private:      true,
	}))
	require.NoError(t, store.CreatePipeline(ctx, &storage.PipelineConfig{
		ID:               "pipe-1",
		Name:             "default",
		CollectionID:     "col-1",
		LLMProviderID:    "mock",
		ChunkingStrategy: storage.ChunkingFixed,
		Retriever:        storage.RetrieverVector,
		ContextStrategy:  storage.ContextSimple,
		MaxContextTokens: 4096,
		TimeoutSeconds:   120,
		IsDefault:        true,
	}))
	require.NoError(t, store.UpsertFile(ctx, &storage.FileRecord{
		ID:           "file-1",
		CollectionID: "col-1",
		DocumentID:   "doc-a",
		Name:         "alpha.pdf",
	}))

	provider := &fakeProvider{answer: "the answer"}
	providers := llms.NewRegistry()
	require.NoError(t, providers.Register("mock", provider))

	vectors := &fakeVectorStore{results: []vector.ScoredChunk{
		vector.NewScoredChunk(vector.DocumentChunk{
			ID:       "chunk-0",
			Text:     "chunk text",
			Metadata: vector.ChunkMetadata{DocumentID: "doc-a"},
		}, 0.9),
	}}

	var searchCfg config.SearchConfig
	searchCfg.SetDefaults()

	executor := pipeline.NewExecutor(pipeline.DefaultStages(
		pipeline.NewResolutionStage(store, providers),
		pipeline.NewRetrievalStage(vectors, searchCfg),
		pipeline.NewRerankStage(searchCfg.Rerank),
		4,
	), nil)
	searcher := search.NewService(store, executor, searchCfg, nil, config.EnrichmentConfig{})

	var convCfg config.ConversationConfig
	convCfg.SetDefaults()
	conversations := conversation.NewOrchestrator(store, searcher, convCfg, nil)

	var serverCfg config.ServerConfig
	serverCfg.SetDefaults()

	return New(serverCfg, searcher, conversations, store, opts...), store, provider
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSearchEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/search", map[string]any{
		"question":      "what is in the documents?",
		"collection_id": "col-1",
		"user_id":       "user-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out search.Output
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "the answer", out.Answer)
	require.Len(t, out.Documents, 1)
	assert.Equal(t, "alpha.pdf", out.Documents[0].Name)
}

func TestSearchEndpointErrors(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantKind   string
	}{
		{
			"empty question",
			map[string]any{"question": "", "collection_id": "col-1", "user_id": "user-1"},
			http.StatusBadRequest, "validation",
		},
		{
			"unknown collection",
			map[string]any{"question": "q?", "collection_id": "missing", "user_id": "user-1"},
			http.StatusNotFound, "not_found",
		},
		{
			"denied collection",
			map[string]any{"question": "q?", "collection_id": "col-1", "user_id": "stranger"},
			http.StatusNotFound, "not_found",
		},
		{
			"unknown body field",
			map[string]any{"question": "q?", "collection_id": "col-1", "user_id": "user-1", "bogus": 1},
			http.StatusBadRequest, "validation",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv.Handler(), http.MethodPost, "/search", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantKind, body.Kind)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestProviderFailureHidesUpstreamDetail(t *testing.T) {
	srv, _, provider := newTestServer(t)
	provider.generateErr = fmt.Errorf("upstream said: invalid api key sk-12345")

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/search", map[string]any{
		"question":      "what is in the documents?",
		"collection_id": "col-1",
		"user_id":       "user-1",
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "llm_provider", body.Kind)
	assert.Equal(t, "internal error", body.Message)
	assert.NotContains(t, rec.Body.String(), "sk-12345", "provider payloads stay out of responses")
}

func TestSessionLifecycle(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/sessions", map[string]any{
		"user_id":       "user-1",
		"collection_id": "col-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var session storage.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	require.NotEmpty(t, session.ID)

	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/sessions/%s/messages", session.ID), map[string]any{
		"user_id":  "user-1",
		"question": "what is in the documents?",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var message storage.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &message))
	assert.Equal(t, "the answer", message.Content)
	assert.Equal(t, storage.RoleAssistant, message.Role)

	rec = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/sessions/%s/messages?user_id=user-1", session.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Messages []*storage.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Len(t, history.Messages, 2)

	// Someone else's session id reads like a missing one.
	rec = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/sessions/%s/messages?user_id=intruder", session.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSessionValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/sessions", map[string]any{
		"user_id": "user-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/sessions", map[string]any{
		"user_id":       "stranger",
		"collection_id": "col-1",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics, err := observability.InitMetrics()
	require.NoError(t, err)
	defer metrics.Shutdown(context.Background())

	srv, _, _ := newTestServer(t, WithMetrics(metrics))
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/search", map[string]any{
		"question":      "what is in the documents?",
		"collection_id": "col-1",
		"user_id":       "user-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "groundwork_http_requests_total")
}

func TestMetricsDisabledByDefault(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
