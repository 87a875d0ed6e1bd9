package conversation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundwork-ai/groundwork/pkg/config"
	"github.com/groundwork-ai/groundwork/pkg/errs"
	"github.com/groundwork-ai/groundwork/pkg/llms"
	"github.com/groundwork-ai/groundwork/pkg/pipeline"
	"github.com/groundwork-ai/groundwork/pkg/search"
	"github.com/groundwork-ai/groundwork/pkg/storage"
	"github.com/groundwork-ai/groundwork/pkg/vector"
)

type fakeProvider struct {
	answer string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Generate(ctx context.Context, req llms.GenerateRequest) (string, error) {
	if _, err := req.ResolvePrompt(); err != nil {
		return "", err
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

func wordCount(text string) int { return len(strings.Fields(text)) }

type fixture struct {
	store        *storage.MemoryStore
	orchestrator *Orchestrator
	session      *storage.Session
	cfg          config.ConversationConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := storage.NewMemoryStore()
	require.NoError(t, store.CreateCollection(ctx, &storage.Collection{
		ID:           "col-1",
		Name:         "Docs",
		VectorDBName: "collection_abc",
		OwnerID:      "user-1",
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

	providers := llms.NewRegistry()
	require.NoError(t, providers.Register("mock", &fakeProvider{answer: "the assistant answer"}))

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

	session := &storage.Session{UserID: "user-1", CollectionID: "col-1", Status: "active"}
	require.NoError(t, store.CreateSession(ctx, session))

	return &fixture{
		store:        store,
		orchestrator: NewOrchestrator(store, searcher, convCfg, wordCount),
		session:      session,
		cfg:          convCfg,
	}
}

func TestAskHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	message, err := f.orchestrator.Ask(ctx, f.session.ID, "user-1", "what is in the documents?", AskOptions{})
	require.NoError(t, err)

	assert.Equal(t, storage.RoleAssistant, message.Role)
	assert.Equal(t, storage.KindAnswer, message.Kind)
	assert.Equal(t, "the assistant answer", message.Content)
	assert.NotEmpty(t, message.ID)

	sources, hasSources := message.Metadata["sources"].([]any)
	require.True(t, hasSources)
	require.Len(t, sources, 1)
	assert.Equal(t, "alpha.pdf", sources[0].(map[string]any)["name"])

	analysis, hasAnalysis := message.Metadata["token_analysis"].(TokenAnalysis)
	require.True(t, hasAnalysis)
	assert.Equal(t, wordCount("what is in the documents?"), analysis.QueryTokens)
	assert.Equal(t, wordCount("the assistant answer"), analysis.ResponseTokens)
	assert.Equal(t, analysis.QueryTokens+analysis.ResponseTokens+analysis.SystemTokens, analysis.TotalThisTurn)

	stored, err := f.store.GetMessages(ctx, f.session.ID, 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, storage.RoleUser, stored[0].Role)
	assert.Equal(t, storage.RoleAssistant, stored[1].Role)
}

func TestConversationTotalInvariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Pre-existing history with token counts 10, 20, 15.
	require.NoError(t, f.store.AppendMessages(ctx, []*storage.Message{
		{SessionID: f.session.ID, Role: storage.RoleUser, Kind: storage.KindQuestion, Content: "q1", TokenCount: 10},
		{SessionID: f.session.ID, Role: storage.RoleAssistant, Kind: storage.KindAnswer, Content: "a1", TokenCount: 20},
		{SessionID: f.session.ID, Role: storage.RoleUser, Kind: storage.KindQuestion, Content: "q2", TokenCount: 15},
	}))

	question := "and what about the second document?"
	message, err := f.orchestrator.Ask(ctx, f.session.ID, "user-1", question, AskOptions{})
	require.NoError(t, err)

	analysis := message.Metadata["token_analysis"].(TokenAnalysis)
	want := 10 + 20 + 15 + wordCount(question) + analysis.ResponseTokens
	assert.Equal(t, want, analysis.ConversationTotal)

	total, err := f.store.SumTokenCounts(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, total, analysis.ConversationTotal,
		"stored total matches the analysis after the assistant message lands")
}

func TestAskUnknownSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.orchestrator.Ask(context.Background(), "missing", "user-1", "question?", AskOptions{})
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestAskForeignSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orchestrator.Ask(ctx, f.session.ID, "intruder", "question?", AskOptions{})
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))

	count, err := f.store.CountMessages(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Zero(t, count, "no side effects before session validation")
}

func TestAskTokenWarning(t *testing.T) {
	f := newFixture(t)
	f.cfg.MaxContextTokens = 128
	f.orchestrator.cfg = f.cfg
	ctx := context.Background()

	require.NoError(t, f.store.AppendMessage(ctx, &storage.Message{
		SessionID: f.session.ID, Role: storage.RoleUser, Kind: storage.KindQuestion,
		Content: "old", TokenCount: 120,
	}))

	message, err := f.orchestrator.Ask(ctx, f.session.ID, "user-1", "short question?", AskOptions{})
	require.NoError(t, err)
	require.Contains(t, message.Metadata, "token_warning")
}

func TestContextServiceBuild(t *testing.T) {
	svc := NewContextService()

	ctx := svc.Build([]*storage.Message{
		{Role: storage.RoleUser, Content: "Tell me about Kubernetes networking"},
		{
			Role: storage.RoleAssistant, Content: "Kubernetes networking uses services and ingress",
			Metadata: map[string]any{"sources": []any{
				map[string]any{"name": "networking.pdf"},
			}},
		},
	})

	assert.Equal(t, 2, ctx.MessageCount)
	assert.Contains(t, ctx.Window, "user: Tell me about Kubernetes networking")
	assert.Contains(t, ctx.Window, "assistant: Kubernetes networking")
	assert.Equal(t, len(ctx.Window), ctx.ContextLength)
	assert.Contains(t, ctx.Entities, "Kubernetes")
	assert.Contains(t, ctx.Topics, "kubernetes")
	assert.Equal(t, []string{"networking.pdf"}, ctx.Documents)
}

func TestContextServiceEmpty(t *testing.T) {
	ctx := NewContextService().Build(nil)
	assert.Zero(t, ctx.MessageCount)
	assert.Empty(t, ctx.Window)
	assert.Empty(t, ctx.Entities)
}

func TestEnhanceQuestion(t *testing.T) {
	withEntities := &Context{Entities: []string{"Kubernetes", "Ingress"}}

	tests := []struct {
		name     string
		question string
		ctx      *Context
		want     string
	}{
		{"pronoun follow-up", "how does it scale?", withEntities, "how does it scale? (regarding Kubernetes, Ingress)"},
		{"standalone question", "how does networking work?", withEntities, "how does networking work?"},
		{"no context", "how does it scale?", nil, "how does it scale?"},
		{"no entities", "how does it scale?", &Context{}, "how does it scale?"},
		{
			"long question untouched",
			"how does it scale when there are many nodes in the cluster at once?",
			withEntities,
			"how does it scale when there are many nodes in the cluster at once?",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EnhanceQuestion(tt.question, tt.ctx))
		})
	}
}
