package pipeline

import (
	"context"

	"github.com/groundwork-ai/groundwork/pkg/errs"
	"github.com/groundwork-ai/groundwork/pkg/llms"
	"github.com/groundwork-ai/groundwork/pkg/storage"
	"github.com/groundwork-ai/groundwork/pkg/template"
)

// ResolutionStage resolves everything the later stages need: the
// pipeline config (explicit or collection default), the vector store
// collection name, the LLM provider, generation parameters and
// templates. Any failure here is fatal.
type ResolutionStage struct {
	store     storage.Store
	providers *llms.Registry
}

func NewResolutionStage(store storage.Store, providers *llms.Registry) *ResolutionStage {
	return &ResolutionStage{store: store, providers: providers}
}

func (s *ResolutionStage) Name() string { return "pipeline_resolution" }

func (s *ResolutionStage) Run(ctx context.Context, sc *SearchContext) StageResult {
	collection, err := s.store.GetCollection(ctx, sc.Input.CollectionID)
	if err != nil {
		return fatal(err)
	}
	sc.CollectionName = collection.VectorDBName

	pipeline, err := s.resolvePipeline(ctx, sc)
	if err != nil {
		return fatal(err)
	}
	sc.Pipeline = pipeline
	sc.PipelineID = pipeline.ID

	provider, err := s.providers.GetProvider(pipeline.LLMProviderID)
	if err != nil {
		return fatal(errs.Wrap(errs.KindConfiguration, "Pipeline", s.Name(),
			"pipeline references an unavailable provider", err))
	}
	sc.Provider = provider
	sc.Params = s.resolveParams(ctx, sc.Input.UserID)

	ragTemplate, source, err := s.resolveTemplate(ctx, template.KindRAGQuery)
	if err != nil {
		return fatal(err)
	}
	sc.RAGTemplate = ragTemplate

	// The evaluation template is optional; absent means compiled-in.
	if evalTemplate, _, err := s.resolveTemplate(ctx, template.KindResponseEvaluation); err == nil {
		sc.EvalTemplate = evalTemplate
	}

	return ok(map[string]any{
		"pipeline_id":     pipeline.ID,
		"collection_name": sc.CollectionName,
		"provider":        provider.Name(),
		"template_source": source,
	})
}

func (s *ResolutionStage) resolvePipeline(ctx context.Context, sc *SearchContext) (*storage.PipelineConfig, error) {
	if sc.Input.PipelineID != "" {
		return s.store.GetPipeline(ctx, sc.Input.PipelineID)
	}

	pipeline, err := s.store.GetDefaultPipeline(ctx, sc.Input.CollectionID)
	if err != nil {
		if errs.Is(err, errs.KindNotFound) {
			return nil, errs.New(errs.KindConfiguration, "Pipeline", s.Name(),
				"collection has no default pipeline and none was given")
		}
		return nil, err
	}
	return pipeline, nil
}

// resolveParams returns the user's latest stored parameters, or nil for
// provider defaults when nothing is stored.
func (s *ResolutionStage) resolveParams(ctx context.Context, userID string) *llms.Params {
	stored, err := s.store.LatestLLMParams(ctx, userID)
	if err != nil {
		return nil
	}
	return &llms.Params{
		Temperature:       stored.Temperature,
		MaxNewTokens:      stored.MaxTokens,
		TopK:              stored.TopK,
		TopP:              stored.TopP,
		RepetitionPenalty: stored.RepetitionPenalty,
	}
}

// resolveTemplate prefers a stored default template of the kind and
// falls back to the compiled-in one.
func (s *ResolutionStage) resolveTemplate(ctx context.Context, kind template.Kind) (*template.Template, string, error) {
	record, err := s.store.GetDefaultTemplate(ctx, string(kind))
	if err == nil {
		t, buildErr := template.New(kind, record.Format, record.InputVariables)
		if buildErr != nil {
			return nil, "", errs.Wrap(errs.KindConfiguration, "Pipeline", s.Name(),
				"stored template is malformed", buildErr)
		}
		return t, "stored", nil
	}
	if !errs.Is(err, errs.KindNotFound) {
		return nil, "", err
	}

	switch kind {
	case template.KindRAGQuery:
		return template.DefaultRAGQuery, "builtin", nil
	case template.KindResponseEvaluation:
		return template.DefaultResponseEvaluation, "builtin", nil
	case template.KindReranking:
		return template.DefaultReranking, "builtin", nil
	default:
		return nil, "", errs.Newf(errs.KindConfiguration, "Pipeline", s.Name(),
			"no template available for kind %q", kind)
	}
}

var _ Stage = (*ResolutionStage)(nil)
