// Package runtime assembles the engine's service graph. The graph is
// built once at startup from the validated config; nothing is created
// lazily, so a misconfigured dependency fails the process before it
// serves traffic.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/groundwork-ai/groundwork/pkg/config"
	"github.com/groundwork-ai/groundwork/pkg/conversation"
	"github.com/groundwork-ai/groundwork/pkg/enrichment"
	"github.com/groundwork-ai/groundwork/pkg/health"
	"github.com/groundwork-ai/groundwork/pkg/llms"
	"github.com/groundwork-ai/groundwork/pkg/observability"
	"github.com/groundwork-ai/groundwork/pkg/pipeline"
	"github.com/groundwork-ai/groundwork/pkg/search"
	"github.com/groundwork-ai/groundwork/pkg/server"
	"github.com/groundwork-ai/groundwork/pkg/storage"
	"github.com/groundwork-ai/groundwork/pkg/vector"
)

// defaultReasoningSteps caps chain-of-thought decomposition per query.
const defaultReasoningSteps = 4

// Runtime holds the wired services of one engine instance.
type Runtime struct {
	Config        *config.Config
	Store         storage.Store
	Vectors       vector.Provider
	Providers     *llms.Registry
	Metrics       observability.Recorder
	Searcher      *search.Service
	Conversations *conversation.Orchestrator
	Server        *server.Server
}

// New wires the full service graph from a validated config.
func New(cfg *config.Config) (*Runtime, error) {
	metrics, err := observability.New(cfg.Metrics.Enabled)
	if err != nil {
		return nil, fmt.Errorf("initializing metrics: %w", err)
	}
	observability.SetGlobal(metrics)

	store, err := storage.NewSQLStore(cfg.Storage.Dialect, cfg.Storage.SourceName())
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	vectors, err := vector.NewFromConfig(&cfg.VectorStore)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening vector store: %w", err)
	}

	providers := llms.NewRegistry()
	provider, err := providers.CreateFromConfig("default", &cfg.LLM)
	if err != nil {
		store.Close()
		vectors.Close()
		return nil, fmt.Errorf("creating llm provider: %w", err)
	}
	// Pipelines may reference the provider by its type as well.
	if cfg.LLM.Type != "default" {
		if err := providers.Register(cfg.LLM.Type, provider); err != nil {
			store.Close()
			vectors.Close()
			return nil, fmt.Errorf("registering llm provider: %w", err)
		}
	}

	executor := pipeline.NewExecutor(pipeline.DefaultStages(
		pipeline.NewResolutionStage(store, providers),
		pipeline.NewRetrievalStage(vectors, cfg.Search),
		pipeline.NewRerankStage(cfg.Search.Rerank),
		defaultReasoningSteps,
	), metrics)

	var enricher *enrichment.Enricher
	if cfg.Enrichment.Enabled && cfg.Enrichment.GatewayURL != "" {
		enricher = enrichment.NewEnricher(
			enrichment.NewHTTPGateway(cfg.Enrichment.GatewayURL),
			cfg.Enrichment.MaxConcurrent)
	}

	searcher := search.NewService(store, executor, cfg.Search, enricher, cfg.Enrichment)
	conversations := conversation.NewOrchestrator(store, searcher, cfg.Conversation, provider.CountTokens)
	httpServer := server.New(cfg.Server, searcher, conversations, store, server.WithMetrics(metrics))

	return &Runtime{
		Config:        cfg,
		Store:         store,
		Vectors:       vectors,
		Providers:     providers,
		Metrics:       metrics,
		Searcher:      searcher,
		Conversations: conversations,
		Server:        httpServer,
	}, nil
}

// StartupHealthCheck probes the services file configured under health
// and fails when any dependency is unhealthy. A missing services file
// configuration skips the check.
func (r *Runtime) StartupHealthCheck(ctx context.Context) error {
	path := r.Config.Health.ServicesFile
	if path == "" {
		return nil
	}

	file, err := health.LoadServicesFile(path)
	if err != nil {
		return err
	}
	profile := r.Config.Health.Profile
	if file.Profile != "" {
		profile = file.Profile
	}
	overall := time.Duration(r.Config.Health.MaxTotalTimeoutSeconds) * time.Second
	if file.MaxTotalTimeoutSeconds > 0 {
		overall = time.Duration(file.MaxTotalTimeoutSeconds) * time.Second
	}

	checker := health.NewChecker(health.WithProfile(profile))
	report := checker.CheckAll(ctx, file.Services, overall)
	for name, result := range report.Results {
		r.Metrics.RecordHealthCheck(ctx, name, result.Healthy)
	}
	if !report.Healthy() {
		return fmt.Errorf("startup health check failed after %s", report.Elapsed)
	}
	return nil
}

// Close releases every owned resource.
func (r *Runtime) Close(ctx context.Context) error {
	observability.SetGlobal(nil)
	return errors.Join(
		r.Store.Close(),
		r.Vectors.Close(),
		r.Metrics.Shutdown(ctx),
	)
}
