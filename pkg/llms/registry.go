package llms

import (
	"fmt"

	"github.com/groundwork-ai/groundwork/pkg/config"
	"github.com/groundwork-ai/groundwork/pkg/registry"
)

// Registry holds named LLM providers.
type Registry struct {
	*registry.BaseRegistry[Provider]
}

func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Provider]()}
}

// CreateFromConfig builds and registers a provider from config.
func (r *Registry) CreateFromConfig(name string, cfg *config.LLMConfig) (Provider, error) {
	if name == "" {
		return nil, fmt.Errorf("provider name cannot be empty")
	}
	if cfg == nil {
		return nil, fmt.Errorf("llm config cannot be nil")
	}

	var provider Provider
	var err error

	switch cfg.Type {
	case "openai":
		provider, err = NewOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm type: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create llm provider: %w", err)
	}

	if err := r.Register(name, provider); err != nil {
		return nil, fmt.Errorf("failed to register llm provider: %w", err)
	}
	return provider, nil
}

// GetProvider returns the named provider or an error.
func (r *Registry) GetProvider(name string) (Provider, error) {
	provider, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("llm provider '%s' not found", name)
	}
	return provider, nil
}
