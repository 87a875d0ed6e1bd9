package config

import "fmt"

// GenerationParams are the default sampling parameters sent to the LLM.
type GenerationParams struct {
	Temperature       float64 `yaml:"temperature"`
	MaxNewTokens      int     `yaml:"max_new_tokens"`
	TopK              int     `yaml:"top_k"`
	TopP              float64 `yaml:"top_p"`
	RepetitionPenalty float64 `yaml:"repetition_penalty"`
}

// LLMConfig configures the model provider.
//
// Example YAML:
//
//	llm:
//	  type: openai
//	  base_url: https://api.openai.com/v1
//	  api_key: ${OPENAI_API_KEY}
//	  model: gpt-4o-mini
//	  embedding_model: text-embedding-3-small
type LLMConfig struct {
	// Type is the provider kind: "openai" (any OpenAI-compatible endpoint).
	Type string `yaml:"type"`

	// BaseURL of the provider API.
	BaseURL string `yaml:"base_url,omitempty"`

	// APIKey for authenticated access.
	APIKey string `yaml:"api_key,omitempty"`

	// Model used for generation.
	Model string `yaml:"model"`

	// EmbeddingModel used for embeddings.
	EmbeddingModel string `yaml:"embedding_model"`

	// EmbeddingDimension of the embedding model output.
	EmbeddingDimension int `yaml:"embedding_dimension,omitempty"`

	// Params are the default generation parameters.
	Params GenerationParams `yaml:"params"`

	// TimeoutSeconds bounds a single provider call.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`

	// MaxRetries for transient provider failures.
	MaxRetries int `yaml:"max_retries,omitempty"`
}

func (c *LLMConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "openai"
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "text-embedding-3-small"
	}
	if c.EmbeddingDimension == 0 {
		c.EmbeddingDimension = 1536
	}
	if c.Params.Temperature == 0 {
		c.Params.Temperature = 0.7
	}
	if c.Params.MaxNewTokens == 0 {
		c.Params.MaxNewTokens = 1024
	}
	if c.Params.TopP == 0 {
		c.Params.TopP = 1.0
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 60
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

func (c *LLMConfig) Validate() error {
	if c.Type != "openai" {
		return fmt.Errorf("unsupported llm type: %s", c.Type)
	}
	if c.Params.Temperature < 0 || c.Params.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0, 2], got %v", c.Params.Temperature)
	}
	if c.Params.TopP < 0 || c.Params.TopP > 1 {
		return fmt.Errorf("top_p must be in [0, 1], got %v", c.Params.TopP)
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("embedding_dimension must be positive")
	}
	return nil
}
