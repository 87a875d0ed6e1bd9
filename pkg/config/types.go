package config

import (
	"fmt"
	"time"
)

// SearchConfig carries the operational knobs of the search pipeline.
type SearchConfig struct {
	// MaxQuestionLength bounds the trimmed question length.
	MaxQuestionLength int `yaml:"max_question_length"`

	// DefaultTopK is the retrieval size when a request does not override it.
	DefaultTopK int `yaml:"default_top_k"`

	// MaxTopK caps any requested retrieval size.
	MaxTopK int `yaml:"max_top_k"`

	// MinScore drops retrieved chunks below this normalized score.
	MinScore float64 `yaml:"min_score,omitempty"`

	// RequestTimeoutSeconds is the end-to-end request deadline.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`

	// Rerank configures the reranking stage.
	Rerank RerankConfig `yaml:"rerank"`
}

// RerankConfig configures the reranking stage.
type RerankConfig struct {
	// Enabled turns the reranking stage on.
	Enabled bool `yaml:"enabled"`

	// Strategy: "score_sort", "llm_judge", "cross_encoder".
	Strategy string `yaml:"strategy,omitempty"`

	// TopK limits reranked output; 0 keeps the input length.
	TopK int `yaml:"top_k,omitempty"`

	// BatchSize for LLM judge scoring.
	BatchSize int `yaml:"batch_size,omitempty"`

	// ScoreScale the judge is asked to rate on (scores normalize to [0,1]).
	ScoreScale int `yaml:"score_scale,omitempty"`

	// EncoderURL for the cross-encoder strategy.
	EncoderURL string `yaml:"encoder_url,omitempty"`
}

func (c *SearchConfig) SetDefaults() {
	if c.MaxQuestionLength == 0 {
		c.MaxQuestionLength = 2000
	}
	if c.DefaultTopK == 0 {
		c.DefaultTopK = 10
	}
	if c.MaxTopK == 0 {
		c.MaxTopK = 100
	}
	if c.RequestTimeoutSeconds == 0 {
		c.RequestTimeoutSeconds = 120
	}
	if c.Rerank.Strategy == "" {
		c.Rerank.Strategy = "score_sort"
	}
	if c.Rerank.BatchSize == 0 {
		c.Rerank.BatchSize = 5
	}
	if c.Rerank.ScoreScale == 0 {
		c.Rerank.ScoreScale = 10
	}
}

func (c *SearchConfig) Validate() error {
	if c.DefaultTopK < 1 || c.DefaultTopK > c.MaxTopK {
		return fmt.Errorf("default_top_k must be in [1, %d]", c.MaxTopK)
	}
	switch c.Rerank.Strategy {
	case "score_sort", "llm_judge", "cross_encoder":
	default:
		return fmt.Errorf("unsupported rerank strategy: %s", c.Rerank.Strategy)
	}
	if c.Rerank.Strategy == "cross_encoder" && c.Rerank.Enabled && c.Rerank.EncoderURL == "" {
		return fmt.Errorf("cross_encoder strategy requires encoder_url")
	}
	return nil
}

// RequestTimeout returns the request deadline as a duration.
func (c *SearchConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// EnrichmentConfig configures the tool-gateway enricher.
type EnrichmentConfig struct {
	// Enabled turns post-generation enrichment on.
	Enabled bool `yaml:"enabled"`

	// GatewayURL of the external tool gateway.
	GatewayURL string `yaml:"gateway_url,omitempty"`

	// Tools restricts invocation to the named tools; empty discovers all.
	Tools []string `yaml:"tools,omitempty"`

	// TimeoutSeconds bounds a single tool call.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`

	// Parallel runs tools concurrently.
	Parallel *bool `yaml:"parallel,omitempty"`

	// FailSilently records tool failures in metadata instead of failing.
	FailSilently *bool `yaml:"fail_silently,omitempty"`

	// MaxConcurrent bounds parallel tool calls.
	MaxConcurrent int `yaml:"max_concurrent,omitempty"`
}

func (c *EnrichmentConfig) SetDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}
	if c.Parallel == nil {
		v := true
		c.Parallel = &v
	}
	if c.FailSilently == nil {
		v := true
		c.FailSilently = &v
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 5
	}
}

func (c *EnrichmentConfig) Validate() error {
	if c.Enabled && c.GatewayURL == "" {
		return fmt.Errorf("enrichment requires gateway_url when enabled")
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be positive")
	}
	return nil
}

// ConversationConfig configures per-session token budgeting.
type ConversationConfig struct {
	// MaxContextTokens is the per-session budget warnings are computed from.
	MaxContextTokens int `yaml:"max_context_tokens"`

	// ContextWindowMessages is how many recent messages feed the context build.
	ContextWindowMessages int `yaml:"context_window_messages"`

	// WarnAtPercent triggers the approaching_limit warning.
	WarnAtPercent float64 `yaml:"warn_at_percent"`
}

func (c *ConversationConfig) SetDefaults() {
	if c.MaxContextTokens == 0 {
		c.MaxContextTokens = 4096
	}
	if c.ContextWindowMessages == 0 {
		c.ContextWindowMessages = 10
	}
	if c.WarnAtPercent == 0 {
		c.WarnAtPercent = 80
	}
}

func (c *ConversationConfig) Validate() error {
	if c.MaxContextTokens < 128 || c.MaxContextTokens > 8192 {
		return fmt.Errorf("max_context_tokens must be in [128, 8192]")
	}
	if c.WarnAtPercent <= 0 || c.WarnAtPercent >= 100 {
		return fmt.Errorf("warn_at_percent must be in (0, 100)")
	}
	return nil
}

// StorageConfig configures the relational store.
type StorageConfig struct {
	// Dialect is "sqlite" or "postgres".
	Dialect string `yaml:"dialect"`

	// Path of the SQLite database file; ":memory:" for tests.
	Path string `yaml:"path,omitempty"`

	// DSN is the postgres connection string.
	DSN string `yaml:"dsn,omitempty"`
}

func (c *StorageConfig) SetDefaults() {
	if c.Dialect == "" {
		c.Dialect = "sqlite"
	}
	if c.Dialect == "sqlite" && c.Path == "" {
		c.Path = "groundwork.db"
	}
}

func (c *StorageConfig) Validate() error {
	switch c.Dialect {
	case "sqlite":
	case "postgres":
		if c.DSN == "" {
			return fmt.Errorf("postgres storage requires dsn")
		}
	default:
		return fmt.Errorf("unsupported storage dialect: %s", c.Dialect)
	}
	return nil
}

// SourceName returns the driver DSN for the configured dialect.
func (c *StorageConfig) SourceName() string {
	if c.Dialect == "postgres" {
		return c.DSN
	}
	return c.Path
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
}

func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return nil
}

// HealthConfig selects the startup health-check behaviour.
type HealthConfig struct {
	// ServicesFile is the YAML file listing services to probe at startup.
	ServicesFile string `yaml:"services_file,omitempty"`

	// Profile is the performance profile: "fast", "standard", "slow".
	Profile string `yaml:"profile,omitempty"`

	// MaxTotalTimeoutSeconds is the overall deadline across all checks.
	MaxTotalTimeoutSeconds int `yaml:"max_total_timeout_seconds,omitempty"`
}

func (c *HealthConfig) SetDefaults() {
	if c.Profile == "" {
		c.Profile = "standard"
	}
	if c.MaxTotalTimeoutSeconds == 0 {
		c.MaxTotalTimeoutSeconds = 120
	}
}

func (c *HealthConfig) Validate() error {
	return nil
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

func (c *MetricsConfig) SetDefaults() {}
