// Package config defines the engine configuration and its YAML loader.
//
// Config files support ${ENV} and ${ENV:-default} expansion. Every
// section follows the SetDefaults/Validate convention; Load applies both
// so the rest of the engine never sees a partially-initialized config.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root engine configuration.
type Config struct {
	LLM          LLMConfig          `yaml:"llm"`
	VectorStore  VectorStoreConfig  `yaml:"vector_store"`
	Search       SearchConfig       `yaml:"search"`
	Enrichment   EnrichmentConfig   `yaml:"enrichment"`
	Conversation ConversationConfig `yaml:"conversation"`
	Storage      StorageConfig      `yaml:"storage"`
	Server       ServerConfig       `yaml:"server"`
	Health       HealthConfig       `yaml:"health"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// Load reads, expands, defaults and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with every section defaulted, for zero-config
// startup with the embedded vector store.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

func (c *Config) SetDefaults() {
	c.LLM.SetDefaults()
	c.VectorStore.SetDefaults()
	c.Search.SetDefaults()
	c.Enrichment.SetDefaults()
	c.Conversation.SetDefaults()
	c.Storage.SetDefaults()
	c.Server.SetDefaults()
	c.Health.SetDefaults()
	c.Metrics.SetDefaults()
}

func (c *Config) Validate() error {
	validators := []struct {
		name string
		fn   func() error
	}{
		{"llm", c.LLM.Validate},
		{"vector_store", c.VectorStore.Validate},
		{"search", c.Search.Validate},
		{"enrichment", c.Enrichment.Validate},
		{"conversation", c.Conversation.Validate},
		{"storage", c.Storage.Validate},
		{"server", c.Server.Validate},
		{"health", c.Health.Validate},
	}
	for _, v := range validators {
		if err := v.fn(); err != nil {
			return fmt.Errorf("config section %q: %w", v.name, err)
		}
	}
	return nil
}
