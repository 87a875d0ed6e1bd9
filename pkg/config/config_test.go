package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  model: gpt-4o-mini
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Type)
	assert.Equal(t, "chromem", cfg.VectorStore.Type)
	assert.Equal(t, 10, cfg.Search.DefaultTopK)
	assert.Equal(t, 100, cfg.Search.MaxTopK)
	assert.Equal(t, 5, cfg.Enrichment.MaxConcurrent)
	assert.True(t, *cfg.Enrichment.Parallel)
	assert.Equal(t, "standard", cfg.Health.Profile)
	assert.Equal(t, 4096, cfg.Conversation.MaxContextTokens)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_GW_API_KEY", "secret-from-env")
	path := writeConfig(t, `
llm:
  api_key: ${TEST_GW_API_KEY}
vector_store:
  type: qdrant
  host: ${TEST_GW_QDRANT_HOST:-localhost}
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret-from-env", cfg.LLM.APIKey)
	assert.Equal(t, "localhost", cfg.VectorStore.Host)
	assert.Equal(t, 6334, cfg.VectorStore.Port)
}

func TestLoad_RejectsInvalidVectorStore(t *testing.T) {
	path := writeConfig(t, `
vector_store:
  type: cassandra
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector_store")
}

func TestLoad_RejectsInvalidMetric(t *testing.T) {
	path := writeConfig(t, `
vector_store:
  type: qdrant
  metric: EUCLID
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsCrossEncoderWithoutURL(t *testing.T) {
	path := writeConfig(t, `
search:
  rerank:
    enabled: true
    strategy: cross_encoder
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestConversationConfig_TokenBounds(t *testing.T) {
	path := writeConfig(t, `
conversation:
  max_context_tokens: 64
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}
