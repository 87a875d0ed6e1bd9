package runtime

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundwork-ai/groundwork/pkg/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Storage.Path = ":memory:"
	return cfg
}

func TestNewWiresFullGraph(t *testing.T) {
	rt, err := New(testConfig())
	require.NoError(t, err)
	defer rt.Close(context.Background())

	assert.NotNil(t, rt.Store)
	assert.NotNil(t, rt.Vectors)
	assert.NotNil(t, rt.Searcher)
	assert.NotNil(t, rt.Conversations)
	assert.NotNil(t, rt.Server)

	provider, err := rt.Providers.GetProvider("default")
	require.NoError(t, err)
	aliased, err := rt.Providers.GetProvider("openai")
	require.NoError(t, err)
	assert.Same(t, provider, aliased)
}

func TestNewRejectsBadStorage(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Dialect = "oracle"

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage")
}

func TestStartupHealthCheckSkippedWithoutFile(t *testing.T) {
	rt, err := New(testConfig())
	require.NoError(t, err)
	defer rt.Close(context.Background())

	assert.NoError(t, rt.StartupHealthCheck(context.Background()))
}

func TestStartupHealthCheck(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	path := filepath.Join(t.TempDir(), "services.yaml")
	services := fmt.Sprintf("services:\n  - name: upstream\n    type: http\n    url: %s\n", upstream.URL)
	require.NoError(t, os.WriteFile(path, []byte(services), 0o644))

	cfg := testConfig()
	cfg.Health.ServicesFile = path
	rt, err := New(cfg)
	require.NoError(t, err)
	defer rt.Close(context.Background())

	assert.NoError(t, rt.StartupHealthCheck(context.Background()))

	upstream.Close()
	assert.Error(t, rt.StartupHealthCheck(context.Background()))
}

func TestCloseIsIdempotentPerResource(t *testing.T) {
	rt, err := New(testConfig())
	require.NoError(t, err)
	assert.NoError(t, rt.Close(context.Background()))
}
