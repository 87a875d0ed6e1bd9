package vector

import (
	"context"
	"fmt"

	"github.com/groundwork-ai/groundwork/pkg/config"
)

// Provider is the vector store capability consumed by the engine.
//
// Retrieve results are sorted by descending score and normalized so that
// higher is always better regardless of the store's native metric.
type Provider interface {
	// Name identifies the provider.
	Name() string

	// CreateCollection creates a collection with the given vector dimension.
	CreateCollection(ctx context.Context, collection string, dimension int) error

	// DeleteCollection removes a collection and all its chunks.
	DeleteCollection(ctx context.Context, collection string) error

	// Upsert adds or updates embedded chunks. Every chunk must carry an
	// embedding of the collection's dimension.
	Upsert(ctx context.Context, collection string, chunks []DocumentChunk) error

	// Retrieve returns the topK most similar chunks, sorted by
	// descending normalized score. An optional filter restricts matches
	// by metadata equality.
	Retrieve(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]ScoredChunk, error)

	// Delete removes chunks by id.
	Delete(ctx context.Context, collection string, ids []string) error

	// Close releases provider resources.
	Close() error
}

// NormalizeScore converts a store-native score to a "higher is better"
// value. Cosine and inner-product scores pass through; L2 distances are
// inverted with 1/(1+d).
func NormalizeScore(metric string, raw float64) float64 {
	switch metric {
	case "L2":
		if raw < 0 {
			raw = 0
		}
		return 1.0 / (1.0 + raw)
	default:
		return raw
	}
}

// NewFromConfig builds a provider from configuration.
func NewFromConfig(cfg *config.VectorStoreConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("vector store config cannot be nil")
	}

	switch cfg.Type {
	case "chromem":
		return NewChromemProvider(ChromemConfig{PersistPath: cfg.PersistPath})
	case "qdrant":
		return NewQdrantProvider(QdrantConfig{
			Host:   cfg.Host,
			Port:   cfg.Port,
			APIKey: cfg.APIKey,
			UseTLS: cfg.UseTLS,
		})
	case "pinecone":
		return NewPineconeProvider(PineconeConfig{
			APIKey: cfg.APIKey,
			Host:   cfg.IndexHost,
		})
	default:
		return nil, fmt.Errorf("unsupported vector store type: %s", cfg.Type)
	}
}
