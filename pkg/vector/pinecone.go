package vector

import (
	"context"
	"fmt"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

// PineconeConfig configures the Pinecone vector provider.
type PineconeConfig struct {
	// APIKey is required for Pinecone authentication.
	APIKey string `yaml:"api_key"`

	// Host is the Pinecone API host (optional).
	Host string `yaml:"host,omitempty"`
}

// PineconeProvider implements Provider using Pinecone. Collections map
// to Pinecone indexes; index creation is managed out of band, so
// CreateCollection only verifies existence.
type PineconeProvider struct {
	client *pinecone.Client
	config PineconeConfig
}

func NewPineconeProvider(cfg PineconeConfig) (*PineconeProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Pinecone")
	}

	clientParams := pinecone.NewClientParams{ApiKey: cfg.APIKey}
	if cfg.Host != "" {
		clientParams.Host = cfg.Host
	}

	client, err := pinecone.NewClient(clientParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	return &PineconeProvider{client: client, config: cfg}, nil
}

func (p *PineconeProvider) Name() string {
	return "pinecone"
}

func (p *PineconeProvider) getIndexConnection(ctx context.Context, indexName string) (*pinecone.IndexConnection, error) {
	index, err := p.client.DescribeIndex(ctx, indexName)
	if err != nil {
		return nil, fmt.Errorf("failed to describe index %s: %w", indexName, err)
	}

	indexConn, err := p.client.Index(pinecone.NewIndexConnParams{Host: index.Host})
	if err != nil {
		return nil, fmt.Errorf("failed to create index connection: %w", err)
	}
	return indexConn, nil
}

func (p *PineconeProvider) CreateCollection(ctx context.Context, collection string, dimension int) error {
	indexes, err := p.client.ListIndexes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list indexes: %w", err)
	}
	for _, idx := range indexes {
		if idx.Name == collection {
			return nil
		}
	}
	return fmt.Errorf("pinecone index %q does not exist; create it before use", collection)
}

func (p *PineconeProvider) DeleteCollection(ctx context.Context, collection string) error {
	if err := p.client.DeleteIndex(ctx, collection); err != nil {
		return fmt.Errorf("failed to delete index: %w", err)
	}
	return nil
}

func (p *PineconeProvider) Upsert(ctx context.Context, collection string, chunks []DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	indexConn, err := p.getIndexConnection(ctx, collection)
	if err != nil {
		return err
	}
	defer indexConn.Close()

	vectors := make([]*pinecone.Vector, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", chunk.ID)
		}

		metadata, err := structpb.NewStruct(chunkPayload(chunk))
		if err != nil {
			return fmt.Errorf("failed to convert metadata for chunk %s: %w", chunk.ID, err)
		}

		vectors = append(vectors, &pinecone.Vector{
			Id:       chunk.ID,
			Values:   chunk.Embedding,
			Metadata: metadata,
		})
	}

	if _, err := indexConn.UpsertVectors(ctx, vectors); err != nil {
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}
	return nil
}

func (p *PineconeProvider) Retrieve(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]ScoredChunk, error) {
	indexConn, err := p.getIndexConnection(ctx, collection)
	if err != nil {
		return nil, err
	}
	defer indexConn.Close()

	var metadataFilter *pinecone.MetadataFilter
	if len(filter) > 0 {
		metadataFilter, err = structpb.NewStruct(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to convert filter: %w", err)
		}
	}

	queryResponse, err := indexConn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		MetadataFilter:  metadataFilter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query Pinecone: %w", err)
	}

	results := make([]ScoredChunk, 0, len(queryResponse.Matches))
	for _, match := range queryResponse.Matches {
		if match.Vector == nil {
			continue
		}
		payload := make(map[string]any)
		if match.Vector.Metadata != nil {
			payload = match.Vector.Metadata.AsMap()
		}
		chunk := chunkFromPayload(match.Vector.Id, payload)
		results = append(results, NewScoredChunk(chunk, NormalizeScore("COSINE", float64(match.Score))))
	}
	return results, nil
}

func (p *PineconeProvider) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	indexConn, err := p.getIndexConnection(ctx, collection)
	if err != nil {
		return err
	}
	defer indexConn.Close()

	if err := indexConn.DeleteVectorsById(ctx, ids); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return nil
}

func (p *PineconeProvider) Close() error {
	return nil
}

var _ Provider = (*PineconeProvider)(nil)
