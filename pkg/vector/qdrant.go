package vector

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig configures the Qdrant vector provider.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`

	// Port is the Qdrant gRPC port (default: 6334).
	Port int `yaml:"port"`

	// APIKey for authenticated access (optional).
	APIKey string `yaml:"api_key,omitempty"`

	// UseTLS enables TLS connections.
	UseTLS bool `yaml:"use_tls,omitempty"`
}

// QdrantProvider implements Provider using the Qdrant vector database.
type QdrantProvider struct {
	client *qdrant.Client
	config QdrantConfig
}

func NewQdrantProvider(cfg QdrantConfig) (*QdrantProvider, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client for %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return &QdrantProvider{client: client, config: cfg}, nil
}

func (p *QdrantProvider) Name() string {
	return "qdrant"
}

func (p *QdrantProvider) CreateCollection(ctx context.Context, collection string, dimension int) error {
	exists, err := p.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = p.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func (p *QdrantProvider) DeleteCollection(ctx context.Context, collection string) error {
	if err := p.client.DeleteCollection(ctx, collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

func (p *QdrantProvider) Upsert(ctx context.Context, collection string, chunks []DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", chunk.ID)
		}

		payload := make(map[string]*qdrant.Value)
		for key, value := range chunkPayload(chunk) {
			val, err := qdrant.NewValue(value)
			if err != nil {
				return fmt.Errorf("failed to convert payload value for key %s: %w", key, err)
			}
			payload[key] = val
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(chunk.ID),
			Vectors: qdrant.NewVectors(chunk.Embedding...),
			Payload: payload,
		})
	}

	_, err := p.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

func (p *QdrantProvider) Retrieve(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]ScoredChunk, error) {
	searchRequest := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(filter) > 0 {
		searchRequest.Filter = buildQdrantFilter(filter)
	}

	pointsClient := p.client.GetPointsClient()
	searchResult, err := pointsClient.Search(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	return convertQdrantResults(searchResult.Result), nil
}

func (p *QdrantProvider) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}})
	}

	_, err := p.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	return nil
}

func (p *QdrantProvider) Close() error {
	return p.client.Close()
}

func buildQdrantFilter(filter map[string]any) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filter))

	for key, value := range filter {
		val, err := qdrant.NewValue(value)
		if err != nil {
			continue
		}
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: val.GetStringValue()},
					},
				},
			},
		})
	}

	return &qdrant.Filter{Must: conditions}
}

func convertQdrantResults(points []*qdrant.ScoredPoint) []ScoredChunk {
	results := make([]ScoredChunk, 0, len(points))

	for _, point := range points {
		var id string
		if point.Id != nil && point.Id.PointIdOptions != nil {
			switch idType := point.Id.PointIdOptions.(type) {
			case *qdrant.PointId_Uuid:
				id = idType.Uuid
			case *qdrant.PointId_Num:
				id = fmt.Sprintf("%d", idType.Num)
			}
		}

		payload := make(map[string]any)
		for key, value := range point.Payload {
			switch v := value.Kind.(type) {
			case *qdrant.Value_StringValue:
				payload[key] = v.StringValue
			case *qdrant.Value_IntegerValue:
				payload[key] = v.IntegerValue
			case *qdrant.Value_DoubleValue:
				payload[key] = v.DoubleValue
			case *qdrant.Value_BoolValue:
				payload[key] = v.BoolValue
			}
		}

		chunk := chunkFromPayload(id, payload)
		results = append(results, NewScoredChunk(chunk, NormalizeScore("COSINE", float64(point.Score))))
	}

	return results
}

var _ Provider = (*QdrantProvider)(nil)
