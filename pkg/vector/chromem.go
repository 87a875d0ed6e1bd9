package vector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemProvider implements Provider with chromem-go for embedded,
// zero-config deployments. Vectors live in memory with optional file
// persistence. Single-process only.
type ChromemProvider struct {
	db          *chromem.DB
	persistPath string
	mu          sync.RWMutex

	collections map[string]*chromem.Collection

	// Embeddings are computed externally; chromem must never be asked
	// to embed.
	embeddingFunc chromem.EmbeddingFunc
}

// ChromemConfig configures the chromem provider.
type ChromemConfig struct {
	// PersistPath for file persistence; empty keeps vectors in memory.
	PersistPath string `yaml:"persist_path,omitempty"`
}

func NewChromemProvider(cfg ChromemConfig) (*ChromemProvider, error) {
	var db *chromem.DB

	if cfg.PersistPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.PersistPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create persist directory: %w", err)
		}
		loaded, err := chromem.NewPersistentDB(cfg.PersistPath, false)
		if err != nil {
			slog.Warn("failed to load vector database, creating new", "path", cfg.PersistPath, "error", err)
			db = chromem.NewDB()
		} else {
			db = loaded
		}
	} else {
		db = chromem.NewDB()
	}

	identityEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("embedding function called but vectors are pre-computed")
	}

	return &ChromemProvider{
		db:            db,
		persistPath:   cfg.PersistPath,
		collections:   make(map[string]*chromem.Collection),
		embeddingFunc: identityEmbed,
	}, nil
}

func (p *ChromemProvider) Name() string {
	return "chromem"
}

func (p *ChromemProvider) getCollection(name string) (*chromem.Collection, error) {
	p.mu.RLock()
	if col, ok := p.collections[name]; ok {
		p.mu.RUnlock()
		return col, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if col, ok := p.collections[name]; ok {
		return col, nil
	}

	col, err := p.db.GetOrCreateCollection(name, nil, p.embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create collection %q: %w", name, err)
	}
	p.collections[name] = col
	return col, nil
}

// CreateCollection is effectively a get-or-create; chromem creates
// collections implicitly and ignores the dimension.
func (p *ChromemProvider) CreateCollection(ctx context.Context, collection string, dimension int) error {
	_, err := p.getCollection(collection)
	return err
}

func (p *ChromemProvider) DeleteCollection(ctx context.Context, collection string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.db.DeleteCollection(collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	delete(p.collections, collection)
	return nil
}

func (p *ChromemProvider) Upsert(ctx context.Context, collection string, chunks []DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	col, err := p.getCollection(collection)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", chunk.ID)
		}
		docs = append(docs, chromem.Document{
			ID:        chunk.ID,
			Content:   chunk.Text,
			Metadata:  stringifyPayload(chunkPayload(chunk)),
			Embedding: chunk.Embedding,
		})
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to upsert documents: %w", err)
	}
	return nil
}

func (p *ChromemProvider) Retrieve(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]ScoredChunk, error) {
	col, err := p.getCollection(collection)
	if err != nil {
		return nil, err
	}

	// chromem errors when asked for more results than stored documents.
	if count := col.Count(); topK > count {
		topK = count
	}
	if topK == 0 {
		return nil, nil
	}

	var where map[string]string
	if len(filter) > 0 {
		where = stringifyPayload(filter)
	}

	results, err := col.QueryEmbedding(ctx, vector, topK, where, nil)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		chunk := chunkFromPayload(r.ID, anyifyPayload(r.Metadata))
		if chunk.Text == "" {
			chunk.Text = r.Content
		}
		out = append(out, NewScoredChunk(chunk, NormalizeScore("COSINE", float64(r.Similarity))))
	}
	return out, nil
}

func (p *ChromemProvider) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	col, err := p.getCollection(collection)
	if err != nil {
		return err
	}

	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

func (p *ChromemProvider) Close() error {
	return nil
}

var _ Provider = (*ChromemProvider)(nil)
