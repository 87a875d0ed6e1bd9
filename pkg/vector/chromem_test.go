package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChromem(t *testing.T) *ChromemProvider {
	t.Helper()
	p, err := NewChromemProvider(ChromemConfig{})
	require.NoError(t, err)
	return p
}

func TestChromemProvider_UpsertAndRetrieve(t *testing.T) {
	p := newTestChromem(t)
	ctx := context.Background()

	chunks := []DocumentChunk{
		{ID: "a", Text: "alpha", Embedding: []float32{1, 0, 0}, Metadata: ChunkMetadata{DocumentID: "d1", ChunkNumber: 1}},
		{ID: "b", Text: "beta", Embedding: []float32{0, 1, 0}, Metadata: ChunkMetadata{DocumentID: "d1", ChunkNumber: 2}},
		{ID: "c", Text: "gamma", Embedding: []float32{0, 0, 1}, Metadata: ChunkMetadata{DocumentID: "d2", ChunkNumber: 1}},
	}
	require.NoError(t, p.Upsert(ctx, "docs", chunks))

	results, err := p.Retrieve(ctx, "docs", []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Best match first, with metadata round-tripped through the store.
	assert.Equal(t, "a", results[0].Chunk().ID)
	assert.Equal(t, "alpha", results[0].Chunk().Text)
	assert.Equal(t, "d1", results[0].Chunk().Metadata.DocumentID)
	assert.Equal(t, 1, results[0].Chunk().Metadata.ChunkNumber)
	assert.Greater(t, results[0].Score(), results[1].Score())
	assert.Equal(t, results[0].Score(), results[0].Chunk().Score())
}

func TestChromemProvider_RetrieveCapsTopK(t *testing.T) {
	p := newTestChromem(t)
	ctx := context.Background()

	require.NoError(t, p.Upsert(ctx, "docs", []DocumentChunk{
		{ID: "a", Text: "alpha", Embedding: []float32{1, 0}},
	}))

	results, err := p.Retrieve(ctx, "docs", []float32{1, 0}, 50, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestChromemProvider_RetrieveEmptyCollection(t *testing.T) {
	p := newTestChromem(t)

	require.NoError(t, p.CreateCollection(context.Background(), "empty", 3))
	results, err := p.Retrieve(context.Background(), "empty", []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemProvider_Delete(t *testing.T) {
	p := newTestChromem(t)
	ctx := context.Background()

	require.NoError(t, p.Upsert(ctx, "docs", []DocumentChunk{
		{ID: "a", Text: "alpha", Embedding: []float32{1, 0}},
		{ID: "b", Text: "beta", Embedding: []float32{0, 1}},
	}))
	require.NoError(t, p.Delete(ctx, "docs", []string{"a"}))

	results, err := p.Retrieve(ctx, "docs", []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Chunk().ID)
}

func TestChromemProvider_UpsertRequiresEmbedding(t *testing.T) {
	p := newTestChromem(t)

	err := p.Upsert(context.Background(), "docs", []DocumentChunk{{ID: "x", Text: "no vector"}})
	assert.Error(t, err)
}
