// Package vector defines the vector store capability: document chunks,
// scored results and the provider contract, with implementations for
// chromem (embedded), Qdrant and Pinecone.
package vector

import "encoding/json"

// SourceKind describes where a chunk's document came from.
type SourceKind string

const (
	SourceFile SourceKind = "file"
	SourceURL  SourceKind = "url"
	SourceText SourceKind = "text"
)

// ChunkMetadata carries the structural position of a chunk inside its
// document. Parent/child references are ids, not pointers; deletions
// cascade at the collection level.
type ChunkMetadata struct {
	Source      SourceKind `json:"source,omitempty"`
	DocumentID  string     `json:"document_id,omitempty"`
	PageNumber  int        `json:"page_number,omitempty"`
	ChunkNumber int        `json:"chunk_number,omitempty"`
	StartOffset int        `json:"start_offset,omitempty"`
	EndOffset   int        `json:"end_offset,omitempty"`
	ParentChunk string     `json:"parent_chunk,omitempty"`
	ChildChunks []string   `json:"child_chunks,omitempty"`
	Level       int        `json:"level,omitempty"`
}

// DocumentChunk is a bounded text segment of a document. Its score field
// is unexported: the only way to set it is through NewScoredChunk, which
// keeps wrapper and chunk scores equal at all times.
type DocumentChunk struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  ChunkMetadata

	score float64
}

// Score returns the chunk's score as set by its ScoredChunk wrapper.
func (c DocumentChunk) Score() float64 {
	return c.score
}

// ScoredChunk pairs a chunk with its normalized relevance score.
// The wrapper score and the inner chunk score are set atomically by the
// constructor; there is no other way to mutate either.
type ScoredChunk struct {
	chunk DocumentChunk
	score float64
}

// NewScoredChunk wraps a chunk with a score, setting both the wrapper
// score and the inner chunk score.
func NewScoredChunk(chunk DocumentChunk, score float64) ScoredChunk {
	chunk.score = score
	return ScoredChunk{chunk: chunk, score: score}
}

// Score returns the wrapper score. It always equals Chunk().Score().
func (s ScoredChunk) Score() float64 {
	return s.score
}

// Chunk returns the inner chunk.
func (s ScoredChunk) Chunk() DocumentChunk {
	return s.chunk
}

// WithScore returns a copy with both scores replaced.
func (s ScoredChunk) WithScore(score float64) ScoredChunk {
	return NewScoredChunk(s.chunk, score)
}

// scoredChunkJSON is the wire shape of a ScoredChunk.
type scoredChunkJSON struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Score    float64       `json:"score"`
	Metadata ChunkMetadata `json:"metadata,omitempty"`
}

func (s ScoredChunk) MarshalJSON() ([]byte, error) {
	return json.Marshal(scoredChunkJSON{
		ID:       s.chunk.ID,
		Text:     s.chunk.Text,
		Score:    s.score,
		Metadata: s.chunk.Metadata,
	})
}

func (s *ScoredChunk) UnmarshalJSON(data []byte) error {
	var raw scoredChunkJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = NewScoredChunk(DocumentChunk{ID: raw.ID, Text: raw.Text, Metadata: raw.Metadata}, raw.Score)
	return nil
}
