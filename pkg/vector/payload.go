package vector

import (
	"fmt"
	"strconv"
	"strings"
)

// Payload keys shared by all providers. Chunk text travels inside the
// payload so stores without a separate content field stay uniform.
const (
	payloadContent     = "content"
	payloadSource      = "source"
	payloadDocumentID  = "document_id"
	payloadPageNumber  = "page_number"
	payloadChunkNumber = "chunk_number"
	payloadStartOffset = "start_offset"
	payloadEndOffset   = "end_offset"
	payloadParentChunk = "parent_chunk"
	payloadChildChunks = "child_chunks"
	payloadLevel       = "level"
)

// chunkPayload flattens a chunk into a provider-agnostic metadata map.
func chunkPayload(chunk DocumentChunk) map[string]any {
	payload := map[string]any{
		payloadContent: chunk.Text,
	}
	m := chunk.Metadata
	if m.Source != "" {
		payload[payloadSource] = string(m.Source)
	}
	if m.DocumentID != "" {
		payload[payloadDocumentID] = m.DocumentID
	}
	if m.PageNumber != 0 {
		payload[payloadPageNumber] = m.PageNumber
	}
	if m.ChunkNumber != 0 {
		payload[payloadChunkNumber] = m.ChunkNumber
	}
	if m.StartOffset != 0 {
		payload[payloadStartOffset] = m.StartOffset
	}
	if m.EndOffset != 0 {
		payload[payloadEndOffset] = m.EndOffset
	}
	if m.ParentChunk != "" {
		payload[payloadParentChunk] = m.ParentChunk
	}
	if len(m.ChildChunks) > 0 {
		payload[payloadChildChunks] = strings.Join(m.ChildChunks, ",")
	}
	if m.Level != 0 {
		payload[payloadLevel] = m.Level
	}
	return payload
}

// chunkFromPayload reconstructs a chunk from a provider result.
func chunkFromPayload(id string, payload map[string]any) DocumentChunk {
	chunk := DocumentChunk{ID: id}
	if content, ok := payload[payloadContent].(string); ok {
		chunk.Text = content
	}
	if source, ok := payload[payloadSource].(string); ok {
		chunk.Metadata.Source = SourceKind(source)
	}
	if docID, ok := payload[payloadDocumentID].(string); ok {
		chunk.Metadata.DocumentID = docID
	}
	chunk.Metadata.PageNumber = payloadInt(payload, payloadPageNumber)
	chunk.Metadata.ChunkNumber = payloadInt(payload, payloadChunkNumber)
	chunk.Metadata.StartOffset = payloadInt(payload, payloadStartOffset)
	chunk.Metadata.EndOffset = payloadInt(payload, payloadEndOffset)
	if parent, ok := payload[payloadParentChunk].(string); ok {
		chunk.Metadata.ParentChunk = parent
	}
	if children, ok := payload[payloadChildChunks].(string); ok && children != "" {
		chunk.Metadata.ChildChunks = strings.Split(children, ",")
	}
	chunk.Metadata.Level = payloadInt(payload, payloadLevel)
	return chunk
}

// payloadInt reads an int that may arrive as int, int64, float64 or a
// stringified number depending on the store.
func payloadInt(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

// stringifyPayload converts a payload to the string map required by
// stores without typed metadata.
func stringifyPayload(payload map[string]any) map[string]string {
	out := make(map[string]string, len(payload))
	for k, v := range payload {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// anyifyPayload widens a string map back to the shared payload shape.
func anyifyPayload(payload map[string]string) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}
