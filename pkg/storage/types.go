// Package storage holds the relational state of the engine: collections,
// pipeline configurations, prompt templates, generation parameters,
// conversation sessions with their messages, and ingested file records.
//
// Two implementations are provided: SQLStore over database/sql (sqlite
// or postgres) and MemoryStore for tests and zero-config runs.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CollectionStatus tracks the ingestion lifecycle of a collection.
type CollectionStatus string

const (
	CollectionCreated    CollectionStatus = "created"
	CollectionProcessing CollectionStatus = "processing"
	CollectionCompleted  CollectionStatus = "completed"
	CollectionError      CollectionStatus = "error"
)

// Collection is a namespaced document set served by the vector store
// under VectorDBName. VectorDBName is generated at creation and never
// changes for the life of the collection.
type Collection struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Private         bool             `json:"private"`
	VectorDBName    string           `json:"vector_db_name"`
	Status          CollectionStatus `json:"status"`
	OwnerID         string           `json:"owner_id"`
	AuthorizedUsers []string         `json:"authorized_users,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// NewVectorDBName generates the immutable vector store handle for a
// collection.
func NewVectorDBName() string {
	return "collection_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// AccessibleBy reports whether a user may read the collection. Owners
// always have access; private collections additionally admit the
// explicit authorized set.
func (c *Collection) AccessibleBy(userID string) bool {
	if !c.Private {
		return true
	}
	if c.OwnerID == userID {
		return true
	}
	for _, id := range c.AuthorizedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// ChunkingStrategy selects how documents were split at ingestion time.
type ChunkingStrategy string

const (
	ChunkingFixed     ChunkingStrategy = "fixed"
	ChunkingSemantic  ChunkingStrategy = "semantic"
	ChunkingOverlap   ChunkingStrategy = "overlap"
	ChunkingParagraph ChunkingStrategy = "paragraph"
)

// RetrieverKind selects the first-pass retrieval mechanism.
type RetrieverKind string

const (
	RetrieverVector  RetrieverKind = "vector"
	RetrieverKeyword RetrieverKind = "keyword"
	RetrieverHybrid  RetrieverKind = "hybrid"
)

// ContextStrategy selects how retrieved chunks are assembled into the
// generation context.
type ContextStrategy string

const (
	ContextSimple   ContextStrategy = "simple"
	ContextPriority ContextStrategy = "priority"
	ContextWeighted ContextStrategy = "weighted"
)

// PipelineConfig describes one configured search pipeline. At most one
// pipeline per collection carries IsDefault, and a default pipeline must
// reference a collection.
type PipelineConfig struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	CollectionID     string           `json:"collection_id,omitempty"`
	LLMProviderID    string           `json:"llm_provider_id"`
	ChunkingStrategy ChunkingStrategy `json:"chunking_strategy"`
	EmbeddingModel   string           `json:"embedding_model"`
	Retriever        RetrieverKind    `json:"retriever"`
	ContextStrategy  ContextStrategy  `json:"context_strategy"`
	EnableLogging    bool             `json:"enable_logging"`
	MaxContextTokens int              `json:"max_context_tokens"`
	TimeoutSeconds   int              `json:"timeout_seconds"`
	ConfigMetadata   map[string]any   `json:"config_metadata,omitempty"`
	IsDefault        bool             `json:"is_default"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func (p *PipelineConfig) SetDefaults() {
	if p.ChunkingStrategy == "" {
		p.ChunkingStrategy = ChunkingFixed
	}
	if p.Retriever == "" {
		p.Retriever = RetrieverVector
	}
	if p.ContextStrategy == "" {
		p.ContextStrategy = ContextSimple
	}
	if p.MaxContextTokens == 0 {
		p.MaxContextTokens = 4096
	}
	if p.TimeoutSeconds == 0 {
		p.TimeoutSeconds = 120
	}
}

func (p *PipelineConfig) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("pipeline name is required")
	}
	if p.LLMProviderID == "" {
		return fmt.Errorf("llm_provider_id is required")
	}
	switch p.ChunkingStrategy {
	case ChunkingFixed, ChunkingSemantic, ChunkingOverlap, ChunkingParagraph:
	default:
		return fmt.Errorf("invalid chunking strategy: %s", p.ChunkingStrategy)
	}
	switch p.Retriever {
	case RetrieverVector, RetrieverKeyword, RetrieverHybrid:
	default:
		return fmt.Errorf("invalid retriever kind: %s", p.Retriever)
	}
	switch p.ContextStrategy {
	case ContextSimple, ContextPriority, ContextWeighted:
	default:
		return fmt.Errorf("invalid context strategy: %s", p.ContextStrategy)
	}
	if p.MaxContextTokens < 128 || p.MaxContextTokens > 8192 {
		return fmt.Errorf("max_context_tokens must be between 128 and 8192, got %d", p.MaxContextTokens)
	}
	if p.TimeoutSeconds < 1 || p.TimeoutSeconds > 300 {
		return fmt.Errorf("timeout_seconds must be between 1 and 300, got %d", p.TimeoutSeconds)
	}
	if p.Retriever == RetrieverHybrid {
		if _, ok := p.ConfigMetadata["retriever_options"]; !ok {
			return fmt.Errorf("hybrid retriever requires retriever_options in config metadata")
		}
	}
	if p.IsDefault && p.CollectionID == "" {
		return fmt.Errorf("a default pipeline must reference a collection")
	}
	return nil
}

// TemplateRecord is the persisted form of a prompt template. The typed
// runtime template lives in pkg/template; this row carries its source.
type TemplateRecord struct {
	ID             string            `json:"id"`
	OwnerID        string            `json:"owner_id"`
	Kind           string            `json:"kind"`
	Format         string            `json:"format"`
	InputVariables []string          `json:"input_variables"`
	ExampleInputs  map[string]string `json:"example_inputs,omitempty"`
	IsDefault      bool              `json:"is_default"`
	CreatedAt      time.Time         `json:"created_at"`
}

// LLMParams is a persisted snapshot of generation parameters. The
// pipeline resolves the latest row for the requesting user and falls
// back to the system default row.
type LLMParams struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	ProviderID        string    `json:"provider_id"`
	Model             string    `json:"model"`
	Temperature       float64   `json:"temperature"`
	MaxTokens         int       `json:"max_tokens"`
	TopK              int       `json:"top_k"`
	TopP              float64   `json:"top_p"`
	RepetitionPenalty float64   `json:"repetition_penalty"`
	CreatedAt         time.Time `json:"created_at"`
}

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// MessageKind identifies the payload shape of a conversation message.
type MessageKind string

const (
	KindQuestion MessageKind = "question"
	KindAnswer   MessageKind = "answer"
	KindNote     MessageKind = "note"
)

// Session is one conversation thread. Sessions own their messages;
// deleting a session deletes them.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	CollectionID string    `json:"collection_id"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message is a single conversation turn entry. Metadata carries sources,
// chain-of-thought traces and token analysis as free-form JSON.
type Message struct {
	ID            string         `json:"id"`
	SessionID     string         `json:"session_id"`
	Role          MessageRole    `json:"role"`
	Kind          MessageKind    `json:"kind"`
	Content       string         `json:"content"`
	TokenCount    int            `json:"token_count"`
	ExecutionTime float64        `json:"execution_time,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	SequenceNum   int64          `json:"sequence_num"`
	CreatedAt     time.Time      `json:"created_at"`
}

// FileRecord describes one ingested file of a collection.
type FileRecord struct {
	ID           string    `json:"id"`
	CollectionID string    `json:"collection_id"`
	DocumentID   string    `json:"document_id"`
	Name         string    `json:"name"`
	PageCount    int       `json:"page_count"`
	ChunkCount   int       `json:"chunk_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// CollectionStore manages collection rows.
type CollectionStore interface {
	CreateCollection(ctx context.Context, c *Collection) error
	GetCollection(ctx context.Context, id string) (*Collection, error)
	UpdateCollectionStatus(ctx context.Context, id string, status CollectionStatus) error
	DeleteCollection(ctx context.Context, id string) error
}

// PipelineStore manages pipeline configurations, including the
// one-default-per-collection rule.
type PipelineStore interface {
	CreatePipeline(ctx context.Context, p *PipelineConfig) error
	GetPipeline(ctx context.Context, id string) (*PipelineConfig, error)
	GetDefaultPipeline(ctx context.Context, collectionID string) (*PipelineConfig, error)

	// SetDefaultPipeline clears any previous default for the pipeline's
	// collection and marks the given pipeline, in one transaction. The
	// pipeline must reference a collection.
	SetDefaultPipeline(ctx context.Context, pipelineID string) error
}

// TemplateStore manages persisted prompt templates.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, t *TemplateRecord) error
	GetTemplate(ctx context.Context, id string) (*TemplateRecord, error)
	GetDefaultTemplate(ctx context.Context, kind string) (*TemplateRecord, error)
}

// LLMParamsStore manages generation parameter snapshots.
type LLMParamsStore interface {
	SaveLLMParams(ctx context.Context, p *LLMParams) error

	// LatestLLMParams returns the newest row for the user, falling back
	// to the newest system row (empty user id). Not found if neither
	// exists.
	LatestLLMParams(ctx context.Context, userID string) (*LLMParams, error)
}

// SessionStore manages conversation sessions and their messages.
type SessionStore interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error

	AppendMessage(ctx context.Context, m *Message) error
	AppendMessages(ctx context.Context, messages []*Message) error
	GetMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error)
	CountMessages(ctx context.Context, sessionID string) (int, error)
	SumTokenCounts(ctx context.Context, sessionID string) (int, error)
}

// FileStore serves per-collection file records, the document-store
// capability consumed by the search service.
type FileStore interface {
	UpsertFile(ctx context.Context, f *FileRecord) error
	FilesByCollection(ctx context.Context, collectionID string) ([]*FileRecord, error)
}

// Store aggregates every persistence concern behind one handle.
type Store interface {
	CollectionStore
	PipelineStore
	TemplateStore
	LLMParamsStore
	SessionStore
	FileStore
	Close() error
}
