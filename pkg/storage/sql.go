package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/groundwork-ai/groundwork/pkg/errs"
)

const component = "storage"

// SQLStore implements Store on database/sql. Supported dialects are
// sqlite and postgres; the schema is shared and queries are written in
// `?` placeholder form, rewritten for postgres on the fly.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS collections (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    private BOOLEAN NOT NULL,
    vector_db_name VARCHAR(255) NOT NULL,
    status VARCHAR(32) NOT NULL,
    owner_id VARCHAR(64) NOT NULL,
    authorized_users TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS pipelines (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    collection_id VARCHAR(64),
    llm_provider_id VARCHAR(64) NOT NULL,
    chunking_strategy VARCHAR(32) NOT NULL,
    embedding_model VARCHAR(255),
    retriever VARCHAR(32) NOT NULL,
    context_strategy VARCHAR(32) NOT NULL,
    enable_logging BOOLEAN NOT NULL,
    max_context_tokens INTEGER NOT NULL,
    timeout_seconds INTEGER NOT NULL,
    config_metadata TEXT,
    is_default BOOLEAN NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pipelines_collection ON pipelines(collection_id);

CREATE TABLE IF NOT EXISTS templates (
    id VARCHAR(64) PRIMARY KEY,
    owner_id VARCHAR(64),
    kind VARCHAR(64) NOT NULL,
    format TEXT NOT NULL,
    input_variables TEXT NOT NULL,
    example_inputs TEXT,
    is_default BOOLEAN NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_templates_kind ON templates(kind);

CREATE TABLE IF NOT EXISTS llm_params (
    id VARCHAR(64) PRIMARY KEY,
    user_id VARCHAR(64),
    provider_id VARCHAR(64) NOT NULL,
    model VARCHAR(255),
    temperature DOUBLE PRECISION NOT NULL,
    max_tokens INTEGER NOT NULL,
    top_k INTEGER NOT NULL,
    top_p DOUBLE PRECISION NOT NULL,
    repetition_penalty DOUBLE PRECISION NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_llm_params_user ON llm_params(user_id, created_at);

CREATE TABLE IF NOT EXISTS sessions (
    id VARCHAR(64) PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    collection_id VARCHAR(64) NOT NULL,
    status VARCHAR(32) NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS session_messages (
    id VARCHAR(64) PRIMARY KEY,
    session_id VARCHAR(64) NOT NULL,
    role VARCHAR(32) NOT NULL,
    kind VARCHAR(32) NOT NULL,
    content TEXT NOT NULL,
    token_count INTEGER NOT NULL,
    execution_time DOUBLE PRECISION NOT NULL,
    metadata TEXT,
    sequence_num BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON session_messages(session_id, sequence_num);

CREATE TABLE IF NOT EXISTS files (
    id VARCHAR(64) PRIMARY KEY,
    collection_id VARCHAR(64) NOT NULL,
    document_id VARCHAR(64) NOT NULL,
    name VARCHAR(255) NOT NULL,
    page_count INTEGER NOT NULL,
    chunk_count INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_collection ON files(collection_id);
`

// NewSQLStore opens (or reuses) a database handle and ensures the
// schema. dialect is "sqlite" or "postgres"; dsn follows the driver's
// convention (file path / :memory: for sqlite, connection string for
// postgres).
func NewSQLStore(dialect, dsn string) (*SQLStore, error) {
	driverName := dialect
	if dialect == "sqlite" {
		driverName = "sqlite3"
	}
	switch dialect {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: sqlite, postgres)", dialect)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == "sqlite" {
		// One writer; avoids SQLITE_BUSY under concurrent appends.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", dialect, err)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// q rewrites `?` placeholders to `$n` for postgres.
func (s *SQLStore) q(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}

func unmarshalMap(raw string) (map[string]any, error) {
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return out, nil
}

// ---- collections ----

func (s *SQLStore) CreateCollection(ctx context.Context, c *Collection) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.VectorDBName == "" {
		c.VectorDBName = NewVectorDBName()
	}
	if c.Status == "" {
		c.Status = CollectionCreated
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	authorized, err := marshalJSON(c.AuthorizedUsers)
	if err != nil {
		return errs.Wrap(errs.KindStorage, component, "create_collection", "invalid authorized users", err)
	}

	_, err = s.db.ExecContext(ctx, s.q(`
INSERT INTO collections (id, name, private, vector_db_name, status, owner_id, authorized_users, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.Name, c.Private, c.VectorDBName, string(c.Status), c.OwnerID, authorized, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return errs.Wrap(errs.KindStorage, component, "create_collection", "insert failed", err)
	}
	return nil
}

func (s *SQLStore) GetCollection(ctx context.Context, id string) (*Collection, error) {
	var (
		c          Collection
		status     string
		authorized sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.q(`
SELECT id, name, private, vector_db_name, status, owner_id, authorized_users, created_at, updated_at
FROM collections WHERE id = ?`), id).Scan(
		&c.ID, &c.Name, &c.Private, &c.VectorDBName, &status, &c.OwnerID, &authorized, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errs.Newf(errs.KindNotFound, component, "get_collection", "collection %s not found", id)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, component, "get_collection", "query failed", err)
	}
	c.Status = CollectionStatus(status)
	if authorized.Valid && authorized.String != "" {
		if err := json.Unmarshal([]byte(authorized.String), &c.AuthorizedUsers); err != nil {
			return nil, errs.Wrap(errs.KindStorage, component, "get_collection", "corrupt authorized users", err)
		}
	}
	return &c, nil
}

func (s *SQLStore) UpdateCollectionStatus(ctx context.Context, id string, status CollectionStatus) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE collections SET status = ?, updated_at = ? WHERE id = ?`),
		string(status), time.Now().UTC(), id)
	if err != nil {
		return errs.Wrap(errs.KindStorage, component, "update_collection_status", "update failed", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.Newf(errs.KindNotFound, component, "update_collection_status", "collection %s not found", id)
	}
	return nil
}

func (s *SQLStore) DeleteCollection(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.KindStorage, component, "delete_collection", "begin failed", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM files WHERE collection_id = ?`,
		`DELETE FROM pipelines WHERE collection_id = ?`,
		`DELETE FROM collections WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, s.q(stmt), id); err != nil {
			return errs.Wrap(errs.KindStorage, component, "delete_collection", "delete failed", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.KindStorage, component, "delete_collection", "commit failed", err)
	}
	return nil
}

// ---- pipelines ----

func (s *SQLStore) CreatePipeline(ctx context.Context, p *PipelineConfig) error {
	p.SetDefaults()
	if err := p.Validate(); err != nil {
		return errs.Wrap(errs.KindValidation, component, "create_pipeline", "invalid pipeline", err)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	metadata, err := marshalJSON(p.ConfigMetadata)
	if err != nil {
		return errs.Wrap(errs.KindStorage, component, "create_pipeline", "invalid config metadata", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.KindStorage, component, "create_pipeline", "begin failed", err)
	}
	defer tx.Rollback()

	if p.IsDefault {
		if _, err := tx.ExecContext(ctx, s.q(`UPDATE pipelines SET is_default = ? WHERE collection_id = ?`),
			false, p.CollectionID); err != nil {
			return errs.Wrap(errs.KindStorage, component, "create_pipeline", "failed to clear previous default", err)
		}
	}

	_, err = tx.ExecContext(ctx, s.q(`
INSERT INTO pipelines (id, name, collection_id, llm_provider_id, chunking_strategy, embedding_model,
    retriever, context_strategy, enable_logging, max_context_tokens, timeout_seconds, config_metadata,
    is_default, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.Name, p.CollectionID, p.LLMProviderID, string(p.ChunkingStrategy), p.EmbeddingModel,
		string(p.Retriever), string(p.ContextStrategy), p.EnableLogging, p.MaxContextTokens, p.TimeoutSeconds,
		metadata, p.IsDefault, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return errs.Wrap(errs.KindStorage, component, "create_pipeline", "insert failed", err)
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.KindStorage, component, "create_pipeline", "commit failed", err)
	}
	return nil
}

func (s *SQLStore) scanPipeline(row *sql.Row, operation string) (*PipelineConfig, error) {
	var (
		p                                     PipelineConfig
		chunking, retriever, strategy, config string
		collectionID, embeddingModel          sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.Name, &collectionID, &p.LLMProviderID, &chunking, &embeddingModel,
		&retriever, &strategy, &p.EnableLogging, &p.MaxContextTokens, &p.TimeoutSeconds,
		&config, &p.IsDefault, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.KindNotFound, component, operation, "pipeline not found")
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, component, operation, "query failed", err)
	}
	p.CollectionID = collectionID.String
	p.EmbeddingModel = embeddingModel.String
	p.ChunkingStrategy = ChunkingStrategy(chunking)
	p.Retriever = RetrieverKind(retriever)
	p.ContextStrategy = ContextStrategy(strategy)
	if p.ConfigMetadata, err = unmarshalMap(config); err != nil {
		return nil, errs.Wrap(errs.KindStorage, component, operation, "corrupt config metadata", err)
	}
	return &p, nil
}

const pipelineColumns = `id, name, collection_id, llm_provider_id, chunking_strategy, embedding_model,
    retriever, context_strategy, enable_logging, max_context_tokens, timeout_seconds, config_metadata,
    is_default, created_at, updated_at`

func (s *SQLStore) GetPipeline(ctx context.Context, id string) (*PipelineConfig, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+pipelineColumns+` FROM pipelines WHERE id = ?`), id)
	return s.scanPipeline(row, "get_pipeline")
}

func (s *SQLStore) GetDefaultPipeline(ctx context.Context, collectionID string) (*PipelineConfig, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+pipelineColumns+` FROM pipelines WHERE collection_id = ? AND is_default = ?`),
		collectionID, true)
	return s.scanPipeline(row, "get_default_pipeline")
}

func (s *SQLStore) SetDefaultPipeline(ctx context.Context, pipelineID string) error {
	p, err := s.GetPipeline(ctx, pipelineID)
	if err != nil {
		return err
	}
	if p.CollectionID == "" {
		return errs.New(errs.KindValidation, component, "set_default_pipeline",
			"a default pipeline must reference a collection")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.KindStorage, component, "set_default_pipeline", "begin failed", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, s.q(`UPDATE pipelines SET is_default = ?, updated_at = ? WHERE collection_id = ?`),
		false, now, p.CollectionID); err != nil {
		return errs.Wrap(errs.KindStorage, component, "set_default_pipeline", "failed to clear previous default", err)
	}
	if _, err := tx.ExecContext(ctx, s.q(`UPDATE pipelines SET is_default = ?, updated_at = ? WHERE id = ?`),
		true, now, pipelineID); err != nil {
		return errs.Wrap(errs.KindStorage, component, "set_default_pipeline", "failed to set default", err)
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.KindStorage, component, "set_default_pipeline", "commit failed", err)
	}
	return nil
}

// ---- templates ----

func (s *SQLStore) CreateTemplate(ctx context.Context, t *TemplateRecord) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now().UTC()

	variables, err := marshalJSON(t.InputVariables)
	if err != nil {
		return errs.Wrap(errs.KindStorage, component, "create_template", "invalid input variables", err)
	}
	examples, err := marshalJSON(t.ExampleInputs)
	if err != nil {
		return errs.Wrap(errs.KindStorage, component, "create_template", "invalid example inputs", err)
	}

	_, err = s.db.ExecContext(ctx, s.q(`
INSERT INTO templates (id, owner_id, kind, format, input_variables, example_inputs, is_default, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, t.OwnerID, t.Kind, t.Format, variables, examples, t.IsDefault, t.CreatedAt,
	)
	if err != nil {
		return errs.Wrap(errs.KindStorage, component, "create_template", "insert failed", err)
	}
	return nil
}

func (s *SQLStore) scanTemplate(row *sql.Row, operation string) (*TemplateRecord, error) {
	var (
		t                   TemplateRecord
		variables, examples sql.NullString
		ownerID             sql.NullString
	)
	err := row.Scan(&t.ID, &ownerID, &t.Kind, &t.Format, &variables, &examples, &t.IsDefault, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.KindNotFound, component, operation, "template not found")
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, component, operation, "query failed", err)
	}
	t.OwnerID = ownerID.String
	if variables.Valid && variables.String != "" {
		if err := json.Unmarshal([]byte(variables.String), &t.InputVariables); err != nil {
			return nil, errs.Wrap(errs.KindStorage, component, operation, "corrupt input variables", err)
		}
	}
	if examples.Valid && examples.String != "" && examples.String != "null" {
		if err := json.Unmarshal([]byte(examples.String), &t.ExampleInputs); err != nil {
			return nil, errs.Wrap(errs.KindStorage, component, operation, "corrupt example inputs", err)
		}
	}
	return &t, nil
}

func (s *SQLStore) GetTemplate(ctx context.Context, id string) (*TemplateRecord, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
SELECT id, owner_id, kind, format, input_variables, example_inputs, is_default, created_at
FROM templates WHERE id = ?`), id)
	return s.scanTemplate(row, "get_template")
}

func (s *SQLStore) GetDefaultTemplate(ctx context.Context, kind string) (*TemplateRecord, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
SELECT id, owner_id, kind, format, input_variables, example_inputs, is_default, created_at
FROM templates WHERE kind = ? AND is_default = ? ORDER BY created_at DESC LIMIT 1`), kind, true)
	return s.scanTemplate(row, "get_default_template")
}

// ---- llm params ----

func (s *SQLStore) SaveLLMParams(ctx context.Context, p *LLMParams) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, s.q(`
INSERT INTO llm_params (id, user_id, provider_id, model, temperature, max_tokens, top_k, top_p, repetition_penalty, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.UserID, p.ProviderID, p.Model, p.Temperature, p.MaxTokens, p.TopK, p.TopP, p.RepetitionPenalty, p.CreatedAt,
	)
	if err != nil {
		return errs.Wrap(errs.KindStorage, component, "save_llm_params", "insert failed", err)
	}
	return nil
}

func (s *SQLStore) LatestLLMParams(ctx context.Context, userID string) (*LLMParams, error) {
	scan := func(row *sql.Row) (*LLMParams, error) {
		var p LLMParams
		var user sql.NullString
		err := row.Scan(&p.ID, &user, &p.ProviderID, &p.Model, &p.Temperature, &p.MaxTokens,
			&p.TopK, &p.TopP, &p.RepetitionPenalty, &p.CreatedAt)
		if err != nil {
			return nil, err
		}
		p.UserID = user.String
		return &p, nil
	}

	const columns = `id, user_id, provider_id, model, temperature, max_tokens, top_k, top_p, repetition_penalty, created_at`

	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+columns+` FROM llm_params WHERE user_id = ? ORDER BY created_at DESC LIMIT 1`), userID)
	p, err := scan(row)
	if err == nil {
		return p, nil
	}
	if err != sql.ErrNoRows {
		return nil, errs.Wrap(errs.KindStorage, component, "latest_llm_params", "query failed", err)
	}

	// Fall back to the newest system row.
	row = s.db.QueryRowContext(ctx, s.q(`SELECT `+columns+` FROM llm_params WHERE user_id = ? ORDER BY created_at DESC LIMIT 1`), "")
	p, err = scan(row)
	if err == sql.ErrNoRows {
		return nil, errs.Newf(errs.KindNotFound, component, "latest_llm_params", "no parameters for user %s and no default", userID)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, component, "latest_llm_params", "query failed", err)
	}
	return p, nil
}

// ---- sessions and messages ----

func (s *SQLStore) CreateSession(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Status == "" {
		sess.Status = "active"
	}
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, s.q(`
INSERT INTO sessions (id, user_id, collection_id, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`),
		sess.ID, sess.UserID, sess.CollectionID, sess.Status, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return errs.Wrap(errs.KindStorage, component, "create_session", "insert failed", err)
	}
	return nil
}

func (s *SQLStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, s.q(`
SELECT id, user_id, collection_id, status, created_at, updated_at FROM sessions WHERE id = ?`), id).Scan(
		&sess.ID, &sess.UserID, &sess.CollectionID, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errs.Newf(errs.KindNotFound, component, "get_session", "session %s not found", id)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, component, "get_session", "query failed", err)
	}
	return &sess, nil
}

// DeleteSession removes a session and, in the same transaction, every
// message it owns.
func (s *SQLStore) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.KindStorage, component, "delete_session", "begin failed", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM session_messages WHERE session_id = ?`), id); err != nil {
		return errs.Wrap(errs.KindStorage, component, "delete_session", "failed to delete messages", err)
	}
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM sessions WHERE id = ?`), id); err != nil {
		return errs.Wrap(errs.KindStorage, component, "delete_session", "failed to delete session", err)
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.KindStorage, component, "delete_session", "commit failed", err)
	}
	return nil
}

func (s *SQLStore) AppendMessage(ctx context.Context, m *Message) error {
	return s.AppendMessages(ctx, []*Message{m})
}

// AppendMessages persists messages atomically with contiguous sequence
// numbers, so a user question and the assistant answer land together or
// not at all.
func (s *SQLStore) AppendMessages(ctx context.Context, messages []*Message) error {
	if len(messages) == 0 {
		return nil
	}
	sessionID := messages[0].SessionID
	if sessionID == "" {
		return errs.New(errs.KindValidation, component, "append_messages", "session id is required")
	}
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.KindStorage, component, "append_messages", "begin failed", err)
	}
	defer tx.Rollback()

	var lastSeq int64
	if err := tx.QueryRowContext(ctx,
		s.q(`SELECT COALESCE(MAX(sequence_num), 0) FROM session_messages WHERE session_id = ?`),
		sessionID).Scan(&lastSeq); err != nil {
		return errs.Wrap(errs.KindStorage, component, "append_messages", "failed to read sequence", err)
	}

	now := time.Now().UTC()
	for i, m := range messages {
		if m.SessionID != sessionID {
			return errs.New(errs.KindValidation, component, "append_messages", "messages span multiple sessions")
		}
		if m.TokenCount < 0 {
			return errs.New(errs.KindValidation, component, "append_messages", "token count must be non-negative")
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.SequenceNum = lastSeq + int64(i) + 1
		m.CreatedAt = now

		metadata, err := marshalJSON(m.Metadata)
		if err != nil {
			return errs.Wrap(errs.KindStorage, component, "append_messages", "invalid metadata", err)
		}

		if _, err := tx.ExecContext(ctx, s.q(`
INSERT INTO session_messages (id, session_id, role, kind, content, token_count, execution_time, metadata, sequence_num, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			m.ID, m.SessionID, string(m.Role), string(m.Kind), m.Content, m.TokenCount,
			m.ExecutionTime, metadata, m.SequenceNum, m.CreatedAt,
		); err != nil {
			return errs.Wrap(errs.KindStorage, component, "append_messages", "insert failed", err)
		}
	}

	if _, err := tx.ExecContext(ctx, s.q(`UPDATE sessions SET updated_at = ? WHERE id = ?`), now, sessionID); err != nil {
		return errs.Wrap(errs.KindStorage, component, "append_messages", "failed to touch session", err)
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.KindStorage, component, "append_messages", "commit failed", err)
	}
	return nil
}

// GetMessages returns messages in sequence order. With a positive limit
// it returns the newest limit messages, still oldest-first.
func (s *SQLStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error) {
	query := `
SELECT id, session_id, role, kind, content, token_count, execution_time, metadata, sequence_num, created_at
FROM session_messages WHERE session_id = ? ORDER BY sequence_num ASC`
	args := []any{sessionID}
	if limit > 0 {
		query = `
SELECT id, session_id, role, kind, content, token_count, execution_time, metadata, sequence_num, created_at FROM (
    SELECT id, session_id, role, kind, content, token_count, execution_time, metadata, sequence_num, created_at
    FROM session_messages WHERE session_id = ? ORDER BY sequence_num DESC LIMIT ?
) sub ORDER BY sequence_num ASC`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, component, "get_messages", "query failed", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var (
			m          Message
			role, kind string
			metadata   sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &kind, &m.Content, &m.TokenCount,
			&m.ExecutionTime, &metadata, &m.SequenceNum, &m.CreatedAt); err != nil {
			return nil, errs.Wrap(errs.KindStorage, component, "get_messages", "scan failed", err)
		}
		m.Role = MessageRole(role)
		m.Kind = MessageKind(kind)
		if metadata.Valid {
			if m.Metadata, err = unmarshalMap(metadata.String); err != nil {
				return nil, errs.Wrap(errs.KindStorage, component, "get_messages", "corrupt metadata", err)
			}
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.KindStorage, component, "get_messages", "iteration failed", err)
	}
	return messages, nil
}

func (s *SQLStore) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM session_messages WHERE session_id = ?`), sessionID).Scan(&count)
	if err != nil {
		return 0, errs.Wrap(errs.KindStorage, component, "count_messages", "query failed", err)
	}
	return count, nil
}

func (s *SQLStore) SumTokenCounts(ctx context.Context, sessionID string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COALESCE(SUM(token_count), 0) FROM session_messages WHERE session_id = ?`), sessionID).Scan(&total)
	if err != nil {
		return 0, errs.Wrap(errs.KindStorage, component, "sum_token_counts", "query failed", err)
	}
	return total, nil
}

// ---- files ----

func (s *SQLStore) UpsertFile(ctx context.Context, f *FileRecord) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.DocumentID == "" {
		f.DocumentID = f.ID
	}
	f.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.KindStorage, component, "upsert_file", "begin failed", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM files WHERE id = ?`), f.ID); err != nil {
		return errs.Wrap(errs.KindStorage, component, "upsert_file", "delete failed", err)
	}
	if _, err := tx.ExecContext(ctx, s.q(`
INSERT INTO files (id, collection_id, document_id, name, page_count, chunk_count, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`),
		f.ID, f.CollectionID, f.DocumentID, f.Name, f.PageCount, f.ChunkCount, f.CreatedAt,
	); err != nil {
		return errs.Wrap(errs.KindStorage, component, "upsert_file", "insert failed", err)
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.KindStorage, component, "upsert_file", "commit failed", err)
	}
	return nil
}

func (s *SQLStore) FilesByCollection(ctx context.Context, collectionID string) ([]*FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
SELECT id, collection_id, document_id, name, page_count, chunk_count, created_at
FROM files WHERE collection_id = ? ORDER BY name ASC`), collectionID)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, component, "files_by_collection", "query failed", err)
	}
	defer rows.Close()

	var files []*FileRecord
	for rows.Next() {
		var f FileRecord
		if err := rows.Scan(&f.ID, &f.CollectionID, &f.DocumentID, &f.Name, &f.PageCount, &f.ChunkCount, &f.CreatedAt); err != nil {
			return nil, errs.Wrap(errs.KindStorage, component, "files_by_collection", "scan failed", err)
		}
		files = append(files, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.KindStorage, component, "files_by_collection", "iteration failed", err)
	}
	return files, nil
}

var _ Store = (*SQLStore)(nil)
