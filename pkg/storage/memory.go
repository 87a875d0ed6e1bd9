package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/groundwork-ai/groundwork/pkg/errs"
)

// MemoryStore implements Store entirely in memory. Used by tests and
// zero-config runs; semantics match SQLStore.
type MemoryStore struct {
	mu sync.RWMutex

	collections map[string]*Collection
	pipelines   map[string]*PipelineConfig
	templates   map[string]*TemplateRecord
	llmParams   []*LLMParams
	sessions    map[string]*Session
	messages    map[string][]*Message
	files       map[string][]*FileRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*Collection),
		pipelines:   make(map[string]*PipelineConfig),
		templates:   make(map[string]*TemplateRecord),
		sessions:    make(map[string]*Session),
		messages:    make(map[string][]*Message),
		files:       make(map[string][]*FileRecord),
	}
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) CreateCollection(ctx context.Context, c *Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

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

	clone := *c
	s.collections[c.ID] = &clone
	return nil
}

func (s *MemoryStore) GetCollection(ctx context.Context, id string) (*Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[id]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, component, "get_collection", "collection %s not found", id)
	}
	clone := *c
	return &clone, nil
}

func (s *MemoryStore) UpdateCollectionStatus(ctx context.Context, id string, status CollectionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[id]
	if !ok {
		return errs.Newf(errs.KindNotFound, component, "update_collection_status", "collection %s not found", id)
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) DeleteCollection(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, id)
	delete(s.files, id)
	for pid, p := range s.pipelines {
		if p.CollectionID == id {
			delete(s.pipelines, pid)
		}
	}
	return nil
}

func (s *MemoryStore) CreatePipeline(ctx context.Context, p *PipelineConfig) error {
	p.SetDefaults()
	if err := p.Validate(); err != nil {
		return errs.Wrap(errs.KindValidation, component, "create_pipeline", "invalid pipeline", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	if p.IsDefault {
		for _, other := range s.pipelines {
			if other.CollectionID == p.CollectionID {
				other.IsDefault = false
			}
		}
	}

	clone := *p
	s.pipelines[p.ID] = &clone
	return nil
}

func (s *MemoryStore) GetPipeline(ctx context.Context, id string) (*PipelineConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pipelines[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, component, "get_pipeline", "pipeline not found")
	}
	clone := *p
	return &clone, nil
}

func (s *MemoryStore) GetDefaultPipeline(ctx context.Context, collectionID string) (*PipelineConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.pipelines {
		if p.CollectionID == collectionID && p.IsDefault {
			clone := *p
			return &clone, nil
		}
	}
	return nil, errs.New(errs.KindNotFound, component, "get_default_pipeline", "pipeline not found")
}

func (s *MemoryStore) SetDefaultPipeline(ctx context.Context, pipelineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pipelines[pipelineID]
	if !ok {
		return errs.New(errs.KindNotFound, component, "set_default_pipeline", "pipeline not found")
	}
	if p.CollectionID == "" {
		return errs.New(errs.KindValidation, component, "set_default_pipeline",
			"a default pipeline must reference a collection")
	}

	now := time.Now().UTC()
	for _, other := range s.pipelines {
		if other.CollectionID == p.CollectionID && other.IsDefault {
			other.IsDefault = false
			other.UpdatedAt = now
		}
	}
	p.IsDefault = true
	p.UpdatedAt = now
	return nil
}

func (s *MemoryStore) CreateTemplate(ctx context.Context, t *TemplateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now().UTC()

	clone := *t
	s.templates[t.ID] = &clone
	return nil
}

func (s *MemoryStore) GetTemplate(ctx context.Context, id string) (*TemplateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, component, "get_template", "template not found")
	}
	clone := *t
	return &clone, nil
}

func (s *MemoryStore) GetDefaultTemplate(ctx context.Context, kind string) (*TemplateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *TemplateRecord
	for _, t := range s.templates {
		if t.Kind != kind || !t.IsDefault {
			continue
		}
		if newest == nil || t.CreatedAt.After(newest.CreatedAt) {
			newest = t
		}
	}
	if newest == nil {
		return nil, errs.New(errs.KindNotFound, component, "get_default_template", "template not found")
	}
	clone := *newest
	return &clone, nil
}

func (s *MemoryStore) SaveLLMParams(ctx context.Context, p *LLMParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now().UTC()

	clone := *p
	s.llmParams = append(s.llmParams, &clone)
	return nil
}

func (s *MemoryStore) LatestLLMParams(ctx context.Context, userID string) (*LLMParams, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := func(user string) *LLMParams {
		var found *LLMParams
		for _, p := range s.llmParams {
			if p.UserID != user {
				continue
			}
			if found == nil || !p.CreatedAt.Before(found.CreatedAt) {
				found = p
			}
		}
		return found
	}

	p := latest(userID)
	if p == nil {
		p = latest("")
	}
	if p == nil {
		return nil, errs.Newf(errs.KindNotFound, component, "latest_llm_params", "no parameters for user %s and no default", userID)
	}
	clone := *p
	return &clone, nil
}

func (s *MemoryStore) CreateSession(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Status == "" {
		sess.Status = "active"
	}
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	clone := *sess
	s.sessions[sess.ID] = &clone
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, component, "get_session", "session %s not found", id)
	}
	clone := *sess
	return &clone, nil
}

func (s *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, m *Message) error {
	return s.AppendMessages(ctx, []*Message{m})
}

func (s *MemoryStore) AppendMessages(ctx context.Context, messages []*Message) error {
	if len(messages) == 0 {
		return nil
	}
	sessionID := messages[0].SessionID
	if sessionID == "" {
		return errs.New(errs.KindValidation, component, "append_messages", "session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return errs.Newf(errs.KindNotFound, component, "append_messages", "session %s not found", sessionID)
	}

	var lastSeq int64
	if existing := s.messages[sessionID]; len(existing) > 0 {
		lastSeq = existing[len(existing)-1].SequenceNum
	}

	now := time.Now().UTC()
	appended := make([]*Message, 0, len(messages))
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

		clone := *m
		appended = append(appended, &clone)
	}

	s.messages[sessionID] = append(s.messages[sessionID], appended...)
	sess.UpdatedAt = now
	return nil
}

func (s *MemoryStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}

	out := make([]*Message, 0, len(all))
	for _, m := range all {
		clone := *m
		out = append(out, &clone)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SequenceNum < out[j].SequenceNum })
	return out, nil
}

func (s *MemoryStore) CountMessages(ctx context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages[sessionID]), nil
}

func (s *MemoryStore) SumTokenCounts(ctx context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, m := range s.messages[sessionID] {
		total += m.TokenCount
	}
	return total, nil
}

func (s *MemoryStore) UpsertFile(ctx context.Context, f *FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.DocumentID == "" {
		f.DocumentID = f.ID
	}
	f.CreatedAt = time.Now().UTC()

	files := s.files[f.CollectionID]
	for i, existing := range files {
		if existing.ID == f.ID {
			clone := *f
			files[i] = &clone
			return nil
		}
	}
	clone := *f
	s.files[f.CollectionID] = append(files, &clone)
	return nil
}

func (s *MemoryStore) FilesByCollection(ctx context.Context, collectionID string) ([]*FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files := s.files[collectionID]
	out := make([]*FileRecord, 0, len(files))
	for _, f := range files {
		clone := *f
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
