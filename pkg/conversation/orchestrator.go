package conversation

import (
	"context"
	"log/slog"
	"time"

	"github.com/groundwork-ai/groundwork/pkg/config"
	"github.com/groundwork-ai/groundwork/pkg/errs"
	"github.com/groundwork-ai/groundwork/pkg/pipeline"
	"github.com/groundwork-ai/groundwork/pkg/search"
	"github.com/groundwork-ai/groundwork/pkg/storage"
	"github.com/groundwork-ai/groundwork/pkg/tokens"
)

const component = "Conversation"

// TokenAnalysis is the per-turn accounting stored on the assistant
// message. ConversationTotal always equals the sum of token counts of
// every message in the session, including the message carrying it.
type TokenAnalysis struct {
	QueryTokens       int `json:"query_tokens"`
	ResponseTokens    int `json:"response_tokens"`
	SystemTokens      int `json:"system_tokens"`
	TotalThisTurn     int `json:"total_this_turn"`
	ConversationTotal int `json:"conversation_total"`
}

// AskOptions are the per-turn knobs.
type AskOptions struct {
	CoTEnabled bool
}

// Orchestrator runs one conversation turn end to end: persist the
// question, build context, search, budget tokens, persist the answer.
type Orchestrator struct {
	store       storage.Store
	searcher    *search.Service
	contextSvc  *ContextService
	tracker     *tokens.Tracker
	cfg         config.ConversationConfig
	countTokens func(string) int
}

// NewOrchestrator wires a conversation orchestrator. countTokens may be
// nil, in which case the word-based estimator is used.
func NewOrchestrator(store storage.Store, searcher *search.Service, cfg config.ConversationConfig, countTokens func(string) int) *Orchestrator {
	if countTokens == nil {
		countTokens = tokens.Estimate
	}
	return &Orchestrator{
		store:       store,
		searcher:    searcher,
		contextSvc:  NewContextService(),
		tracker:     tokens.NewTracker(cfg.WarnAtPercent),
		cfg:         cfg,
		countTokens: countTokens,
	}
}

// Ask handles one user turn and returns the stored assistant message.
func (o *Orchestrator) Ask(ctx context.Context, sessionID, userID, question string, opts AskOptions) (*storage.Message, error) {
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	// Foreign sessions read like missing ones.
	if session.UserID != userID {
		return nil, errs.Newf(errs.KindNotFound, component, "Ask", "session %q not found", sessionID)
	}

	queryTokens := o.countTokens(question)
	userMessage := &storage.Message{
		SessionID:  sessionID,
		Role:       storage.RoleUser,
		Kind:       storage.KindQuestion,
		Content:    question,
		TokenCount: queryTokens,
	}
	if err := o.store.AppendMessage(ctx, userMessage); err != nil {
		return nil, err
	}

	recent, err := o.store.GetMessages(ctx, sessionID, o.cfg.ContextWindowMessages)
	if err != nil {
		return nil, err
	}
	convCtx := o.contextSvc.Build(recent)
	enhanced := EnhanceQuestion(question, convCtx)

	start := time.Now()
	output, err := o.searcher.Search(ctx, pipeline.SearchInput{
		Question:     enhanced,
		CollectionID: session.CollectionID,
		UserID:       userID,
		ConfigMetadata: map[string]any{
			"conversation_aware": true,
			"context_window":     convCtx.Window,
			"entities":           convCtx.Entities,
			"cot_enabled":        opts.CoTEnabled,
		},
	})
	if err != nil {
		return nil, err
	}

	responseTokens := o.countTokens(output.Answer)
	systemTokens := o.countTokens(convCtx.Window)

	// The user message is already persisted, so the running sum plus the
	// assistant tokens is the post-turn conversation total.
	sumSoFar, err := o.store.SumTokenCounts(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	analysis := TokenAnalysis{
		QueryTokens:       queryTokens,
		ResponseTokens:    responseTokens,
		SystemTokens:      systemTokens,
		TotalThisTurn:     queryTokens + responseTokens + systemTokens,
		ConversationTotal: sumSoFar + responseTokens,
	}

	metadata := map[string]any{
		"sources":        serializeSources(output.Documents),
		"token_analysis": analysis,
	}
	if output.CoT != nil {
		metadata["cot_output"] = output.CoT
	}
	if warning := o.tracker.CheckUsageWarning(analysis.ConversationTotal, o.cfg.MaxContextTokens); warning != nil {
		metadata["token_warning"] = warning
		slog.Info("session token warning",
			"session_id", sessionID,
			"type", warning.Type,
			"percentage", warning.Percentage)
	}

	assistantMessage := &storage.Message{
		SessionID:     sessionID,
		Role:          storage.RoleAssistant,
		Kind:          storage.KindAnswer,
		Content:       output.Answer,
		TokenCount:    responseTokens,
		ExecutionTime: time.Since(start).Seconds(),
		Metadata:      metadata,
	}
	if err := o.store.AppendMessage(ctx, assistantMessage); err != nil {
		return nil, err
	}
	return assistantMessage, nil
}

// serializeSources stores the document views in the shape the context
// builder reads back.
func serializeSources(documents []search.DocumentMetadata) []any {
	out := make([]any, 0, len(documents))
	for _, doc := range documents {
		out = append(out, map[string]any{
			"document_id": doc.DocumentID,
			"name":        doc.Name,
			"best_score":  doc.BestScore,
		})
	}
	return out
}
