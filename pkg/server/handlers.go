package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/groundwork-ai/groundwork/pkg/conversation"
	"github.com/groundwork-ai/groundwork/pkg/errs"
	"github.com/groundwork-ai/groundwork/pkg/pipeline"
	"github.com/groundwork-ai/groundwork/pkg/storage"
)

const component = "Server"

type searchRequest struct {
	Question     string         `json:"question"`
	CollectionID string         `json:"collection_id"`
	PipelineID   string         `json:"pipeline_id,omitempty"`
	UserID       string         `json:"user_id"`
	Config       map[string]any `json:"config,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	output, err := s.searcher.Search(r.Context(), pipeline.SearchInput{
		Question:       req.Question,
		CollectionID:   req.CollectionID,
		PipelineID:     req.PipelineID,
		UserID:         req.UserID,
		ConfigMetadata: req.Config,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, output)
}

type createSessionRequest struct {
	UserID       string `json:"user_id"`
	CollectionID string `json:"collection_id"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.UserID == "" || req.CollectionID == "" {
		writeError(w, errs.New(errs.KindValidation, component, "CreateSession",
			"user_id and collection_id are required"))
		return
	}

	collection, err := s.store.GetCollection(r.Context(), req.CollectionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !collection.AccessibleBy(req.UserID) {
		writeError(w, errs.Newf(errs.KindNotFound, component, "CreateSession",
			"collection %q not found", req.CollectionID))
		return
	}

	session := &storage.Session{
		UserID:       req.UserID,
		CollectionID: req.CollectionID,
		Status:       "active",
	}
	if err := s.store.CreateSession(r.Context(), session); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

type postMessageRequest struct {
	UserID     string `json:"user_id"`
	Question   string `json:"question"`
	CoTEnabled bool   `json:"cot_enabled,omitempty"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	message, err := s.conversations.Ask(r.Context(), chi.URLParam(r, "id"), req.UserID, req.Question,
		conversation.AskOptions{CoTEnabled: req.CoTEnabled})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, message)
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	userID := r.URL.Query().Get("user_id")

	session, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	// Foreign sessions read like missing ones, matching the orchestrator.
	if session.UserID != userID {
		writeError(w, errs.Newf(errs.KindNotFound, component, "GetMessages",
			"session %q not found", sessionID))
		return
	}

	messages, err := s.store.GetMessages(r.Context(), sessionID, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(r *http.Request, into any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return errs.Wrap(errs.KindValidation, component, "Decode", "invalid request body", err)
	}
	return nil
}
