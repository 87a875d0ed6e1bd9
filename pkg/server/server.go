// Package server exposes the query engine over HTTP: search,
// conversational messaging, health and metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/groundwork-ai/groundwork/pkg/config"
	"github.com/groundwork-ai/groundwork/pkg/conversation"
	"github.com/groundwork-ai/groundwork/pkg/observability"
	"github.com/groundwork-ai/groundwork/pkg/search"
	"github.com/groundwork-ai/groundwork/pkg/storage"
)

// Server is the HTTP front of the engine.
type Server struct {
	cfg           config.ServerConfig
	searcher      *search.Service
	conversations *conversation.Orchestrator
	store         storage.Store
	metrics       observability.Recorder

	httpServer *http.Server
}

// Option configures the server.
type Option func(*Server)

// WithMetrics mounts the recorder's handler on /metrics and wraps the
// router in the HTTP metrics middleware.
func WithMetrics(rec observability.Recorder) Option {
	return func(s *Server) {
		s.metrics = rec
	}
}

// New builds the server and its router.
func New(cfg config.ServerConfig, searcher *search.Service, conversations *conversation.Orchestrator, store storage.Store, opts ...Option) *Server {
	s := &Server{
		cfg:           cfg,
		searcher:      searcher,
		conversations: conversations,
		store:         store,
		metrics:       observability.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observability.HTTPMiddleware(s.metrics))

	r.Post("/search", s.handleSearch)
	r.Post("/sessions", s.handleCreateSession)
	r.Post("/sessions/{id}/messages", s.handlePostMessage)
	r.Get("/sessions/{id}/messages", s.handleGetMessages)
	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the router, used by tests to serve without a socket.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
