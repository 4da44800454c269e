// Package server provides the REST and WebSocket gateway for Unica.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/unicahq/unica-go/internal/chat"
	"github.com/unicahq/unica-go/internal/db"
	"github.com/unicahq/unica-go/internal/events"
	"github.com/unicahq/unica-go/internal/metrics"
	"github.com/unicahq/unica-go/internal/models"
)

// Store is the read side of the gateway: job status, run history and the
// documents an indexing run is validated against. *db.Client satisfies it.
type Store interface {
	GetJob(ctx context.Context, id string) (*models.IndexingJob, error)
	GetActiveJobs(ctx context.Context, workspaceID string) ([]models.IndexingJob, error)
	GetJobHistory(ctx context.Context, baseID string, limit int) ([]models.IndexingJob, error)
	GetKnowledgeBase(ctx context.Context, id string) (*models.KnowledgeBase, error)
	ListDocuments(ctx context.Context, baseID string) ([]models.Document, error)
}

// Controller starts and steers indexing runs. *indexing.Manager satisfies it.
type Controller interface {
	Start(ctx context.Context, baseID, workspaceID string, mode models.IndexMode) (*models.IndexingJob, error)
	Pause(ctx context.Context, jobID string) (*models.IndexingJob, error)
	Resume(ctx context.Context, jobID string) (*models.IndexingJob, error)
	Cancel(ctx context.Context, jobID string) (*models.IndexingJob, error)
}

// ChatService serves the chat endpoints. *chat.Service satisfies it.
type ChatService interface {
	Context(ctx context.Context, chatID string, budget int) (chat.Pack, error)
	SendMessage(ctx context.Context, chatID, content string) (*chat.Exchange, error)
}

// Server is the HTTP gateway.
type Server struct {
	store      Store
	controller Controller
	chats      ChatService
	bus        *events.Bus
	metrics    *metrics.Collector
	logger     *slog.Logger

	httpServer *http.Server
}

// New wires the gateway and its routes.
func New(store Store, controller Controller, chats ChatService, bus *events.Bus, collector *metrics.Collector, logger *slog.Logger, port string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:      store,
		controller: controller,
		chats:      chats,
		bus:        bus,
		metrics:    collector,
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/workspaces/{workspaceID}/bases/{baseID}/indexing", s.handleStartIndexing)
	mux.HandleFunc("POST /api/indexing/{actionID}/pause", s.handlePauseIndexing)
	mux.HandleFunc("POST /api/indexing/{actionID}/resume", s.handleResumeIndexing)
	mux.HandleFunc("POST /api/indexing/{actionID}/cancel", s.handleCancelIndexing)
	mux.HandleFunc("GET /api/indexing/{actionID}", s.handleGetJob)
	mux.HandleFunc("GET /api/workspaces/{workspaceID}/indexing/active", s.handleActiveJobs)
	mux.HandleFunc("GET /api/bases/{baseID}/indexing/history", s.handleJobHistory)
	mux.HandleFunc("GET /api/chats/{chatID}/context", s.handleChatContext)
	mux.HandleFunc("POST /api/chats/{chatID}/messages", s.handleSendMessage)
	mux.HandleFunc("GET /api/logs/{resourceID}", s.handleLogStream)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	s.httpServer = &http.Server{
		Addr:         ":" + port,
		Handler:      s.withLogging(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // streaming endpoints manage their own deadlines
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until the listener fails. http.ErrServerClosed is returned after
// a clean Shutdown.
func (s *Server) Run() error {
	s.logger.Info("gateway listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// jsonResponse writes a JSON body with the given status.
func (s *Server) jsonResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("writing response failed", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// errorResponse writes a JSON error body.
func (s *Server) errorResponse(w http.ResponseWriter, status int, msg string) {
	s.jsonResponse(w, status, errorBody{Error: msg})
}

// storeError maps storage errors onto HTTP statuses.
func (s *Server) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		s.errorResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, db.ErrConflict):
		s.errorResponse(w, http.StatusConflict, err.Error())
	case errors.Is(err, db.ErrInvalidTransition):
		s.errorResponse(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
	}
}
