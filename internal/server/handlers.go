package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/unicahq/unica-go/internal/models"
)

// StartIndexingRequest is the body of POST .../indexing.
type StartIndexingRequest struct {
	Mode models.IndexMode `json:"mode"`
}

func (s *Server) handleStartIndexing(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("workspaceID")
	baseID := r.PathValue("baseID")

	// An empty body means default options
	var req StartIndexingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Mode == "" {
		req.Mode = models.IndexModeFull
	}
	if req.Mode != models.IndexModeFull && req.Mode != models.IndexModeChanged {
		s.errorResponse(w, http.StatusBadRequest, "mode must be full or changed")
		return
	}

	// Validate synchronously before creating the job
	base, err := s.store.GetKnowledgeBase(r.Context(), baseID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if base.WorkspaceID != workspaceID {
		s.errorResponse(w, http.StatusNotFound, "knowledge base not in workspace")
		return
	}
	docs, err := s.store.ListDocuments(r.Context(), baseID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if len(docs) == 0 {
		s.errorResponse(w, http.StatusUnprocessableEntity, "knowledge base has no documents")
		return
	}

	job, err := s.controller.Start(r.Context(), baseID, workspaceID, req.Mode)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, job)
}

func (s *Server) handlePauseIndexing(w http.ResponseWriter, r *http.Request) {
	job, err := s.controller.Pause(r.Context(), r.PathValue("actionID"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

func (s *Server) handleResumeIndexing(w http.ResponseWriter, r *http.Request) {
	job, err := s.controller.Resume(r.Context(), r.PathValue("actionID"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

func (s *Server) handleCancelIndexing(w http.ResponseWriter, r *http.Request) {
	job, err := s.controller.Cancel(r.Context(), r.PathValue("actionID"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), r.PathValue("actionID"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

func (s *Server) handleActiveJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.GetActiveJobs(r.Context(), r.PathValue("workspaceID"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, jobs)
}

func (s *Server) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.errorResponse(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	jobs, err := s.store.GetJobHistory(r.Context(), r.PathValue("baseID"), limit)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, jobs)
}

func (s *Server) handleChatContext(w http.ResponseWriter, r *http.Request) {
	budget := 0
	if v := r.URL.Query().Get("budget"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.errorResponse(w, http.StatusBadRequest, "budget must be a positive integer")
			return
		}
		budget = n
	}

	pack, err := s.chats.Context(r.Context(), r.PathValue("chatID"), budget)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, pack)
}

// SendMessageRequest is the body of POST /api/chats/{chatID}/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Content == "" {
		s.errorResponse(w, http.StatusBadRequest, "content is required")
		return
	}

	exchange, err := s.chats.SendMessage(r.Context(), r.PathValue("chatID"), req.Content)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, exchange)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatsResponse aggregates gateway introspection.
type StatsResponse struct {
	Bus     any `json:"bus,omitempty"`
	Metrics any `json:"metrics,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{}
	if s.bus != nil {
		resp.Bus = s.bus.Stats()
	}
	if s.metrics != nil {
		resp.Metrics = s.metrics.Snapshot()
	}
	s.jsonResponse(w, http.StatusOK, resp)
}
