package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lamim/quizforge/internal/orchestrator"
	"github.com/lamim/quizforge/internal/session"
	"github.com/lamim/quizforge/internal/store"
	"github.com/lamim/quizforge/pkg/models"
)

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.Request
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.svc.Start(req)
	switch {
	case err == nil:
		JSON(w, http.StatusAccepted, map[string]string{"session_id": id})
	case errors.Is(err, orchestrator.ErrInvalidRequest):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrSessionExists):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, orchestrator.ErrShuttingDown):
		Error(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("Failed to start session", "error", err)
		Error(w, http.StatusInternalServerError, "failed to start session")
	}
}

func (s *Server) listSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.svc.List()
	JSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, ok := s.svc.Status(id)
	if !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, snap)
}

func (s *Server) getWorkers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	workers, err := s.svc.Workers(id)
	if errors.Is(err, session.ErrSessionNotFound) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"workers":    workers,
		"summary":    models.SummarizeWorkers(workers),
	})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req cancelRequest
	// The body is optional
	if err := decode(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	cancelled, err := s.svc.Cancel(id, req.Reason)
	if errors.Is(err, session.ErrSessionNotFound) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]any{"session_id": id, "cancelled": cancelled})
}

func (s *Server) plan(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.Request
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	plan, err := s.svc.Prepare(req)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	JSON(w, http.StatusOK, plan)
}

func (s *Server) countItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.Filter{
		Category:   models.Category(q.Get("category")),
		Difficulty: q.Get("difficulty"),
	}
	if f.Category != "" && !f.Category.Valid() {
		Error(w, http.StatusBadRequest, "unknown category")
		return
	}
	if raw := q.Get("group_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			Error(w, http.StatusBadRequest, "group_id must be a positive integer")
			return
		}
		f.GroupID = id
	}

	n, err := s.items.Count(r.Context(), f)
	if err != nil {
		s.logger.Error("Failed to count items", "error", err)
		Error(w, http.StatusInternalServerError, "failed to count items")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"count": n})
}
