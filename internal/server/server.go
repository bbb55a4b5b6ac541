// Package server exposes sessions and items over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lamim/quizforge/internal/config"
	"github.com/lamim/quizforge/internal/orchestrator"
	"github.com/lamim/quizforge/internal/store"
	"github.com/lamim/quizforge/pkg/models"
)

const maxBodyBytes = 1 << 20

// Service is the session API. *orchestrator.Orchestrator implements it.
type Service interface {
	Start(req orchestrator.Request) (string, error)
	Prepare(req orchestrator.Request) (*orchestrator.Plan, error)
	Status(id string) (models.SessionSnapshot, bool)
	Workers(id string) ([]models.WorkerStatus, error)
	Cancel(id, reason string) (bool, error)
	List() []models.SessionSnapshot
}

// Items is the read side of the item store
type Items interface {
	Count(ctx context.Context, f store.Filter) (int, error)
	Ping(ctx context.Context) error
}

// Server wires the handlers into a chi router
type Server struct {
	svc    Service
	items  Items
	cfg    config.ServerConfig
	logger *slog.Logger
	router chi.Router
}

// New creates a server and registers its routes
func New(svc Service, items Items, cfg config.ServerConfig, logger *slog.Logger) *Server {
	s := &Server{svc: svc, items: items, cfg: cfg, logger: logger}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.Handler())
	s.registerRoutes(r)

	s.router = r
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) registerRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/plan", s.plan)
		r.Get("/items/count", s.countItems)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.startSession)
			r.Get("/", s.listSessions)
			r.Get("/{id}", s.getSession)
			r.Get("/{id}/workers", s.getWorkers)
			r.Post("/{id}/cancel", s.cancelSession)
		})
	})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.items.Ping(ctx); err != nil {
		JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "store": err.Error()})
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok", "store": "ok"})
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
