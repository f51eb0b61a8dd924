// Package api serves a read-only inspection surface over the job log and
// the live cache. It is an observability aid, not part of the job transport.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kettleworks/dirigent/internal/joblog"
	"github.com/kettleworks/dirigent/internal/log"
)

// JobLister lists recorded job outcomes.
type JobLister interface {
	List(ctx context.Context, limit int) ([]joblog.Entry, error)
}

// CacheInspector exposes the live cache keys.
type CacheInspector interface {
	Keys() []string
	Tagged(tag string) []string
}

// Config holds inspection server settings.
type Config struct {
	Listen string
}

// Server is the inspection HTTP server.
type Server struct {
	config Config
	jobs   JobLister
	cache  CacheInspector
	logger *slog.Logger
	http   *http.Server
}

// New creates a Server.
func New(cfg Config, jobs JobLister, cache CacheInspector) *Server {
	return &Server{
		config: cfg,
		jobs:   jobs,
		cache:  cache,
		logger: log.WithComponent("api"),
	}
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("inspection api listening", "listen", s.config.Listen)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/v1/jobs", s.handleJobs)
	r.Get("/v1/cache/keys", s.handleCacheKeys)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type jobView struct {
	JobID       string `json:"job_id"`
	Component   string `json:"component"`
	Action      string `json:"action,omitempty"`
	Status      string `json:"status"`
	Command     string `json:"command,omitempty"`
	Error       string `json:"error,omitempty"`
	CompletedAt string `json:"completed_at"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	entries, err := s.jobs.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("list jobs failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "job log unavailable"})
		return
	}

	views := make([]jobView, 0, len(entries))
	for _, e := range entries {
		views = append(views, jobView{
			JobID:       e.JobID,
			Component:   e.Component,
			Action:      e.Action,
			Status:      string(e.Status),
			Command:     e.Command,
			Error:       e.Error,
			CompletedAt: e.CompletedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

func (s *Server) handleCacheKeys(w http.ResponseWriter, r *http.Request) {
	var keys []string
	if tag := r.URL.Query().Get("tag"); tag != "" {
		keys = s.cache.Tagged(tag)
	} else {
		keys = s.cache.Keys()
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
