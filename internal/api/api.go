// Package api exposes the job queue over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/amishk599/jobmatch/internal/model"
	"github.com/amishk599/jobmatch/internal/queue"
	"github.com/amishk599/jobmatch/internal/worker"
)

const defaultListLimit = 100

// Runner starts queue runs. worker.QueueProcessor satisfies it.
type Runner interface {
	ProcessQueue(ctx context.Context) (worker.RunStats, error)
	Running() bool
}

// Server handles the queue API.
type Server struct {
	store  queue.Store
	runner Runner
	logger *slog.Logger

	// base outlives requests; background runs are cancelled with it.
	base     context.Context
	inflight atomic.Bool
}

// NewServer creates a server. Runs triggered over HTTP use base as their
// parent context.
func NewServer(base context.Context, store queue.Store, runner Runner, logger *slog.Logger) *Server {
	return &Server{store: store, runner: runner, logger: logger, base: base}
}

// Routes returns the chi router with all endpoints mounted.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1/queue", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleEnqueue)
		r.Get("/stats", s.handleStats)
		r.Post("/process", s.handleProcess)
		r.Get("/{id}", s.handleGet)
		r.Post("/{id}/requeue", s.handleRequeue)
		r.Delete("/{id}", s.handleRemove)
	})
	return r
}

type recordResponse struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toResponse(rec model.QueueRecord) recordResponse {
	return recordResponse{
		ID:          rec.ID,
		URL:         rec.URL,
		Title:       rec.Title,
		Company:     rec.Company,
		Description: rec.Description,
		Status:      string(rec.Status),
		LastError:   rec.LastError,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

type enqueueRequest struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	Description string `json:"description"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "running": s.runner.Running()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.internalError(w, "queue stats", err)
		return
	}
	out := map[string]int{}
	for _, st := range []model.Status{model.StatusPending, model.StatusDone, model.StatusFailed} {
		out[string(st)] = stats[st]
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	status := model.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(string(status)))
		return
	}

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	recs, err := s.store.List(r.Context(), status, limit)
	if err != nil {
		s.internalError(w, "list queue", err)
		return
	}
	out := make([]recordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if model.NormalizeURL(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	rec, err := s.store.EnqueueOrUpdate(r.Context(), model.Posting{
		URL:         req.URL,
		Title:       req.Title,
		Company:     req.Company,
		Description: req.Description,
		Source:      "api",
	})
	if err != nil {
		s.internalError(w, "enqueue", err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(rec))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.recordError(w, "get record", err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(rec))
}

func (s *Server) handleRequeue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Requeue(r.Context(), id); err != nil {
		s.recordError(w, "requeue", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.recordError(w, "remove", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleProcess starts a queue run in the background. It answers 409 while
// a run is active, whether started here or by the scheduler.
func (s *Server) handleProcess(w http.ResponseWriter, _ *http.Request) {
	if s.runner.Running() || !s.inflight.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "queue run already in progress")
		return
	}

	go func() {
		defer s.inflight.Store(false)
		stats, err := s.runner.ProcessQueue(s.base)
		if err != nil {
			s.logger.Error("queue run failed", "error", err)
			return
		}
		s.logger.Info("queue run finished", "done", stats.Done, "failed", stats.Failed, "skipped", stats.Skipped)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) recordError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, model.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	s.internalError(w, op, err)
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("request failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start).Round(time.Microsecond),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
