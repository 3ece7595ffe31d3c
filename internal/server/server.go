// Package server exposes topic progression, quiz sessions and teacher
// dashboards over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-progress/internal/curriculum"
	"github.com/p-n-ai/pai-progress/internal/notify"
	"github.com/p-n-ai/pai-progress/internal/progress"
	"github.com/p-n-ai/pai-progress/internal/quiz"
)

const (
	maxBodyBytes = 1 << 20
	checkTimeout = 2 * time.Second
)

// Content is the read side of the curriculum.
type Content interface {
	Catalog() *curriculum.Catalog
	QuizzesForTopic(slug string) []curriculum.Quiz
}

// HealthCheck is a named readiness check.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Config holds dependencies for the HTTP server.
type Config struct {
	Content Content
	Writer  *progress.Writer // also supplies the progression thresholds
	Store   progress.Store
	Quizzes *quiz.Manager
	Hub     *notify.Hub
	Checks  []HealthCheck
}

// Server routes HTTP requests to the progression services.
type Server struct {
	content Content
	writer  *progress.Writer
	store   progress.Store
	quizzes *quiz.Manager
	hub     *notify.Hub
	checks  []HealthCheck
}

// New creates a new server.
func New(cfg Config) *Server {
	hub := cfg.Hub
	if hub == nil {
		hub = notify.NewHub(nil)
	}
	return &Server{
		content: cfg.Content,
		writer:  cfg.Writer,
		store:   cfg.Store,
		quizzes: cfg.Quizzes,
		hub:     hub,
		checks:  cfg.Checks,
	}
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("GET /api/topics", s.withActor(s.handleTopics))
	mux.HandleFunc("GET /api/topics/{slug}/quizzes", s.withActor(s.handleTopicQuizzes))
	mux.HandleFunc("POST /api/topics/{slug}/materials", s.withActor(s.handleMaterialsViewed))

	mux.HandleFunc("POST /api/quizzes/{id}/sessions", s.withActor(s.handleStartSession))
	mux.HandleFunc("GET /api/sessions/{id}", s.withActor(s.handleGetSession))
	mux.HandleFunc("PUT /api/sessions/{id}/answers", s.withActor(s.handleAnswer))
	mux.HandleFunc("POST /api/sessions/{id}/submit", s.withActor(s.handleSubmit))

	mux.HandleFunc("GET /api/teachers/me/activity", s.withActor(s.handleActivityFeed))
	mux.HandleFunc("GET /api/teachers/me/gradebook.xlsx", s.withActor(s.handleGradebook))
	return mux
}

type actorHandler func(w http.ResponseWriter, r *http.Request, actor progress.Actor)

func (s *Server) withActor(next actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			writeErrorFields(w, http.StatusUnauthorized, "missing or invalid identity", fieldErrors(err))
			return
		}
		next(w, r, actor)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	failed := map[string]string{}
	for _, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			slog.Warn("readiness check failed", "check", c.Name, "error", err)
			failed[c.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response failed", "error", err)
	}
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeErrorFields(w http.ResponseWriter, status int, msg string, fields map[string]string) {
	writeJSON(w, status, errorBody{Error: msg, Fields: fields})
}

// writeDomainError maps service errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, quiz.ErrNotFound), errors.Is(err, quiz.ErrQuizNotFound), errors.Is(err, progress.ErrUnknownTopic):
		status = http.StatusNotFound
	case errors.Is(err, quiz.ErrLocked):
		status = http.StatusLocked
	case errors.Is(err, quiz.ErrNoQuestions):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, quiz.ErrIncomplete), errors.Is(err, quiz.ErrUnknownQuestion):
		status = http.StatusBadRequest
	case errors.Is(err, quiz.ErrAlreadySubmitted), errors.Is(err, quiz.ErrTimeUp), errors.Is(err, quiz.ErrNotStarted):
		status = http.StatusConflict
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeErrorFields(w, http.StatusBadRequest, "invalid request", fieldErrors(err))
		return false
	}
	return true
}
