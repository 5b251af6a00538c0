// Package http exposes the worker's read-only status API: health, scheduled
// jobs, and habit/group progress computed by the query handlers.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/streakhub/internal/application/query"
	"github.com/alem-hub/streakhub/internal/domain/saver"
	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/internal/interface/http/handlers"
	"github.com/alem-hub/streakhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Addr - address to listen on, e.g. ":8080".
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// HabitProgressReader is satisfied by query.GetHabitProgressHandler.
type HabitProgressReader interface {
	Handle(ctx context.Context, q query.GetHabitProgressQuery) (*query.HabitProgressDTO, error)
}

// HabitLister is satisfied by query.ListHabitsHandler.
type HabitLister interface {
	Handle(ctx context.Context, ownerID string) ([]query.HabitSummaryDTO, error)
}

// EligibilityReader is satisfied by query.GetSaveEligibilityHandler.
type EligibilityReader interface {
	Handle(ctx context.Context, q query.GetSaveEligibilityQuery) (query.EligibilityDTO, error)
}

// GroupProgressReader is satisfied by query.GetGroupProgressHandler.
type GroupProgressReader interface {
	Handle(ctx context.Context, groupHabitID string) (*query.GroupProgressDTO, error)
}

// ReadinessChecker is satisfied by handlers.Readiness.
type ReadinessChecker interface {
	Check(ctx context.Context) handlers.Report
}

// Dependencies contains the handlers the server routes to. Nil entries
// leave their routes unregistered.
type Dependencies struct {
	Logger        *slog.Logger
	Readiness     ReadinessChecker
	HabitProgress HabitProgressReader
	Habits        HabitLister
	Eligibility   EligibilityReader
	GroupProgress GroupProgressReader
	Jobs          handlers.JobLister
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server is the status HTTP server.
type Server struct {
	config Config
	deps   Dependencies
	logger *slog.Logger
	mux    *http.ServeMux
	server *http.Server

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server.
func NewServer(config Config, deps Dependencies) *Server {
	if config.Addr == "" {
		config.Addr = DefaultConfig().Addr
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		config: config,
		deps:   deps,
		logger: deps.Logger.With("component", "http"),
		mux:    http.NewServeMux(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleLiveness)
	if s.deps.Readiness != nil {
		s.mux.HandleFunc("GET /readyz", s.handleReadiness)
	}
	if s.deps.Jobs != nil {
		s.mux.HandleFunc("GET /v1/jobs", s.handleJobs)
	}
	if s.deps.Habits != nil {
		s.mux.HandleFunc("GET /v1/owners/{owner}/habits", s.handleListHabits)
	}
	if s.deps.HabitProgress != nil {
		s.mux.HandleFunc("GET /v1/habits/{id}/progress", s.handleHabitProgress)
	}
	if s.deps.Eligibility != nil {
		s.mux.HandleFunc("GET /v1/habits/{id}/saver", s.handleEligibility)
	}
	if s.deps.GroupProgress != nil {
		s.mux.HandleFunc("GET /v1/group-habits/{id}/progress", s.handleGroupProgress)
	}
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.loggingMiddleware(h)
	h = s.recoveryMiddleware(h)
	h = s.requestIDMiddleware(h)
	return h
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("http server listening", "addr", s.config.Addr)
	err := s.server.ListenAndServe()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// StartAsync starts the server in a goroutine; the channel receives its exit error.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	report := s.deps.Readiness.Check(r.Context())
	code := http.StatusOK
	if !report.Ready {
		code = http.StatusServiceUnavailable
		s.logger.Warn("readiness check failed", "summary", report.Summary())
	}
	writeJSON(w, r, code, report)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	type jobDTO struct {
		Name        string    `json:"name"`
		Description string    `json:"description"`
		Schedule    string    `json:"schedule"`
		Enabled     bool      `json:"enabled"`
		LastRun     time.Time `json:"last_run,omitzero"`
		NextRun     time.Time `json:"next_run,omitzero"`
		RunCount    int64     `json:"run_count"`
		FailCount   int64     `json:"fail_count"`
		LastError   string    `json:"last_error,omitempty"`
	}

	infos := s.deps.Jobs.ListJobs()
	out := make([]jobDTO, 0, len(infos))
	for _, info := range infos {
		dto := jobDTO{
			Name:        info.Name,
			Description: info.Description,
			Schedule:    info.Schedule,
			Enabled:     info.Enabled,
			LastRun:     info.LastRun,
			NextRun:     info.NextRun,
			RunCount:    info.RunCount,
			FailCount:   info.FailCount,
		}
		if info.LastResult != nil && info.LastResult.Error != nil {
			dto.LastError = info.LastResult.Error.Error()
		}
		out = append(out, dto)
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleListHabits(w http.ResponseWriter, r *http.Request) {
	habits, err := s.deps.Habits.Handle(r.Context(), r.PathValue("owner"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, habits)
}

func (s *Server) handleHabitProgress(w http.ResponseWriter, r *http.Request) {
	q := query.GetHabitProgressQuery{HabitID: r.PathValue("id")}
	if raw := r.URL.Query().Get("date"); raw != "" {
		date, err := timeutil.ParseDate(raw)
		if err != nil {
			writeJSONError(w, r, http.StatusBadRequest, "invalid_date", fmt.Sprintf("date %q is not YYYY-MM-DD", raw))
			return
		}
		q.Date = date
	}

	progress, err := s.deps.HabitProgress.Handle(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, progress)
}

func (s *Server) handleEligibility(w http.ResponseWriter, r *http.Request) {
	q := query.GetSaveEligibilityQuery{
		HabitID: r.PathValue("id"),
		OwnerID: r.URL.Query().Get("owner"),
		Scope:   saver.ScopePersonal,
	}
	if scope := saver.Scope(r.URL.Query().Get("scope")); scope != "" {
		if !scope.IsValid() {
			writeJSONError(w, r, http.StatusBadRequest, "invalid_scope", "scope must be personal or team")
			return
		}
		q.Scope = scope
	}

	dto, err := s.deps.Eligibility.Handle(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

func (s *Server) handleGroupProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.deps.GroupProgress.Handle(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, progress)
}

// writeError maps domain error kinds onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsNotFound(err):
		writeJSONError(w, r, http.StatusNotFound, "not_found", err.Error())
	case shared.IsValidation(err):
		writeJSONError(w, r, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"request_id", getRequestID(r.Context()),
			"error", err,
		)
		writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// requestIDMiddleware adds a unique request ID to each request.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs all HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", getRequestID(r.Context()),
		)
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
					"path", r.URL.Path,
					"request_id", getRequestID(r.Context()),
				)
				writeJSONError(w, r, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		RequestID: getRequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		RequestID: getRequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// getRequestID extracts the request ID from context.
func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}
