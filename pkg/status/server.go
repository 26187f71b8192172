// Package status exposes the daemon's HTTP surface: session creation and
// closure, the serialized page operations, the usage snapshot, the live
// session list, a health probe, and Prometheus exposition.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/entrhq/pagepool/pkg/ops"
	"github.com/entrhq/pagepool/pkg/session"
	"github.com/entrhq/pagepool/pkg/usage"
)

// Server is the daemon's HTTP server.
type Server struct {
	registry *session.Registry
	runner   *ops.Runner
	monitor  *usage.Monitor
	logger   *slog.Logger
	server   *http.Server
	started  time.Time
}

// NewServer builds the server and its routes.
func NewServer(port int, registry *session.Registry, runner *ops.Runner, monitor *usage.Monitor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		registry: registry,
		runner:   runner,
		monitor:  monitor,
		logger:   logger,
		started:  time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/sessions", s.handleSessions)
	r.Post("/sessions", s.handleCreateSession)
	r.Delete("/sessions/{id}", s.handleCloseSession)
	r.Post("/sessions/{id}/navigate", s.handleNavigate)
	r.Post("/sessions/{id}/screenshot", s.handleScreenshot)
	r.Post("/sessions/{id}/extract", s.handleExtract)
	r.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
	return s
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Stop is called. It returns nil on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusResponse is the pull-based snapshot served to external reporters.
type statusResponse struct {
	UptimeSeconds int64        `json:"uptime_seconds"`
	LiveSessions  int          `json:"live_sessions"`
	Usage         usage.Record `json:"usage"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		LiveSessions:  s.registry.Live(),
		Usage:         s.monitor.Snapshot(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.ListSessions())
}

type createSessionRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sess, err := s.registry.Create(r.Context(), req.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Metadata())
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	s.registry.CloseSession(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

type navigateRequest struct {
	URL       string `json:"url"`
	WaitUntil string `json:"wait_until,omitempty"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "url is required"})
		return
	}

	res, err := s.runner.Navigate(r.Context(), chi.URLParam(r, "id"), req.URL, ops.NavigateOptions{
		WaitUntil: req.WaitUntil,
		Timeout:   time.Duration(req.TimeoutMS) * time.Millisecond,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type screenshotRequest struct {
	FullPage bool `json:"full_page,omitempty"`
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	var req screenshotRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.runner.Screenshot(r.Context(), chi.URLParam(r, "id"), ops.ScreenshotOptions{
		FullPage: req.FullPage,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type extractRequest struct {
	Selector  string `json:"selector,omitempty"`
	MaxLength int    `json:"max_length,omitempty"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.runner.Extract(r.Context(), chi.URLParam(r, "id"), ops.ExtractOptions{
		Selector:  req.Selector,
		MaxLength: req.MaxLength,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps lifecycle errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusBadGateway
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		code = http.StatusNotFound
	case errors.Is(err, session.ErrSessionExists):
		code = http.StatusConflict
	case errors.Is(err, session.ErrSessionClosed):
		code = http.StatusConflict
	case errors.Is(err, session.ErrCapacityExceeded),
		errors.Is(err, session.ErrSessionExhausted):
		code = http.StatusTooManyRequests
	case errors.Is(err, session.ErrOperationTimeout),
		errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

// decodeBody parses an optional JSON body. An empty body leaves the request
// struct at its zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
