// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the generation engine over HTTP. JSON by default;
// pass ?stream=1 on generation endpoints to receive model reasoning as
// server-sent events while the loop runs.
// Implements: prd005-api (R1-R4); docs/ARCHITECTURE § API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pdiddy/cad-engine/internal/engine"
	"github.com/pdiddy/cad-engine/internal/script"
	"github.com/pdiddy/cad-engine/internal/session"
	"github.com/pdiddy/cad-engine/pkg/types"
)

// Generator runs the generation loop. *engine.Engine satisfies it; tests
// supply a mock. Per Strategy pattern (prd005-api R1.2).
type Generator interface {
	Generate(ctx context.Context, sess *types.Session, request string, onThought engine.ThoughtFunc) (*types.Mesh, error)
	Iterate(ctx context.Context, sess *types.Session, request string, onThought engine.ThoughtFunc) (*types.Mesh, error)
}

// Directory is the subset of the session store the API needs.
type Directory interface {
	Create(ctx context.Context, request string) (*types.Session, error)
	Get(ctx context.Context, id string) (*types.Session, error)
	Latest(ctx context.Context) (*types.Session, error)
	List(ctx context.Context) ([]types.Session, error)
	Attempts(ctx context.Context, sessionID string) ([]types.Attempt, error)
}

// Server wires the engine and session registry into an HTTP handler.
type Server struct {
	gen     Generator
	dir     Directory
	metrics *Metrics
	logger  *zap.Logger
}

// New builds a Server. A nil metrics collector disables recording.
func New(gen Generator, dir Directory, metrics *Metrics, logger *zap.Logger) *Server {
	if metrics == nil {
		metrics = NewMetrics("cad_engine")
	}
	return &Server{gen: gen, dir: dir, metrics: metrics, logger: logger}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Post("/api/generate", s.handleGenerate)
	r.Post("/api/iterate", s.handleIterate)
	r.Get("/api/sessions", s.handleListSessions)
	r.Get("/api/sessions/{id}", s.handleGetSession)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	return r
}

type generateRequest struct {
	Request   string `json:"request"`
	SessionID string `json:"session_id,omitempty"`
}

type generateResponse struct {
	SessionID string           `json:"session_id"`
	Format    types.MeshFormat `json:"format"`
	Data      string           `json:"data"`
}

type sessionResponse struct {
	Session  *types.Session  `json:"session"`
	Attempts []types.Attempt `json:"attempts"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	s.runGeneration(w, r, "generate", s.gen.Generate)
}

func (s *Server) handleIterate(w http.ResponseWriter, r *http.Request) {
	s.runGeneration(w, r, "iterate", s.gen.Iterate)
}

type generateFunc func(ctx context.Context, sess *types.Session, request string, onThought engine.ThoughtFunc) (*types.Mesh, error)

func (s *Server) runGeneration(w http.ResponseWriter, r *http.Request, op string, run generateFunc) {
	var body generateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if body.Request == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("request text is required"))
		return
	}

	sess, err := s.resolveSession(r.Context(), op, body)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	if r.URL.Query().Get("stream") == "1" {
		s.streamGeneration(w, r, op, sess, body.Request, run)
		return
	}

	start := time.Now()
	mesh, err := run(r.Context(), sess, body.Request, nil)
	s.metrics.RecordGeneration(op, outcome(err), time.Since(start))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, generateResponse{
		SessionID: sess.ID,
		Format:    mesh.Format,
		Data:      mesh.Data,
	})
}

// resolveSession picks the session a generation call operates on: an
// explicit ID wins; generate otherwise opens a fresh session; iterate
// otherwise continues the most recent one.
func (s *Server) resolveSession(ctx context.Context, op string, body generateRequest) (*types.Session, error) {
	if body.SessionID != "" {
		return s.dir.Get(ctx, body.SessionID)
	}
	if op == "iterate" {
		sess, err := s.dir.Latest(ctx)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			return sess, nil
		}
		// Empty registry: fall through and open a fresh session; the
		// engine handles the cold start.
	}
	return s.dir.Create(ctx, body.Request)
}

// streamGeneration runs the loop while relaying model reasoning as SSE
// "thought" events, then terminates the stream with one "result" or
// "error" event. Per prd005-api R2.3.
func (s *Server) streamGeneration(w http.ResponseWriter, r *http.Request, op string, sess *types.Session, request string, run generateFunc) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, errors.New("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// The engine invokes onThought synchronously from this handler's
	// goroutine, so writing to w here is safe.
	onThought := func(text string) {
		writeEvent(w, "thought", text)
		flusher.Flush()
	}

	start := time.Now()
	mesh, err := run(r.Context(), sess, request, onThought)
	s.metrics.RecordGeneration(op, outcome(err), time.Since(start))
	if err != nil {
		writeEvent(w, "error", err.Error())
		flusher.Flush()
		return
	}

	payload, err := json.Marshal(generateResponse{
		SessionID: sess.ID,
		Format:    mesh.Format,
		Data:      mesh.Data,
	})
	if err != nil {
		writeEvent(w, "error", err.Error())
		flusher.Flush()
		return
	}
	writeEvent(w, "result", string(payload))
	flusher.Flush()
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.dir.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if sessions == nil {
		sessions = []types.Session{}
	}
	s.writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.dir.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	attempts, err := s.dir.Attempts(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if attempts == nil {
		attempts = []types.Attempt{}
	}
	s.writeJSON(w, http.StatusOK, sessionResponse{Session: sess, Attempts: attempts})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Warn("request failed", zap.Int("status", status), zap.Error(err))
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeEvent emits one SSE frame. Multi-line payloads (thought text,
// tracebacks) become one data: line per segment; clients reassemble them
// with the newlines restored.
func writeEvent(w http.ResponseWriter, event, data string) {
	fmt.Fprintf(w, "event: %s\n", event)
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}

// statusFor maps generation errors to HTTP statuses: unknown sessions are
// the caller's mistake, everything the loop gives up on is an upstream
// failure.
func statusFor(err error) int {
	var exhausted *engine.ExhaustedError
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrEmptyResponse),
		errors.Is(err, script.ErrNoCode),
		errors.As(err, &exhausted):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func outcome(err error) string {
	if err != nil {
		return "failed"
	}
	return "succeeded"
}
