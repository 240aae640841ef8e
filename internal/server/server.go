// Package server exposes the compilation pipeline over HTTP: submit sources,
// get contracts and diagnostics back, query past runs, and render import
// graphs.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/soldep/soldep/pkg/compiler"
	"github.com/soldep/soldep/pkg/errors"
	"github.com/soldep/soldep/pkg/pipeline"
	"github.com/soldep/soldep/pkg/render/importgraph"
	"github.com/soldep/soldep/pkg/solsrc"
	"github.com/soldep/soldep/pkg/store"
)

// Server handles HTTP requests against a shared pipeline runner.
type Server struct {
	runner *pipeline.Runner
	store  store.Store
	logger *log.Logger
	limits solsrc.Limits
}

// New builds the server. The store may be nil, disabling the history
// endpoints with 404s.
func New(runner *pipeline.Runner, st store.Store, limits solsrc.Limits, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{runner: runner, store: st, logger: logger, limits: limits}
}

// Router assembles the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestID)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/compile", s.handleCompile)
		r.Post("/resolve", s.handleResolve)
		r.Post("/graph", s.handleGraph)
		r.Get("/compilations", s.handleList)
		r.Get("/compilations/{id}", s.handleGet)
	})
	return r
}

type requestIDKey struct{}

// requestID attaches a UUID to every request for log correlation.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", r.Context().Value(requestIDKey{}))
	})
}

// compileRequest is the body for /v1/compile and /v1/resolve.
type compileRequest struct {
	Sources   map[string]string `json:"sources"`
	EntryFile string            `json:"entry_file,omitempty"`
	Settings  compiler.Settings `json:"settings,omitempty"`
}

type compileResponse struct {
	ID          string                       `json:"id"`
	Contracts   map[string]compiler.Contract `json:"contracts,omitempty"`
	Diagnostics []compiler.Diagnostic        `json:"diagnostics,omitempty"`
	Unresolved  []string                     `json:"unresolved_imports,omitempty"`
	Stats       any                          `json:"stats"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, false)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, true)
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request, resolveOnly bool) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	result, err := s.runner.Execute(r.Context(), solsrc.Sources(req.Sources), pipeline.Options{
		EntryFile:   req.EntryFile,
		Limits:      s.limits,
		Settings:    req.Settings,
		ResolveOnly: resolveOnly,
	})
	if err != nil && result == nil {
		s.writeError(w, err, nil)
		return
	}

	resp := compileResponse{
		ID:         result.ID,
		Unresolved: result.Resolution.Unresolved,
		Stats:      result.Resolution.Stats,
	}
	if result.Output != nil {
		resp.Contracts = result.Output.Contracts
		resp.Diagnostics = result.Output.Diagnostics
	}
	if err != nil {
		s.writeError(w, err, &resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	sources := solsrc.Sources(req.Sources)
	result, err := s.runner.Execute(r.Context(), sources, pipeline.Options{
		Limits:      s.limits,
		ResolveOnly: true,
	})
	if err != nil {
		s.writeError(w, err, nil)
		return
	}

	dot := importgraph.ToDOT(result.Resolution, sources.Keys(), importgraph.Options{})
	if r.URL.Query().Get("format") == "dot" {
		w.Header().Set("Content-Type", "text/vnd.graphviz")
		w.Write([]byte(dot))
		return
	}

	svg, err := importgraph.RenderSVG(r.Context(), dot)
	if err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInternal, err, "rendering import graph"), nil)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Write(svg)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, errors.New(errors.ErrCodeNotFound, "compilation history is not enabled"), nil)
		return
	}
	rec, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, errors.New(errors.ErrCodeNotFound, "compilation history is not enabled"), nil)
		return
	}
	recs, err := s.store.List(r.Context(), 50)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"compilations": recs})
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (compileRequest, bool) {
	var req compileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "malformed request body"), nil)
		return req, false
	}
	return req, true
}

// errorBody is the JSON shape of every error response. Partial results keep
// their unresolved imports and compiler diagnostics so callers can see what
// went wrong.
type errorBody struct {
	Error       string                `json:"error"`
	Code        string                `json:"code"`
	Unresolved  []string              `json:"unresolved_imports,omitempty"`
	Diagnostics []compiler.Diagnostic `json:"diagnostics,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error, partial *compileResponse) {
	body := errorBody{
		Error: errors.UserMessage(err),
		Code:  string(errors.GetCode(err)),
	}
	if partial != nil {
		body.Unresolved = partial.Unresolved
		body.Diagnostics = partial.Diagnostics
	}
	writeJSON(w, statusFor(err), body)
}

func statusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidInput, errors.ErrCodeInputTooLarge, errors.ErrCodeInvalidPath:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeCompilerFailure, errors.ErrCodeIterationLimit:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeDeadline, errors.ErrCodeFetchTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
