// Package server exposes the operation registry over HTTP and enforces the
// request-level security gates: bearer authentication and per-route
// protection. No operation-specific logic lives here.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/victoralfred/kioskd/executor"
	"github.com/victoralfred/kioskd/observability"
	"github.com/victoralfred/kioskd/registry"
	"github.com/victoralfred/kioskd/resilience"
)

const shutdownTimeout = 5 * time.Second

// Options configures the server.
type Options struct {
	// BearerToken, when non-empty, is required on every request except
	// the health route.
	BearerToken string

	// AllowUserCommands enables protected operations.
	AllowUserCommands bool

	// Limiter bounds the inbound request rate. Nil means unlimited.
	Limiter resilience.RequestLimiter

	// Logger is the structured logger. Nil means slog.Default.
	Logger *slog.Logger

	// Telemetry records request counters. Nil disables.
	Telemetry observability.Telemetry
}

// Server dispatches HTTP requests into the registry.
type Server struct {
	registry  *registry.Registry
	token     string
	allowUser bool
	limiter   resilience.RequestLimiter
	logger    *slog.Logger
	telemetry observability.Telemetry
	handler   http.Handler
}

// New builds a server over a frozen registry. One route per operation at
// /<name>; read-only operations answer GET, the rest POST with a JSON body.
func New(reg *registry.Registry, opts Options) *Server {
	s := &Server{
		registry:  reg,
		token:     opts.BearerToken,
		allowUser: opts.AllowUserCommands,
		limiter:   opts.Limiter,
		logger:    opts.Logger,
		telemetry: opts.Telemetry,
	}
	if s.limiter == nil {
		s.limiter = resilience.Unlimited()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.telemetry == nil {
		s.telemetry = observability.Noop()
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	for _, c := range reg.Contracts() {
		router.HandleFunc("/"+c.Name, s.handleOperation(c)).Methods(c.Method)
	}
	router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(s.handleNotFound)

	// The chain wraps the whole router so the auth gate also fronts the
	// 404 handler, mirroring middleware-before-routing semantics.
	s.handler = s.recoverMiddleware(s.requestIDMiddleware(s.rateLimitMiddleware(s.authMiddleware(router))))
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve runs the HTTP server until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn("route not found", "method", r.Method, "path", r.URL.Path)
	writeError(w, http.StatusNotFound, "endpoint not found: "+r.URL.Path)
}

// handleOperation builds the dispatch handler for one contract: protection
// gate, JSON body decoding, registry invocation, envelope rendering.
func (s *Server) handleOperation(c *registry.Contract) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c.Protected {
			if !s.allowUser {
				s.logger.Warn("protected operation blocked", "op", c.Name, "reason", "user commands disabled")
				writeError(w, http.StatusForbidden, "user commands are disabled")
				return
			}
			if s.token == "" && !isLoopback(r.RemoteAddr) {
				s.logger.Warn("protected operation blocked",
					"op", c.Name, "remote", r.RemoteAddr, "reason", "non-loopback without bearer token")
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
		}

		params, err := decodeParams(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		s.logger.Info("dispatch", "op", c.Name, "remote", r.RemoteAddr, "request_id", requestID(r.Context()))
		s.telemetry.RecordCounter("server.requests_total", map[string]string{"op": c.Name})

		result, err := s.registry.Invoke(r.Context(), c.Name, params)
		if err != nil {
			s.writeInvokeError(w, c, err)
			return
		}

		body := map[string]any{"success": true}
		for k, v := range result {
			body[k] = v
		}
		writeJSON(w, http.StatusOK, body)
	}
}

// writeInvokeError maps the error taxonomy onto HTTP status codes. Raw
// internals never cross the boundary: policy rules and internal errors are
// logged in full and surfaced generically.
func (s *Server) writeInvokeError(w http.ResponseWriter, c *registry.Contract, err error) {
	switch {
	case registry.IsValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, executor.ErrPolicyDenied):
		s.logger.Warn("policy denial", "op", c.Name, "error", err)
		writeError(w, http.StatusForbidden, "command not permitted by policy")
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, "endpoint not found: /"+c.Name)
	default:
		s.logger.Error("operation failed", "op", c.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeParams reads the JSON object body of mutating requests. GET requests
// carry no parameters.
func decodeParams(r *http.Request) (registry.Params, error) {
	params := registry.Params{}
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		return params, nil
	}
	if r.Body == nil || r.ContentLength == 0 {
		return params, nil
	}
	defer r.Body.Close()

	var raw any
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.New("invalid JSON")
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.New("JSON object required")
	}
	return registry.Params(obj), nil
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
