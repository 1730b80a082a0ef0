package server

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// requestID returns the request ID stamped by the middleware, if any.
func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// recoverMiddleware converts panics at the dispatch boundary into generic
// 500 responses; full detail stays in the server log.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic in handler",
					"method", r.Method, "path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware stamps each request with a UUID for log correlation.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// rateLimitMiddleware rejects callers exceeding the request budget.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(remoteHost(r.RemoteAddr)) {
			s.logger.Warn("rate limited", "remote", r.RemoteAddr, "path", r.URL.Path)
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware enforces bearer token authentication when a token is
// configured. The health route stays open for supervisor probes.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.URL.Path != "/health" {
			if r.Header.Get("Authorization") != "Bearer "+s.token {
				s.logger.Warn("invalid token", "remote", r.RemoteAddr, "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, "invalid or missing authorization token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// remoteHost strips the port from an address like 127.0.0.1:54321.
func remoteHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// isLoopback reports whether the remote address is 127.0.0.1, ::1, or
// localhost.
func isLoopback(remoteAddr string) bool {
	host := remoteHost(remoteAddr)
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
