package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// auth wraps h, requiring "Authorization: Bearer <APIKey>" (§6). Failure
// is a 401 — classified by §7 as "Authentication (kind: fatal-config)".
func (s *Server) auth(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "

		got := r.Header.Get("Authorization")
		if !strings.HasPrefix(got, prefix) || strings.TrimPrefix(got, prefix) != s.APIKey {
			writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized", "missing or invalid bearer token"))
			return
		}

		h(w, r)
	}
}

// withRequestID stamps every request with a unique ID, echoed in
// "X-Request-Id" and threaded into withLogging's log line, so a client's
// bug report (or a server operator's log grep) can pin one HTTP call
// across retries.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(withRequestIDContext(r.Context(), id)))
	})
}

// withLogging logs method, path, status, and duration per request,
// mirroring the teacher's per-attempt logging in graph/client.go.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		s.Logger.Info("api: request",
			slog.String("request_id", requestIDFromContext(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

type requestIDKeyType struct{}

var requestIDKey = requestIDKeyType{}

func withRequestIDContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func requestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// withCORS exposes the headers §6 names: "Content-Type, X-Content-Hash,
// X-Content-Length, X-Attachment-Hash".
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Content-Hash, X-Content-Length")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Type, X-Content-Hash, X-Content-Length, X-Attachment-Hash")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// vaultID extracts the "vault_id" query parameter, defaulting to
// "default" per §6.
func vaultID(r *http.Request) string {
	v := r.URL.Query().Get("vault_id")
	if v == "" {
		return "default"
	}

	return v
}

