// Package api is the server's authenticated HTTP surface (C8), exposing
// the endpoints specified in spec.md §6 over docstore (C6) and attachstore
// (C7). Router: stdlib http.ServeMux with Go 1.22+ method+pattern routing
// — no router library appears anywhere in the retrieval pack (see
// DESIGN.md), so this is a documented standard-library choice. Middleware
// chain (auth check, request logging, CORS) follows the teacher's layered
// doRetry/doOnce separation: one function per concern, composed rather
// than folded into a single monolithic handler.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/notesync/notesync/internal/server/attachstore"
	"github.com/notesync/notesync/internal/server/docstore"
)

// Version is the server build version, set at build time via ldflags by
// cmd/notesync-server, mirroring the client's own version variable.
var Version = "dev"

// Server holds the dependencies shared by every handler.
type Server struct {
	Docs        *docstore.Store
	Attachments *attachstore.Store
	APIKey      string
	Logger      *slog.Logger
	nowFunc     func() time.Time
}

// New constructs a Server. apiKey is the bearer token every non-public
// route requires (§6: "require Authorization: Bearer <key>").
func New(docs *docstore.Store, attachments *attachstore.Store, apiKey string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{Docs: docs, Attachments: attachments, APIKey: apiKey, Logger: logger, nowFunc: time.Now}
}

// Handler builds the fully-wired http.Handler: routes, wrapped in the
// logging and CORS middleware, with authentication applied per-route
// (public routes bypass it).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.auth(s.handleStatus))
	mux.HandleFunc("GET /api/changes", s.auth(s.handleChanges))
	mux.HandleFunc("GET /api/docs/{id...}", s.auth(s.handleGetDoc))
	mux.HandleFunc("PUT /api/docs/{id...}", s.auth(s.handlePutDoc))
	mux.HandleFunc("DELETE /api/docs/{id...}", s.auth(s.handleDeleteDoc))
	mux.HandleFunc("POST /api/docs/bulk_docs", s.auth(s.handleBulkDocs))
	mux.HandleFunc("POST /api/_bulk_docs", s.auth(s.handleBulkDocs))
	mux.HandleFunc("GET /api/attachments/changes", s.auth(s.handleAttachmentChanges))
	mux.HandleFunc("GET /api/attachments/{id}/content", s.handleGetAttachmentContent) // public, §6
	mux.HandleFunc("GET /api/attachments/{id}", s.auth(s.handleGetAttachmentMeta))
	mux.HandleFunc("PUT /api/attachments/{path...}", s.auth(s.handlePutAttachment))
	mux.HandleFunc("DELETE /api/attachments/{id}", s.auth(s.handleDeleteAttachment))
	mux.HandleFunc("GET /api/admin/stats", s.auth(s.handleAdminStats))
	mux.HandleFunc("POST /api/admin/cleanup", s.auth(s.handleAdminCleanup))

	return s.withCORS(s.withRequestID(s.withLogging(mux)))
}

// handleHealth implements "GET /" — the only other public path besides
// attachment content.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthBody())
}
