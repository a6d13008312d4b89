package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/notesync/notesync/internal/server/attachstore"
	"github.com/notesync/notesync/internal/wire"
)

func (s *Server) handleGetAttachmentMeta(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vault := vaultID(r)
	id := r.PathValue("id")

	a, found, err := s.Attachments.GetMetadata(ctx, vault, id)
	if !writeAttachstoreErr(w, err) {
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, errorBody("not_found", "attachment not found"))
		return
	}

	writeJSON(w, http.StatusOK, wire.AttachmentMetaResponse{
		ID: a.ID, Path: a.Path, ContentType: a.ContentType, Size: a.Size, Hash: a.Hash, Deleted: a.Deleted,
	})
}

// handleGetAttachmentContent implements "GET /api/attachments/:id/content"
// — public per §6 (direct browser linkage) so wiki-link rewrites in
// synced markdown resolve without an auth header.
func (s *Server) handleGetAttachmentContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vault := vaultID(r)
	id := r.PathValue("id")

	rc, a, err := s.Attachments.GetContent(ctx, vault, id)
	if err != nil {
		if errors.Is(err, attachstore.ErrWrongVault) {
			writeJSON(w, http.StatusForbidden, errorBody("forbidden", err.Error()))
			return
		}
		writeJSON(w, http.StatusNotFound, errorBody("not_found", "attachment not found"))
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("X-Attachment-Hash", a.Hash)
	w.Header().Set("Content-Length", strconv.FormatInt(a.Size, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

// handlePutAttachment implements "PUT /api/attachments/:path" (§4.7, §6).
func (s *Server) handlePutAttachment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vault := vaultID(r)
	p := r.PathValue("path")

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("validation_error", "reading request body"))
		return
	}
	defer r.Body.Close()

	contentType := r.Header.Get("Content-Type")
	declaredHash := r.Header.Get("X-Content-Hash")

	var declaredLength int64
	if raw := r.Header.Get("X-Content-Length"); raw != "" {
		declaredLength, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("validation_error", "X-Content-Length is not a valid integer"))
			return
		}
	}

	result, err := s.Attachments.Put(ctx, vault, p, contentType, data, declaredHash, declaredLength)
	if err != nil {
		writeAttachmentPutErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, wire.AttachmentPutResponse{
		OK: true, ID: result.ID, Hash: result.Hash, Size: result.Size,
		ContentType: result.ContentType, Unchanged: result.Unchanged,
		URL: attachmentURL(vault, result.ID),
	})
}

func (s *Server) handleDeleteAttachment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vault := vaultID(r)
	id := r.PathValue("id")

	err := s.Attachments.Delete(ctx, vault, id)
	if !writeAttachstoreErr(w, err) {
		return
	}

	writeJSON(w, http.StatusOK, wire.AttachmentMetaResponse{ID: id, Deleted: true})
}

// attachmentURL builds the canonical content URL embedded into rewritten
// wiki-links (§4.10): a relative API path, which the client's transport
// resolves against its configured server base URL.
func attachmentURL(vault, id string) string {
	return fmt.Sprintf("/api/attachments/%s/content?vault_id=%s", id, vault)
}

// writeAttachstoreErr writes an appropriate error response for a generic
// attachstore lookup error and reports whether the caller should continue
// handling a nil error.
func writeAttachstoreErr(w http.ResponseWriter, err error) bool {
	if err == nil {
		return true
	}

	if errors.Is(err, attachstore.ErrWrongVault) {
		writeJSON(w, http.StatusForbidden, errorBody("forbidden", err.Error()))
		return false
	}

	writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", err.Error()))
	return false
}

// writeAttachmentPutErr maps §4.7's validation sentinels to their
// specified HTTP status codes.
func writeAttachmentPutErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, attachstore.ErrHashMismatch):
		writeJSON(w, http.StatusConflict, errorBody("hash_mismatch", err.Error()))
	case errors.Is(err, attachstore.ErrLengthMismatch):
		writeJSON(w, http.StatusBadRequest, errorBody("length_mismatch", err.Error()))
	case errors.Is(err, attachstore.ErrTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("too_large", err.Error()))
	case errors.Is(err, attachstore.ErrInvalidPath):
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_path", err.Error()))
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", err.Error()))
	}
}
