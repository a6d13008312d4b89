package api

import (
	"net/http"
	"strconv"

	"github.com/notesync/notesync/internal/wire"
)

// handleStatus implements "GET /api/status?vault_id" — the cheap cursor-
// tip check the orchestrator (C11) polls before deciding whether a sync
// has any work to do.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vault := vaultID(r)

	lastSeq, err := s.Docs.GetLatestSeq(ctx, vault)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", err.Error()))
		return
	}

	lastAttachmentSeq, err := s.Attachments.GetLatestSeq(ctx, vault)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, wire.StatusResponse{
		OK:                true,
		VaultID:           vault,
		LastSeq:           lastSeq,
		LastAttachmentSeq: lastAttachmentSeq,
	})
}

// parseSinceLimit validates the "since"/"limit" query parameters per §6:
// "since >= 0, 1 <= limit <= 1000".
func parseSinceLimit(r *http.Request, defaultLimit int) (since int64, limit int, err error) {
	since = 0
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || since < 0 {
			return 0, 0, errInvalidSince
		}
	}

	limit = defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		var n int
		n, err = strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			return 0, 0, errInvalidLimit
		}
		limit = n
	}

	return since, limit, nil
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vault := vaultID(r)

	since, limit, err := parseSinceLimit(r, defaultChangesLimit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("validation_error", err.Error()))
		return
	}

	changes, lastSeq, err := s.Docs.GetChanges(ctx, vault, since, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", err.Error()))
		return
	}

	results := make([]wire.ChangeEntry, 0, len(changes))
	for _, c := range changes {
		results = append(results, wire.ChangeEntry{
			Seq:     c.Seq,
			ID:      c.DocID,
			Changes: []wire.ChangeEntryRevItem{{Rev: c.Rev}},
			Deleted: c.Deleted,
		})
	}

	writeJSON(w, http.StatusOK, wire.ChangesResponse{Results: results, LastSeq: lastSeq})
}

func (s *Server) handleAttachmentChanges(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vault := vaultID(r)

	since, limit, err := parseSinceLimit(r, defaultChangesLimit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("validation_error", err.Error()))
		return
	}

	changes, lastSeq, err := s.Attachments.GetChanges(ctx, vault, since, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", err.Error()))
		return
	}

	results := make([]wire.AttachmentChangeEntry, 0, len(changes))
	for _, c := range changes {
		results = append(results, wire.AttachmentChangeEntry{
			Seq: c.Seq, ID: c.ID, Path: c.Path, Hash: c.Hash, Deleted: c.Deleted,
		})
	}

	writeJSON(w, http.StatusOK, wire.AttachmentChangesResponse{Results: results, LastSeq: lastSeq})
}

const defaultChangesLimit = 100

var (
	errInvalidSince = errValidation("since must be a non-negative integer")
	errInvalidLimit = errValidation("limit must be between 1 and 1000")
)

type validationError string

func (e validationError) Error() string { return string(e) }

func errValidation(msg string) error { return validationError(msg) }
