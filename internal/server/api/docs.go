package api

import (
	"net/http"

	"github.com/notesync/notesync/internal/revcodec"
	"github.com/notesync/notesync/internal/server/docstore"
	"github.com/notesync/notesync/internal/wire"
)

func (s *Server) handleGetDoc(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vault := vaultID(r)
	id := r.PathValue("id")

	doc, found, err := s.Docs.GetDocument(ctx, vault, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", err.Error()))
		return
	}
	if !found || doc.Deleted {
		writeJSON(w, http.StatusNotFound, errorBody("not_found", "document not found"))
		return
	}

	writeJSON(w, http.StatusOK, wire.DocResponse{ID: doc.DocID, Rev: doc.Rev, Content: doc.Content})
}

// handlePutDoc implements "PUT /api/docs/:id" — a conflict-checked single
// document put, used by the force-push path after a user picks UseLocal
// at a conflict prompt (§4.9).
func (s *Server) handlePutDoc(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vault := vaultID(r)
	id := r.PathValue("id")

	var req wire.PutDocRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("validation_error", "malformed request body"))
		return
	}

	existing, found, err := s.Docs.GetDocument(ctx, vault, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", err.Error()))
		return
	}

	if found && req.Rev != "" && req.Rev != existing.Rev {
		writeJSON(w, http.StatusConflict, wire.ConflictErrorResponse{
			Error: "conflict", Reason: "revision mismatch",
			CurrentRev: existing.Rev, ProvidedRev: req.Rev,
		})
		return
	}

	prevRev := req.Rev
	if found {
		prevRev = existing.Rev
	}

	rev, err := revcodec.Generate(prevRev)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", err.Error()))
		return
	}

	if err := s.Docs.UpsertDocument(ctx, vault, id, rev, req.Content, req.Deleted); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, wire.DocResponse{ID: id, Rev: rev, Content: req.Content, Deleted: req.Deleted})
}

// handleDeleteDoc implements "DELETE /api/docs/:id?vault_id&rev": 400 if
// no rev, 409 on mismatch.
func (s *Server) handleDeleteDoc(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vault := vaultID(r)
	id := r.PathValue("id")
	rev := r.URL.Query().Get("rev")

	if rev == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("validation_error", "rev query parameter is required"))
		return
	}

	existing, found, err := s.Docs.GetDocument(ctx, vault, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", err.Error()))
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, errorBody("not_found", "document not found"))
		return
	}
	if rev != existing.Rev {
		writeJSON(w, http.StatusConflict, wire.ConflictErrorResponse{
			Error: "conflict", Reason: "revision mismatch",
			CurrentRev: existing.Rev, ProvidedRev: rev,
		})
		return
	}

	newRev, err := revcodec.Generate(existing.Rev)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", err.Error()))
		return
	}

	if err := s.Docs.DeleteDocument(ctx, vault, id, newRev); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, wire.DocResponse{ID: id, Rev: newRev, Deleted: true})
}

// handleBulkDocs implements "POST /api/docs/bulk_docs" and
// "POST /api/_bulk_docs" (§4.6, §6): one result per input doc, never
// aborting the whole batch.
func (s *Server) handleBulkDocs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vault := vaultID(r)

	var items []wire.BulkDocRequestItem
	if err := readJSON(r, &items); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("validation_error", "malformed bulk request body"))
		return
	}

	inputs := make([]docstore.BulkDocInput, len(items))
	for i, it := range items {
		in := docstore.BulkDocInput{ID: it.ID, Rev: it.Rev, Deleted: it.Deleted}
		if it.Content != nil {
			in.Content = *it.Content
			in.ContentSet = true
		}
		if it.BaseContent != nil {
			in.BaseContent = *it.BaseContent
			in.BaseSet = true
		}
		inputs[i] = in
	}

	results := s.Docs.BulkUpsert(ctx, vault, inputs)

	out := make([]wire.BulkDocResultItem, len(results))
	for i, res := range results {
		item := wire.BulkDocResultItem{
			ID: res.ID, OK: res.OK, Rev: res.Rev, Merged: res.Merged,
			Error: res.Error, Reason: res.Reason,
			CurrentRev: res.CurrentRev, CurrentContent: res.CurrentContent,
			CurrentDeleted: res.CurrentDeleted, RequiresFullSync: res.RequiresFullSync,
		}
		for _, c := range res.Conflicts {
			item.Conflicts = append(item.Conflicts, wire.ConflictRegionWire{
				BaseLines: c.BaseLines, LocalLines: c.LocalLines,
				RemoteLines: c.RemoteLines, StartLine: c.StartLine,
			})
		}
		out[i] = item
	}

	writeJSON(w, http.StatusOK, out)
}
