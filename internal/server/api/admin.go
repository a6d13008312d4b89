package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/notesync/notesync/internal/wire"
)

// handleAdminStats implements "GET /api/admin/stats". The distilled spec
// names the endpoint without detailing its shape; this reports the
// cursor tips docstore/attachstore already track, scoped per vault, since
// that is the one piece of operational state an operator would want at a
// glance without scanning the raw tables.
func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	vaults, err := s.Docs.Vaults(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", err.Error()))
		return
	}

	out := wire.AdminStatsResponse{Vaults: make(map[string]wire.VaultStats, len(vaults))}

	for _, v := range vaults {
		lastSeq, err := s.Docs.GetLatestSeq(ctx, v)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", err.Error()))
			return
		}

		lastAttachmentSeq, err := s.Attachments.GetLatestSeq(ctx, v)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", err.Error()))
			return
		}

		out.Vaults[v] = wire.VaultStats{LastSeq: lastSeq, LastAttachmentSeq: lastAttachmentSeq}
	}

	writeJSON(w, http.StatusOK, out)
}

// handleAdminCleanup implements "POST /api/admin/cleanup?max_age_days",
// validated to [1,365] per §6, pruning Revision/Change rows through
// docstore.Cleanup (never the latest per document).
func (s *Server) handleAdminCleanup(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("max_age_days")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("validation_error", "max_age_days is required"))
		return
	}

	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 || days > 365 {
		writeJSON(w, http.StatusBadRequest, errorBody("validation_error", "max_age_days must be between 1 and 365"))
		return
	}

	revisionsRemoved, changesRemoved, err := s.Docs.Cleanup(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, wire.AdminCleanupResponse{RevisionsRemoved: revisionsRemoved, ChangesRemoved: changesRemoved})
}
