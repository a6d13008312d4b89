package api

import (
	"encoding/json"
	"net/http"

	"github.com/notesync/notesync/internal/wire"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func readJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

func errorBody(kind, reason string) wire.ErrorResponse {
	return wire.ErrorResponse{Error: kind, Reason: reason}
}

func healthBody() wire.HealthResponse {
	return wire.HealthResponse{Name: "notesync-server", Version: Version, Status: "ok"}
}
