// Package wire holds the JSON DTOs exchanged over the HTTP API surface
// (§6), shared between internal/server/api (which encodes/decodes them)
// and internal/client/docsync, internal/client/attachsync (which decode/
// encode the same shapes). Keeping the wire format in one place means a
// schema change only needs one struct tag edit on each side.
package wire

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	OK                bool   `json:"ok"`
	VaultID           string `json:"vault_id"`
	LastSeq           int64  `json:"last_seq"`
	LastAttachmentSeq int64  `json:"last_attachment_seq"`
}

// ChangeEntry is one element of a document change-feed page.
type ChangeEntry struct {
	Seq     int64                `json:"seq"`
	ID      string               `json:"id"`
	Changes []ChangeEntryRevItem `json:"changes"`
	Deleted bool                 `json:"deleted,omitempty"`
}

// ChangeEntryRevItem mirrors CouchDB's {"rev": "..."} change-list shape.
type ChangeEntryRevItem struct {
	Rev string `json:"rev"`
}

// ChangesResponse is the body of GET /api/changes.
type ChangesResponse struct {
	Results []ChangeEntry `json:"results"`
	LastSeq int64         `json:"last_seq"`
}

// DocResponse is the body of GET /api/docs/:id and an element of a push's
// implicit document body.
type DocResponse struct {
	ID      string `json:"_id"`
	Rev     string `json:"_rev"`
	Content string `json:"content"`
	Deleted bool   `json:"_deleted,omitempty"`
}

// PutDocRequest is the body of PUT /api/docs/:id.
type PutDocRequest struct {
	Rev     string `json:"_rev,omitempty"`
	Content string `json:"content"`
	Deleted bool   `json:"_deleted,omitempty"`
}

// ConflictErrorResponse is the 409 body for PUT /api/docs/:id and DELETE.
type ConflictErrorResponse struct {
	Error       string `json:"error"`
	Reason      string `json:"reason"`
	CurrentRev  string `json:"current_rev"`
	ProvidedRev string `json:"provided_rev"`
}

// BulkDocRequestItem is one element of the POST bulk_docs request array.
type BulkDocRequestItem struct {
	ID          string `json:"_id"`
	Rev         string `json:"_rev,omitempty"`
	Content     *string `json:"content,omitempty"`
	Deleted     bool   `json:"_deleted,omitempty"`
	BaseContent *string `json:"_base_content,omitempty"`
}

// ConflictRegionWire mirrors merge.ConflictRegion for the wire format.
type ConflictRegionWire struct {
	BaseLines   []string `json:"base_lines"`
	LocalLines  []string `json:"local_lines"`
	RemoteLines []string `json:"remote_lines"`
	StartLine   int      `json:"start_line"`
}

// BulkDocResultItem is one element of the bulk_docs response array,
// covering all four reply shapes from §4.6.
type BulkDocResultItem struct {
	ID               string               `json:"id"`
	OK               bool                 `json:"ok,omitempty"`
	Rev              string               `json:"rev,omitempty"`
	Merged           bool                 `json:"merged,omitempty"`
	Error            string               `json:"error,omitempty"`
	Reason           string               `json:"reason,omitempty"`
	CurrentRev       string               `json:"current_rev,omitempty"`
	CurrentContent   string               `json:"current_content,omitempty"`
	CurrentDeleted   bool                 `json:"current_deleted,omitempty"`
	Conflicts        []ConflictRegionWire `json:"conflicts,omitempty"`
	RequiresFullSync bool                 `json:"requires_full_sync,omitempty"`
}

// AttachmentChangeEntry is one element of the attachment change feed.
type AttachmentChangeEntry struct {
	Seq     int64  `json:"seq"`
	ID      string `json:"id"`
	Path    string `json:"path"`
	Hash    string `json:"hash"`
	Deleted bool   `json:"deleted,omitempty"`
}

// AttachmentChangesResponse is the body of GET /api/attachments/changes.
type AttachmentChangesResponse struct {
	Results []AttachmentChangeEntry `json:"results"`
	LastSeq int64                   `json:"last_seq"`
}

// AttachmentMetaResponse is the body of GET /api/attachments/:id.
type AttachmentMetaResponse struct {
	ID          string `json:"id"`
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Hash        string `json:"hash"`
	Deleted     bool   `json:"deleted"`
}

// AttachmentPutResponse is the body of PUT /api/attachments/:path.
type AttachmentPutResponse struct {
	OK          bool   `json:"ok"`
	ID          string `json:"id"`
	Hash        string `json:"hash"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Unchanged   bool   `json:"unchanged,omitempty"`
	URL         string `json:"url"`
}

// HealthResponse is the body of GET /.
type HealthResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

// ErrorResponse is a generic {"error": "...", "reason": "..."} body used
// for validation failures (§7 "Validation (kind: caller)").
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// AdminStatsResponse is the body of GET /api/admin/stats.
type AdminStatsResponse struct {
	Vaults map[string]VaultStats `json:"vaults"`
}

// VaultStats summarizes one vault's document/attachment tips for the
// admin stats endpoint.
type VaultStats struct {
	LastSeq           int64 `json:"last_seq"`
	LastAttachmentSeq int64 `json:"last_attachment_seq"`
}

// AdminCleanupResponse is the body of POST /api/admin/cleanup.
type AdminCleanupResponse struct {
	RevisionsRemoved int64 `json:"revisions_removed"`
	ChangesRemoved   int64 `json:"changes_removed"`
}
