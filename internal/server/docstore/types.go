// Package docstore is the server's authoritative document store (C6): per-
// vault documents, revisions, and a monotonic change feed, with a
// bulk-upsert handler that performs server-side three-way merge. Grounded
// on internal/sync/baseline.go turned inside-out — the server owns the
// revision graph outright instead of caching a synced-base snapshot of a
// remote authority.
package docstore

// Document is the current state of one (vaultId, docId) pair.
type Document struct {
	VaultID   string
	DocID     string
	Content   string
	Rev       string
	Deleted   bool
	CreatedAt int64 // millis
	UpdatedAt int64 // millis
}

// Revision is one append-only historical content snapshot for a document.
type Revision struct {
	VaultID   string
	DocID     string
	Rev       string
	Content   string
	Deleted   bool
	CreatedAt int64
}

// Change is one row in the global, per-vault-ordered change feed.
type Change struct {
	Seq       int64
	VaultID   string
	DocID     string
	Rev       string
	Deleted   bool
	CreatedAt int64
}

// BulkDocInput is one entry of a bulk-upsert request, matching the wire
// shape from §4.6.
type BulkDocInput struct {
	ID          string
	Rev         string // "_rev", empty if absent
	Content     string
	ContentSet  bool // true if "content" was present in the input, even as ""
	Deleted     bool
	BaseContent string // "_base_content", empty if absent
	BaseSet     bool
}

// BulkResult is one entry of a bulk-upsert response, matching §4.6's four
// reply shapes (ok, merged, conflict, internal_error).
type BulkResult struct {
	ID               string
	OK               bool
	Rev              string
	Merged           bool
	Error            string
	Reason           string
	CurrentRev       string
	CurrentContent   string
	CurrentDeleted   bool
	Conflicts        []ConflictRegionDTO
	RequiresFullSync bool
}

// ConflictRegionDTO mirrors merge.ConflictRegion for the wire format.
type ConflictRegionDTO struct {
	BaseLines   []string
	LocalLines  []string
	RemoteLines []string
	StartLine   int
}
