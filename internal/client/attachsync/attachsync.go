// Package attachsync is the client's attachment-sync driver (C10): a
// cursor-only pull of the attachment change feed and a bounded-parallel
// push of new/modified binary files, followed by wiki-link rewriting in
// synced markdown (§4.10). Structurally a sibling of docsync, grounded on
// the same internal/sync/engine.go shape, with the teacher's WorkerPool
// parallel-transfer pattern replaced by golang.org/x/sync/errgroup's
// SetLimit, the smaller-footprint idiomatic equivalent for a fixed-size
// fan-out with no dependency tracking between jobs.
package attachsync

import (
	"log/slog"
	"time"

	"github.com/notesync/notesync/internal/metacache"
	"github.com/notesync/notesync/internal/transport"
	"github.com/notesync/notesync/pkg/vaultfs"
)

// maxConcurrentUploads is the parallelism cap from §4.10/§5: "3 concurrent
// uploads per batch".
const maxConcurrentUploads = 3

// allowedExtensions is the conservative allow-list of file types treated
// as attachments (§4.10: "non-markdown files ... by extension"). Anything
// not in this set, including markdown itself, is left to docsync.
var allowedExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".svg": true, ".pdf": true, ".mp3": true, ".mp4": true, ".mov": true,
	".zip": true, ".wav": true, ".m4a": true, ".heic": true,
}

// Stats accumulates the outcome counters for an attachment sync pass.
type Stats struct {
	Pulled  int
	Pushed  int
	Reused  int
	Errors  int
	Rewritten int
}

// Add folds other into s.
func (s *Stats) Add(other Stats) {
	s.Pulled += other.Pulled
	s.Pushed += other.Pushed
	s.Reused += other.Reused
	s.Errors += other.Errors
	s.Rewritten += other.Rewritten
}

// Driver composes the ports an attachment sync needs, mirroring docsync's
// Driver so the orchestrator can construct both from the same vault-level
// dependencies.
type Driver struct {
	Transport *transport.Client
	Files     vaultfs.FS
	Meta      *metacache.Cache
	VaultID   string
	Logger    *slog.Logger

	nowFunc func() time.Time
}

// New constructs a Driver. logger defaults to slog.Default() when nil.
func New(tr *transport.Client, files vaultfs.FS, meta *metacache.Cache, vaultID string, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Driver{Transport: tr, Files: files, Meta: meta, VaultID: vaultID, Logger: logger, nowFunc: time.Now}
}

// isAttachment reports whether path's extension belongs to the allow-list.
func isAttachment(ext string) bool {
	return allowedExtensions[ext]
}
