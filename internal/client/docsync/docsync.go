// Package docsync is the client's document-sync driver (C9): the pull
// loop and push bulk cycle described in spec.md §4.9, with progress
// reporting, conflict dispatch, and cursor discipline. Structurally
// grounded on internal/sync/reconciler.go + internal/sync/engine.go: Pull
// (≈ the teacher's DeltaProcessor) and Push (≈ the teacher's
// reconciler-then-executor pair) are methods of one Driver (≈ the
// teacher's Engine).
package docsync

import (
	"log/slog"
	"time"

	"github.com/notesync/notesync/internal/basestore"
	"github.com/notesync/notesync/internal/client/resolver"
	"github.com/notesync/notesync/internal/metacache"
	"github.com/notesync/notesync/internal/transport"
	"github.com/notesync/notesync/pkg/vaultfs"
)

// pullBatchSize is the page size for GET /api/changes, per §4.9 "In
// batches of 100".
const pullBatchSize = 100

// Stats accumulates the outcome counters spec.md §7/§8 names: pulled,
// pushed, conflicts, errors.
type Stats struct {
	Pulled   int
	Pushed   int
	Conflicts int
	Errors   int
}

// Add folds other into s, used when combining pull and push phase stats.
func (s *Stats) Add(other Stats) {
	s.Pulled += other.Pulled
	s.Pushed += other.Pushed
	s.Conflicts += other.Conflicts
	s.Errors += other.Errors
}

// pathState is the per-path state machine named in §4.9: "idle ->
// candidate -> in-flight -> {applied | conflict-pending ->
// {resolved-local | resolved-remote | cancelled}}". Modeled as a named
// enum with logged transitions rather than an opaque if-chain, the same
// discipline the teacher's reconciler applies to its F1-F14/D1-D6
// decision matrices.
type pathState int

const (
	stateIdle pathState = iota
	stateCandidate
	stateInFlight
	stateApplied
	stateConflictPending
	stateResolvedLocal
	stateResolvedRemote
	stateCancelled
)

func (s pathState) String() string {
	switch s {
	case stateCandidate:
		return "candidate"
	case stateInFlight:
		return "in-flight"
	case stateApplied:
		return "applied"
	case stateConflictPending:
		return "conflict-pending"
	case stateResolvedLocal:
		return "resolved-local"
	case stateResolvedRemote:
		return "resolved-remote"
	case stateCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// PersistCursorFunc is called by Pull at least once per processed batch
// (§5's durability boundary) so a crash between calls never advances
// lastSeq past unpersisted work. It both records the new cursor and
// flushes the metadata cache to durable settings.
type PersistCursorFunc func(lastSeq int64) error

// PersistFunc flushes the metadata cache (and any base-content writes)
// to durable settings without touching a cursor, used at the end of the
// push phase.
type PersistFunc func() error

// Driver composes the ports a document sync needs: HTTP transport,
// vault file access, metadata cache, base-content store, and the
// conflict resolver. One Driver instance serves one vault.
type Driver struct {
	Transport *transport.Client
	Files     vaultfs.FS
	Meta      *metacache.Cache
	Base      *basestore.Store
	Resolver  resolver.Resolver
	VaultID   string
	Logger    *slog.Logger

	nowFunc func() time.Time
}

// New constructs a Driver. logger defaults to slog.Default() when nil.
func New(tr *transport.Client, files vaultfs.FS, meta *metacache.Cache, base *basestore.Store, res resolver.Resolver, vaultID string, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Driver{
		Transport: tr, Files: files, Meta: meta, Base: base, Resolver: res,
		VaultID: vaultID, Logger: logger, nowFunc: time.Now,
	}
}
