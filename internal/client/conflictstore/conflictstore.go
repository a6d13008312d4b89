// Package conflictstore persists the CLI's pending-conflict ledger: the
// conflicts a sync run could not resolve automatically (the resolver
// returned Cancel) and is waiting on a separate "notesync resolve"
// invocation for, since each CLI invocation is a fresh process with no
// shared memory with the run that discovered the conflict. Grounded on
// the teacher's internal/sync/conflict.go persisted conflict records
// (it keeps unresolved OneDrive conflicts in its baseline DB so a later
// `onedrive-go conflicts` command can list them); here the ledger is a
// small JSON file instead of a SQLite table, since it is scoped to one
// vault and never needs a query engine.
package conflictstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/notesync/notesync/internal/client/resolver"
)

// Pending is one conflict awaiting a user decision.
type Pending struct {
	Path             string `json:"path"`
	Reason           string `json:"reason,omitempty"`
	RequiresFullSync bool   `json:"requires_full_sync,omitempty"`
	DetectedAt       int64  `json:"detected_at_millis"`
}

// File is the on-disk ledger: pending conflicts plus decisions queued by
// "notesync resolve" for the next sync run to pick up.
type File struct {
	Pending   []Pending                  `json:"pending"`
	Decisions map[string]resolver.Decision `json:"decisions"`
}

// Load reads the ledger at path. A missing file is not an error.
func Load(path string) (*File, error) {
	f := &File{Decisions: make(map[string]resolver.Decision)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conflictstore: reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("conflictstore: parsing %s: %w", path, err)
	}

	if f.Decisions == nil {
		f.Decisions = make(map[string]resolver.Decision)
	}

	return f, nil
}

// Save writes f to path, creating parent directories as needed.
func (f *File) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("conflictstore: creating directory: %w", err)
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("conflictstore: encoding: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("conflictstore: writing %s: %w", path, err)
	}

	return nil
}

// AddPending records a newly discovered conflict, replacing any existing
// entry for the same path.
func (f *File) AddPending(p Pending) {
	for i, existing := range f.Pending {
		if existing.Path == p.Path {
			f.Pending[i] = p
			return
		}
	}
	f.Pending = append(f.Pending, p)
}

// RemovePending drops path from the pending list, e.g. once it resolves.
func (f *File) RemovePending(path string) {
	out := f.Pending[:0]
	for _, p := range f.Pending {
		if p.Path != path {
			out = append(out, p)
		}
	}
	f.Pending = out
}

// QueueDecision records the decision "notesync resolve" chose for path,
// to be consumed by the next sync run's resolver.
func (f *File) QueueDecision(path string, d resolver.Decision) {
	f.Decisions[path] = d
}

// TakeDecision pops and returns the queued decision for path, if any.
func (f *File) TakeDecision(path string) (resolver.Decision, bool) {
	d, ok := f.Decisions[path]
	if ok {
		delete(f.Decisions, path)
	}
	return d, ok
}

// DefaultPath returns the default ledger location for vaultName.
func DefaultPath(configDir, vaultName string) string {
	return filepath.Join(configDir, "conflicts", vaultName+".json")
}

// nowFunc is overridable in tests; production code always uses the
// wall clock.
var nowFunc = func() int64 { return time.Now().UnixMilli() }

// Resolver returns a resolver.Resolver backed by f: a conflict with a
// decision already queued by "notesync resolve" resolves immediately
// (and, unless it is Cancel, is removed from the pending list); otherwise
// it falls back to
// fallback if non-nil (e.g. an interactive TTY resolver), and failing
// that records the conflict as pending and returns Cancel so the sync
// run continues without blocking.
func (f *File) Resolver(fallback resolver.Resolver, nowMillis func() int64) resolver.Resolver {
	if nowMillis == nil {
		nowMillis = nowFunc
	}

	return resolver.Func(func(ctx context.Context, req resolver.Request) (resolver.Decision, error) {
		if d, ok := f.TakeDecision(req.Path); ok {
			if d != resolver.Cancel {
				f.RemovePending(req.Path)
			}
			return d, nil
		}

		if fallback != nil {
			d, err := fallback.Resolve(ctx, req)
			if err == nil && d != resolver.Cancel {
				f.RemovePending(req.Path)
			}
			return d, err
		}

		f.AddPending(Pending{
			Path: req.Path, Reason: req.Reason,
			RequiresFullSync: req.RequiresFullSync, DetectedAt: nowMillis(),
		})

		return resolver.Cancel, nil
	})
}
