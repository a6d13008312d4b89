// Package orchestrator is the client's sync orchestrator (C11): the
// re-entrancy-guarded performSync() described in spec.md §4.11, the
// status-gated decision logic that picks which of the four sync
// sub-phases actually need to run, and the --daemon auto-sync scheduler
// (periodic timer plus an optional fsnotify-debounced on-save trigger).
// Grounded on the teacher's internal/sync/engine.go Engine, which owns
// and sequences a Puller/Pusher pair behind its own single-flight guard.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/notesync/notesync/internal/client/attachsync"
	"github.com/notesync/notesync/internal/client/docsync"
	"github.com/notesync/notesync/internal/client/settings"
	"github.com/notesync/notesync/internal/metacache"
	"github.com/notesync/notesync/internal/transport"
	"github.com/notesync/notesync/internal/wire"
)

// Phase names the status stream's state, per §4.11/§8.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseSyncing  Phase = "syncing"
	PhaseSuccess  Phase = "success"
	PhaseError    Phase = "error"
	PhasePaused   Phase = "paused"
)

// Status is the latest sync-progress snapshot, returned by
// Orchestrator.Status. The CLI's `status` subcommand does not read it.
type Status struct {
	Phase   Phase
	Message string
	Docs    docsync.Stats
	Attach  attachsync.Stats
	At      time.Time
}

// ResetFunc is the host-supplied callback invoked on a full-sync
// escalation (§7 "Full-sync-required"): clear metadata caches and
// cursors, preserve local files, and let the next run re-sync against
// the server from scratch.
type ResetFunc func(ctx context.Context) error

// Orchestrator wires a pair of sync drivers to one vault's persisted
// settings, enforcing the single-flight guard and status-gated decision
// logic from §4.11.
type Orchestrator struct {
	Docs       *docsync.Driver
	Attach     *attachsync.Driver
	Transport  *transport.Client
	Meta       *metacache.Cache
	Settings   *settings.File
	SettingsPath string
	VaultName  string
	Reset      ResetFunc
	Logger     *slog.Logger

	nowFunc func() time.Time

	inProgress atomic.Bool
	paused     atomic.Bool

	statusMu sync.Mutex
	status   Status
}

// New constructs an Orchestrator. logger defaults to slog.Default() when
// nil.
func New(docs *docsync.Driver, attach *attachsync.Driver, tr *transport.Client, meta *metacache.Cache, sf *settings.File, settingsPath, vaultName string, reset ResetFunc, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		Docs: docs, Attach: attach, Transport: tr, Meta: meta,
		Settings: sf, SettingsPath: settingsPath, VaultName: vaultName,
		Reset: reset, Logger: logger, nowFunc: time.Now,
		status: Status{Phase: PhaseIdle},
	}
}

// Status returns the latest sync-progress snapshot.
func (o *Orchestrator) Status() Status {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()

	return o.status
}

func (o *Orchestrator) setStatus(s Status) {
	s.At = o.nowFunc()

	o.statusMu.Lock()
	o.status = s
	o.statusMu.Unlock()
}

// Pause sets the daemon's paused flag: auto-sync timer/watch callbacks
// are rejected while set (§5 "rejected ... if syncInProgress is set"
// generalizes to an explicit pause request here, per the CLI's
// pause/resume subcommands).
func (o *Orchestrator) Pause() {
	o.paused.Store(true)
	o.setStatus(Status{Phase: PhasePaused, Message: "paused by user"})
}

// Resume clears the paused flag.
func (o *Orchestrator) Resume() {
	o.paused.Store(false)
	o.setStatus(Status{Phase: PhaseIdle})
}

// Paused reports whether auto-sync triggers are currently rejected.
func (o *Orchestrator) Paused() bool {
	return o.paused.Load()
}

func (o *Orchestrator) vault() settings.VaultSettings {
	v, _ := o.Settings.Vault(o.VaultName)
	return v
}

func (o *Orchestrator) saveVault(v settings.VaultSettings) error {
	o.Settings.SetVault(o.VaultName, v)
	return o.Settings.Save(o.SettingsPath)
}

// fetchStatus queries GET /api/status, per §4.11 "query GET /api/status
// (cheap)". A failed request is not fatal: the caller treats it as
// status_unavailable and conservatively assumes the server has changes.
func (o *Orchestrator) fetchStatus(ctx context.Context, vaultID string) (wire.StatusResponse, bool) {
	path := fmt.Sprintf("/api/status?vault_id=%s", url.QueryEscape(vaultID))

	resp, err := o.Transport.Do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		o.Logger.Warn("orchestrator: status check failed", slog.Any("error", err))
		return wire.StatusResponse{}, false
	}
	defer resp.Body.Close()

	var out wire.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		o.Logger.Warn("orchestrator: decoding status response failed", slog.Any("error", err))
		return wire.StatusResponse{}, false
	}

	return out, true
}

// errAlreadySyncing is returned by Sync when a run is already in flight.
var errAlreadySyncing = errors.New("orchestrator: sync already in progress")
