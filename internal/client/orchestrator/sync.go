package orchestrator

import (
	"context"
	"fmt"

	"github.com/notesync/notesync/internal/client/attachsync"
	"github.com/notesync/notesync/internal/client/docsync"
)

// Result is the combined outcome of one performSync() run.
type Result struct {
	Docs      docsync.Stats
	Attach    attachsync.Stats
	NoChanges bool
}

// Sync runs one full performSync() cycle: status check, decision logic,
// then pull-docs / push-docs / pull-and-push-attachments in that order
// (§4.11). Rejects re-entrant calls with errAlreadySyncing rather than
// blocking, mirroring the teacher's Engine.Run single-flight guard.
func (o *Orchestrator) Sync(ctx context.Context) (Result, error) {
	if o.paused.Load() {
		return Result{}, fmt.Errorf("orchestrator: sync rejected, vault is paused")
	}

	if !o.inProgress.CompareAndSwap(false, true) {
		return Result{}, errAlreadySyncing
	}
	defer o.inProgress.Store(false)

	o.setStatus(Status{Phase: PhaseSyncing, Message: "syncing"})

	result, err := o.performSync(ctx)
	if err != nil {
		// §4.11: "On uncaught error, emit 'error' status ... and
		// increment errors" — a top-level failure (e.g. the status
		// check or a phase's own request exhausting retries) must
		// still surface as a counted error, not just a message, so
		// stats.errors reflects the failed run (§8 scenario 4).
		result.Docs.Errors++
		o.setStatus(Status{Phase: PhaseError, Message: err.Error(), Docs: result.Docs, Attach: result.Attach})
		return result, err
	}

	msg := "sync complete"
	if result.NoChanges {
		msg = "No changes"
	}
	o.setStatus(Status{Phase: PhaseSuccess, Message: msg, Docs: result.Docs, Attach: result.Attach})

	return result, nil
}

// performSync implements §4.11's decision logic: query the cheap status
// endpoint, compute the four dirty booleans, and run only the phases
// that have work. A local-dirty pre-check across the whole vault tree
// would require the very filesystem walk the push phases already do, so
// "has local changes" is treated as unconditionally true here and the
// push phases themselves are the authoritative no-op check — an empty
// candidate list is a fast, harmless bulk call.
func (o *Orchestrator) performSync(ctx context.Context) (Result, error) {
	v := o.vault()

	status, ok := o.fetchStatus(ctx, v.VaultID)
	statusUnavailable := !ok

	hasLocalDocChanges := true
	hasLocalAttachmentChanges := v.SyncAttachments

	hasServerDocChanges := statusUnavailable || status.LastSeq > v.LastSeq
	hasServerAttachmentChanges := v.SyncAttachments && (statusUnavailable || status.LastAttachmentSeq > v.LastAttachmentSeq)

	if !hasLocalDocChanges && !hasLocalAttachmentChanges && !hasServerDocChanges && !hasServerAttachmentChanges {
		return Result{NoChanges: true}, nil
	}

	var result Result

	if hasServerDocChanges {
		pullRes, err := o.Docs.Pull(ctx, v.LastSeq, o.persistDocCursor)
		result.Docs.Add(pullRes.Stats)
		if err != nil {
			return result, fmt.Errorf("orchestrator: pulling documents: %w", err)
		}
		if pullRes.ResetRequested {
			return result, o.handleReset(ctx)
		}
	}

	if hasLocalDocChanges {
		pushRes, err := o.Docs.Push(ctx, o.persistMetaOnly)
		result.Docs.Add(pushRes.Stats)
		if err != nil {
			return result, fmt.Errorf("orchestrator: pushing documents: %w", err)
		}
		if pushRes.ResetRequested {
			return result, o.handleReset(ctx)
		}
	}

	if v.SyncAttachments {
		if hasServerAttachmentChanges {
			pullRes, err := o.Attach.Pull(ctx, v.LastAttachmentSeq, o.persistAttachmentCursor)
			result.Attach.Add(pullRes.Stats)
			if err != nil {
				return result, fmt.Errorf("orchestrator: pulling attachment cursor: %w", err)
			}
		}

		if hasLocalAttachmentChanges {
			pushRes, err := o.Attach.Push(ctx, o.persistMetaOnly)
			result.Attach.Add(pushRes.Stats)
			if err != nil {
				return result, fmt.Errorf("orchestrator: pushing attachments: %w", err)
			}
		}
	}

	return result, nil
}

// handleReset invokes the host reset callback (§7 "Full-sync-required")
// and clears the local cursor/cache state so the next run starts clean.
func (o *Orchestrator) handleReset(ctx context.Context) error {
	o.Logger.Warn("orchestrator: full reset requested")

	if o.Reset != nil {
		if err := o.Reset(ctx); err != nil {
			return fmt.Errorf("orchestrator: reset callback failed: %w", err)
		}
	}

	o.Meta.ClearAll()

	v := o.vault()
	v.LastSeq = 0
	v.LastAttachmentSeq = 0

	return o.saveVault(v)
}

func (o *Orchestrator) persistDocCursor(lastSeq int64) error {
	v := o.vault()
	v.LastSeq = lastSeq

	if err := o.saveVault(v); err != nil {
		return err
	}

	return o.Meta.PersistCache(o.Settings, o.VaultName, o.SettingsPath)
}

func (o *Orchestrator) persistAttachmentCursor(lastAttachmentSeq int64) error {
	v := o.vault()
	v.LastAttachmentSeq = lastAttachmentSeq

	if err := o.saveVault(v); err != nil {
		return err
	}

	return o.Meta.PersistCache(o.Settings, o.VaultName, o.SettingsPath)
}

// persistMetaOnly flushes the metadata cache without touching a cursor,
// used at the end of both push phases.
func (o *Orchestrator) persistMetaOnly() error {
	return o.Meta.PersistCache(o.Settings, o.VaultName, o.SettingsPath)
}
