package docsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/notesync/notesync/internal/client/resolver"
	"github.com/notesync/notesync/internal/client/settings"
	"github.com/notesync/notesync/internal/docid"
	"github.com/notesync/notesync/internal/merge"
	"github.com/notesync/notesync/internal/transport"
	"github.com/notesync/notesync/internal/wire"
)

// ErrCancelled names a user-cancelled conflict prompt. Pull does not
// return it: a cancelled prompt stops the pull at that change without an
// error, the cursor stays before it, and the run continues with push.
var ErrCancelled = errors.New("docsync: conflict resolution cancelled by user")

// PullResult reports the pull phase's outcome.
type PullResult struct {
	LastSeq int64
	Stats   Stats
	// ResetRequested is true when a FullReset decision was made; the
	// orchestrator must invoke its reset callback and cancel the run.
	ResetRequested bool
}

// Pull implements §4.9's pull phase: batches of up to 100 changes from
// settings.lastSeq (the initial since value), applying each in order and
// persisting the advanced cursor via persist after every batch.
func (d *Driver) Pull(ctx context.Context, since int64, persist PersistCursorFunc) (PullResult, error) {
	result := PullResult{LastSeq: since}

	for {
		page, err := d.fetchChanges(ctx, result.LastSeq)
		if err != nil {
			return result, fmt.Errorf("docsync: fetching changes: %w", err)
		}

		stop := false

		for _, change := range page.Results {
			applied, decision, err := d.applyChange(ctx, change)
			if err != nil {
				d.Logger.Error("docsync: applying change failed", slog.String("doc_id", change.ID), slog.Any("error", err))
				result.Stats.Errors++
				continue
			}

			if decision == resolver.FullReset {
				result.ResetRequested = true
				stop = true
				break
			}

			if !applied {
				// Cancelled: stop advancing the cursor past this change,
				// but the rest of the run (push) may still proceed.
				stop = true
				break
			}

			result.LastSeq = change.Seq
			result.Stats.Pulled++
		}

		if persistErr := persist(result.LastSeq); persistErr != nil {
			return result, fmt.Errorf("docsync: persisting cursor: %w", persistErr)
		}

		if stop || len(page.Results) < pullBatchSize {
			break
		}
	}

	return result, nil
}

func (d *Driver) fetchChanges(ctx context.Context, since int64) (wire.ChangesResponse, error) {
	path := fmt.Sprintf("/api/changes?since=%d&limit=%d&vault_id=%s", since, pullBatchSize, url.QueryEscape(d.VaultID))

	resp, err := d.Transport.Do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return wire.ChangesResponse{}, err
	}
	defer resp.Body.Close()

	var out wire.ChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return wire.ChangesResponse{}, fmt.Errorf("decoding changes response: %w", err)
	}

	return out, nil
}

// applyChange applies one change entry and reports whether the cursor may
// advance past it (true unless the user cancelled).
func (d *Driver) applyChange(ctx context.Context, change wire.ChangeEntry) (applied bool, decision resolver.Decision, err error) {
	path := docid.ToPath(change.ID)

	d.logState(path, stateCandidate)
	d.logState(path, stateInFlight)

	if change.Deleted {
		applied, decision, err = d.applyDelete(ctx, change.ID, path)
	} else {
		applied, decision, err = d.applyUpsert(ctx, change.ID, path)
	}

	d.logState(path, finalState(applied, decision, err))

	return applied, decision, err
}

// finalState maps an applyChange outcome onto the terminal states named
// in §4.9's per-path state machine.
func finalState(applied bool, decision resolver.Decision, err error) pathState {
	switch {
	case err != nil:
		return stateCancelled
	case !applied:
		return stateCancelled
	case decision == resolver.UseLocal:
		return stateResolvedLocal
	case decision == resolver.UseRemote:
		return stateResolvedRemote
	default:
		return stateApplied
	}
}

func (d *Driver) logState(path string, state pathState) {
	d.Logger.Debug("docsync: path state transition", slog.String("path", path), slog.String("state", state.String()))
}

func (d *Driver) applyDelete(ctx context.Context, docID, path string) (bool, resolver.Decision, error) {
	entry, exists, err := d.Files.Stat(ctx, path)
	if err != nil {
		return false, resolver.Cancel, err
	}

	meta, hasMeta := d.Meta.GetDoc(path)

	unmodifiedLocally := !exists || !hasMeta || entry.ModTime.UnixMilli() <= meta.LastModified

	if unmodifiedLocally {
		if exists {
			if err := d.Files.Remove(ctx, path); err != nil {
				return false, resolver.Cancel, err
			}
		}
		d.Meta.DeleteDoc(path)
		d.Base.Delete(ctx, path)
		return true, resolver.UseRemote, nil
	}

	// Delete-vs-edit conflict: spec.md §9(c) reuses the same modal as
	// edit-vs-edit.
	local, readErr := d.Files.ReadFile(ctx, path)
	if readErr != nil {
		return false, resolver.Cancel, readErr
	}

	decision, err := d.Resolver.Resolve(ctx, resolver.Request{
		Path: path, LocalContent: string(local), RemoteDeleted: true,
	})
	if err != nil {
		return false, resolver.Cancel, err
	}

	switch decision {
	case resolver.UseRemote:
		if err := d.Files.Remove(ctx, path); err != nil {
			return false, resolver.Cancel, err
		}
		d.Meta.DeleteDoc(path)
		d.Base.Delete(ctx, path)
		return true, decision, nil
	case resolver.UseLocal:
		// Keep the local file; the push phase force-pushes it since its
		// metadata now carries a stale rev relative to the tombstone.
		return true, decision, nil
	case resolver.FullReset:
		return false, decision, nil
	default:
		return false, resolver.Cancel, nil
	}
}

func (d *Driver) applyUpsert(ctx context.Context, docID, path string) (bool, resolver.Decision, error) {
	remote, found, err := d.fetchDoc(ctx, docID)
	if err != nil {
		return false, resolver.Cancel, err
	}
	if !found {
		// A 404 on the doc fetch is counted as applied (§4.9).
		return true, resolver.UseRemote, nil
	}

	entry, exists, err := d.Files.Stat(ctx, path)
	if err != nil {
		return false, resolver.Cancel, err
	}

	meta, hasMeta := d.Meta.GetDoc(path)

	if !exists {
		if err := d.Files.WriteFile(ctx, path, []byte(remote.Content)); err != nil {
			return false, resolver.Cancel, err
		}
		return d.recordSynced(ctx, path, remote, true)
	}

	if hasMeta && meta.Rev == remote.Rev {
		return true, resolver.UseRemote, nil
	}

	unmodifiedLocally := !hasMeta || entry.ModTime.UnixMilli() <= meta.LastModified
	if unmodifiedLocally {
		if err := d.Files.WriteFile(ctx, path, []byte(remote.Content)); err != nil {
			return false, resolver.Cancel, err
		}
		return d.recordSynced(ctx, path, remote, true)
	}

	// Locally modified: three-way merge against the saved base, else a
	// synthetic common base.
	localBytes, err := d.Files.ReadFile(ctx, path)
	if err != nil {
		return false, resolver.Cancel, err
	}
	local := string(localBytes)

	base, hasBase := d.Base.Get(ctx, path)
	if !hasBase {
		base = merge.ComputeCommonBase(local, remote.Content)
	}

	result, mergeErr := merge.Merge(base, local, remote.Content)
	if mergeErr == nil && !result.HasConflicts() {
		if err := d.Files.WriteFile(ctx, path, []byte(result.Content)); err != nil {
			return false, resolver.Cancel, err
		}

		// The merged body now carries the remote content as the agreed
		// base; lastModified stays put on purpose so the push phase
		// still sees this path as "modified" and carries the local
		// delta forward (§4.9).
		d.Base.Set(ctx, path, remote.Content)
		d.Meta.SetDoc(path, settings.DocMeta{Path: path, Rev: remote.Rev, LastModified: meta.LastModified})

		return true, resolver.UseLocal, nil
	}

	var conflicts []merge.ConflictRegion
	if mergeErr == nil {
		conflicts = result.Conflicts
	}

	decision, err := d.Resolver.Resolve(ctx, resolver.Request{
		Path: path, LocalContent: local, RemoteContent: remote.Content, MergeConflicts: conflicts,
	})
	if err != nil {
		return false, resolver.Cancel, err
	}

	switch decision {
	case resolver.UseRemote:
		if err := d.Files.WriteFile(ctx, path, []byte(remote.Content)); err != nil {
			return false, resolver.Cancel, err
		}
		return d.recordSynced(ctx, path, remote, true)
	case resolver.UseLocal:
		// Leave the file as-is; it force-pushes on the next push phase.
		return true, decision, nil
	case resolver.FullReset:
		return false, decision, nil
	default:
		return false, resolver.Cancel, nil
	}
}

func (d *Driver) recordSynced(ctx context.Context, path string, remote wire.DocResponse, applied bool) (bool, resolver.Decision, error) {
	entry, _, err := d.Files.Stat(ctx, path)
	if err != nil {
		return false, resolver.Cancel, err
	}

	d.Meta.SetDoc(path, settings.DocMeta{Path: path, Rev: remote.Rev, LastModified: entry.ModTime.UnixMilli()})
	d.Base.Set(ctx, path, remote.Content)

	return applied, resolver.UseRemote, nil
}

func (d *Driver) fetchDoc(ctx context.Context, docID string) (wire.DocResponse, bool, error) {
	reqPath := fmt.Sprintf("/api/docs/%s?vault_id=%s", url.PathEscape(docID), url.QueryEscape(d.VaultID))

	resp, err := d.Transport.Do(ctx, http.MethodGet, reqPath, nil, nil)
	if err != nil {
		var httpErr *transport.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return wire.DocResponse{}, false, nil
		}
		return wire.DocResponse{}, false, err
	}
	defer resp.Body.Close()

	var out wire.DocResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return wire.DocResponse{}, false, fmt.Errorf("decoding doc response: %w", err)
	}

	return out, true, nil
}
