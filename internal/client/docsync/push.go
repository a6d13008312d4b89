package docsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/notesync/notesync/internal/client/resolver"
	"github.com/notesync/notesync/internal/client/settings"
	"github.com/notesync/notesync/internal/docid"
	"github.com/notesync/notesync/internal/merge"
	"github.com/notesync/notesync/internal/wire"
	"github.com/notesync/notesync/pkg/vaultfs"
)

// fromWireConflicts converts the wire-format conflict regions back into
// merge.ConflictRegion for the resolver's Request.
func fromWireConflicts(in []wire.ConflictRegionWire) []merge.ConflictRegion {
	if len(in) == 0 {
		return nil
	}

	out := make([]merge.ConflictRegion, len(in))
	for i, c := range in {
		out[i] = merge.ConflictRegion{
			BaseLines: c.BaseLines, LocalLines: c.LocalLines,
			RemoteLines: c.RemoteLines, StartLine: c.StartLine,
		}
	}

	return out
}

// docSuffix is the on-disk extension of a text document (§3: docId has
// any ".md" suffix stripped).
const docSuffix = ".md"

// PushResult reports the push phase's outcome.
type PushResult struct {
	Stats          Stats
	ResetRequested bool
}

// Push implements §4.9's push phase: scans for locally-modified files,
// bundles a bulk upsert (plus deletion records for paths missing from
// disk), and processes results in request order.
func (d *Driver) Push(ctx context.Context, persist PersistFunc) (PushResult, error) {
	entries, err := d.scanDocs(ctx)
	if err != nil {
		return PushResult{}, fmt.Errorf("docsync: scanning vault: %w", err)
	}

	pushTimeMtimes := make(map[string]int64, len(entries))
	seenOnDisk := make(map[string]bool, len(entries))

	var items []wire.BulkDocRequestItem
	var order []string

	for _, e := range entries {
		seenOnDisk[e.Path] = true
		meta, hasMeta := d.Meta.GetDoc(e.Path)

		if hasMeta && meta.LastModified >= e.ModTime.UnixMilli() {
			continue // not a candidate: not modified since last sync
		}

		content, err := d.Files.ReadFile(ctx, e.Path)
		if err != nil {
			d.Logger.Error("docsync: reading candidate failed", slog.String("path", e.Path), slog.Any("error", err))
			continue
		}

		docID := docid.FromPath(e.Path)
		base, _ := d.Base.Get(ctx, e.Path)

		contentStr := string(content)
		baseStr := base

		items = append(items, wire.BulkDocRequestItem{
			ID: docID, Rev: meta.Rev, Content: &contentStr, BaseContent: &baseStr,
		})
		order = append(order, e.Path)
		pushTimeMtimes[e.Path] = e.ModTime.UnixMilli()
	}

	// Deletion records: every path tracked in metadata but absent on disk.
	for path, meta := range d.Meta.Docs() {
		if seenOnDisk[path] {
			continue
		}

		contentStr := ""
		items = append(items, wire.BulkDocRequestItem{
			ID: docid.FromPath(path), Rev: meta.Rev, Deleted: true, Content: &contentStr,
		})
		order = append(order, path)
	}

	if len(items) == 0 {
		return PushResult{}, nil
	}

	results, err := d.bulkPush(ctx, items)
	if err != nil {
		return PushResult{}, err
	}

	var result PushResult

	for i, res := range results {
		path := order[i]
		wasDelete := items[i].Deleted

		outcome, err := d.applyPushResult(ctx, path, res, pushTimeMtimes[path], wasDelete)
		if err != nil {
			d.Logger.Error("docsync: applying push result failed", slog.String("path", path), slog.Any("error", err))
			result.Stats.Errors++
			continue
		}

		switch outcome {
		case pushOutcomeApplied:
			result.Stats.Pushed++
		case pushOutcomeConflict:
			result.Stats.Conflicts++
		case pushOutcomeFullReset:
			result.ResetRequested = true
		case pushOutcomeError:
			result.Stats.Errors++
		}
	}

	if err := persist(); err != nil {
		return result, fmt.Errorf("docsync: persisting after push: %w", err)
	}

	return result, nil
}

type pushOutcome int

const (
	pushOutcomeApplied pushOutcome = iota
	pushOutcomeConflict
	pushOutcomeFullReset
	pushOutcomeError
	pushOutcomeNoop
)

func (d *Driver) applyPushResult(ctx context.Context, path string, res wire.BulkDocResultItem, pushMtime int64, wasDelete bool) (pushOutcome, error) {
	switch {
	case res.OK && res.Merged:
		// Re-pull this doc, skipping the conflict check iff the file
		// hasn't changed since the push began.
		entry, exists, err := d.Files.Stat(ctx, path)
		if err != nil {
			return pushOutcomeError, err
		}

		docID := docid.FromPath(path)
		remote, found, err := d.fetchDoc(ctx, docID)
		if err != nil {
			return pushOutcomeError, err
		}
		if !found {
			return pushOutcomeNoop, nil
		}

		if !exists || entry.ModTime.UnixMilli() <= pushMtime {
			if err := d.Files.WriteFile(ctx, path, []byte(remote.Content)); err != nil {
				return pushOutcomeError, err
			}
			if _, _, err := d.recordSynced(ctx, path, remote, true); err != nil {
				return pushOutcomeError, err
			}
		} else {
			d.Meta.SetDoc(path, settings.DocMeta{Path: path, Rev: remote.Rev, LastModified: pushMtime})
			d.Base.Set(ctx, path, remote.Content)
		}

		return pushOutcomeApplied, nil

	case res.OK && wasDelete:
		d.Meta.DeleteDoc(path)
		d.Base.Delete(ctx, path)
		return pushOutcomeApplied, nil

	case res.OK:
		content, err := d.Files.ReadFile(ctx, path)
		if err != nil {
			return pushOutcomeError, err
		}

		d.Meta.SetDoc(path, settings.DocMeta{Path: path, Rev: res.Rev, LastModified: pushMtime})
		d.Base.Set(ctx, path, string(content))

		return pushOutcomeApplied, nil

	case res.Error == "conflict":
		decision, err := d.Resolver.Resolve(ctx, resolver.Request{
			Path: path, RemoteContent: res.CurrentContent, RemoteDeleted: res.CurrentDeleted,
			MergeConflicts: fromWireConflicts(res.Conflicts),
			RequiresFullSync: res.RequiresFullSync, Reason: res.Reason,
		})
		if err != nil {
			return pushOutcomeError, err
		}

		switch decision {
		case resolver.UseLocal:
			return d.forcePush(ctx, path, res.CurrentRev)
		case resolver.UseRemote:
			if res.CurrentDeleted {
				// Trash the local file instead of writing empty content
				// over it.
				_ = d.Files.Remove(ctx, path)
				d.Meta.DeleteDoc(path)
				d.Base.Delete(ctx, path)
				return pushOutcomeConflict, nil
			}

			if err := d.Files.WriteFile(ctx, path, []byte(res.CurrentContent)); err != nil {
				return pushOutcomeError, err
			}

			d.Meta.SetDoc(path, settings.DocMeta{Path: path, Rev: res.CurrentRev, LastModified: pushMtime})
			d.Base.Set(ctx, path, res.CurrentContent)

			return pushOutcomeConflict, nil
		case resolver.FullReset:
			return pushOutcomeFullReset, nil
		default:
			return pushOutcomeConflict, nil
		}

	default:
		d.Logger.Error("docsync: bulk push error", slog.String("path", path), slog.String("error", res.Error), slog.String("reason", res.Reason))
		return pushOutcomeError, nil
	}
}

// forcePush re-PUTs path with _rev = currentRev (§4.9's UseLocal path),
// updating metadata/base on success.
func (d *Driver) forcePush(ctx context.Context, path, currentRev string) (pushOutcome, error) {
	content, err := d.Files.ReadFile(ctx, path)
	if err != nil {
		return pushOutcomeError, err
	}

	docID := docid.FromPath(path)
	reqPath := fmt.Sprintf("/api/docs/%s?vault_id=%s", url.PathEscape(docID), url.QueryEscape(d.VaultID))

	body, err := json.Marshal(wire.PutDocRequest{Rev: currentRev, Content: string(content)})
	if err != nil {
		return pushOutcomeError, err
	}

	resp, err := d.Transport.Do(ctx, http.MethodPut, reqPath, bytes.NewReader(body), nil)
	if err != nil {
		return pushOutcomeError, err
	}
	defer resp.Body.Close()

	var out wire.DocResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return pushOutcomeError, fmt.Errorf("decoding force-push response: %w", err)
	}

	entry, _, statErr := d.Files.Stat(ctx, path)
	if statErr != nil {
		return pushOutcomeError, statErr
	}

	d.Meta.SetDoc(path, settings.DocMeta{Path: path, Rev: out.Rev, LastModified: entry.ModTime.UnixMilli()})
	d.Base.Set(ctx, path, string(content))

	return pushOutcomeConflict, nil
}

func (d *Driver) bulkPush(ctx context.Context, items []wire.BulkDocRequestItem) ([]wire.BulkDocResultItem, error) {
	body, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("docsync: marshaling bulk request: %w", err)
	}

	reqPath := fmt.Sprintf("/api/docs/bulk_docs?vault_id=%s", url.QueryEscape(d.VaultID))

	resp, err := d.Transport.Do(ctx, http.MethodPost, reqPath, bytes.NewReader(body), nil)
	if err != nil {
		return nil, fmt.Errorf("docsync: bulk push request: %w", err)
	}
	defer resp.Body.Close()

	var out []wire.BulkDocResultItem
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("docsync: decoding bulk response: %w", err)
	}

	return out, nil
}

// scanDocs walks the vault and returns every markdown file.
func (d *Driver) scanDocs(ctx context.Context) ([]vaultfs.Entry, error) {
	var out []vaultfs.Entry

	err := d.Files.Walk(ctx, func(e vaultfs.Entry) error {
		if strings.HasSuffix(e.Path, docSuffix) {
			out = append(out, e)
		}
		return nil
	})

	return out, err
}
