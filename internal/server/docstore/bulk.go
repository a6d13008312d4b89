package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/notesync/notesync/internal/merge"
	"github.com/notesync/notesync/internal/revcodec"
)

// BulkUpsert implements §4.6's bulk-upsert-with-merge algorithm. The bulk
// call never aborts: every input doc produces exactly one result, in
// input order (§8 "Bulk ordering").
func (s *Store) BulkUpsert(ctx context.Context, vaultID string, docs []BulkDocInput) []BulkResult {
	results := make([]BulkResult, len(docs))

	for i, d := range docs {
		results[i] = s.bulkUpsertOne(ctx, vaultID, d)
	}

	return results
}

func (s *Store) bulkUpsertOne(ctx context.Context, vaultID string, d BulkDocInput) BulkResult {
	existing, found, err := s.GetDocument(ctx, vaultID, d.ID)
	if err != nil {
		return BulkResult{ID: d.ID, Error: "internal_error", Reason: err.Error()}
	}

	// 1. No existing document: create.
	if !found {
		rev, err := revcodec.Generate("")
		if err != nil {
			return BulkResult{ID: d.ID, Error: "internal_error", Reason: err.Error()}
		}

		if err := s.upsertDocumentTx(ctx, vaultID, d.ID, rev, d.Content, d.Deleted); err != nil {
			return BulkResult{ID: d.ID, Error: "internal_error", Reason: err.Error()}
		}

		return BulkResult{ID: d.ID, OK: true, Rev: rev}
	}

	// 2. Matching revision (or none supplied): normal update.
	if d.Rev == "" || d.Rev == existing.Rev {
		rev, err := revcodec.Generate(existing.Rev)
		if err != nil {
			return BulkResult{ID: d.ID, Error: "internal_error", Reason: err.Error()}
		}

		if err := s.upsertDocumentTx(ctx, vaultID, d.ID, rev, d.Content, d.Deleted); err != nil {
			return BulkResult{ID: d.ID, Error: "internal_error", Reason: err.Error()}
		}

		return BulkResult{ID: d.ID, OK: true, Rev: rev}
	}

	// 3. Revision conflict.
	return s.resolveConflict(ctx, vaultID, d, existing)
}

func (s *Store) resolveConflict(ctx context.Context, vaultID string, d BulkDocInput, existing Document) BulkResult {
	base, baseFound, err := s.resolveBase(ctx, vaultID, d)
	if err != nil {
		return BulkResult{ID: d.ID, Error: "internal_error", Reason: err.Error()}
	}

	if baseFound && existing.Content != "" && d.Content != "" {
		result, mergeErr := merge.Merge(base, existing.Content, d.Content)
		if mergeErr != nil && !errors.Is(mergeErr, merge.ErrLimitExceeded) {
			return BulkResult{ID: d.ID, Error: "internal_error", Reason: mergeErr.Error()}
		}

		if mergeErr == nil && !result.HasConflicts() {
			rev, err := revcodec.Generate(existing.Rev)
			if err != nil {
				return BulkResult{ID: d.ID, Error: "internal_error", Reason: err.Error()}
			}

			if err := s.upsertDocumentTx(ctx, vaultID, d.ID, rev, result.Content, false); err != nil {
				return BulkResult{ID: d.ID, Error: "internal_error", Reason: err.Error()}
			}

			return BulkResult{ID: d.ID, OK: true, Rev: rev, Merged: true}
		}

		// Merge failed with conflict regions (or hit a limit, which spec
		// §7 treats as a conflict requiring user resolution).
		var dtoConflicts []ConflictRegionDTO
		for _, c := range result.Conflicts {
			dtoConflicts = append(dtoConflicts, ConflictRegionDTO{
				BaseLines: c.BaseLines, LocalLines: c.LocalLines,
				RemoteLines: c.RemoteLines, StartLine: c.StartLine,
			})
		}

		return BulkResult{
			ID: d.ID, Error: "conflict",
			Reason:         "Document update conflict - manual resolution required",
			CurrentRev:     existing.Rev,
			CurrentContent: existing.Content,
			CurrentDeleted: existing.Deleted,
			Conflicts:      dtoConflicts,
		}
	}

	// No usable base at all: the server cannot locate the named base
	// revision, so escalate to a full sync per §4.6.
	reason := "Document update conflict - manual resolution required"
	requiresFullSync := false
	if !baseFound {
		reason = "base_revision_not_found"
		requiresFullSync = true
	}

	return BulkResult{
		ID: d.ID, Error: "conflict",
		Reason:           reason,
		CurrentRev:       existing.Rev,
		CurrentContent:   existing.Content,
		CurrentDeleted:   existing.Deleted,
		RequiresFullSync: requiresFullSync,
	}
}

// resolveBase returns the base content to merge against: the explicitly
// supplied "_base_content" if present, else a lookup of the client's
// claimed "_rev" in the revisions table.
func (s *Store) resolveBase(ctx context.Context, vaultID string, d BulkDocInput) (string, bool, error) {
	if d.BaseSet {
		return d.BaseContent, true, nil
	}

	if d.Rev == "" {
		return "", false, nil
	}

	content, found, err := s.getRevisionContent(ctx, vaultID, d.ID, d.Rev)
	if err != nil {
		return "", false, fmt.Errorf("docstore: resolving base revision: %w", err)
	}

	return content, found, nil
}
