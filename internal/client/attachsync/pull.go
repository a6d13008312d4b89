package attachsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/notesync/notesync/internal/wire"
)

// pullBatchSize mirrors docsync's changes-feed page size.
const pullBatchSize = 100

// PersistCursorFunc persists the advanced attachment cursor, mirroring
// docsync's PersistCursorFunc for the document feed.
type PersistCursorFunc func(lastAttachmentSeq int64) error

// PullResult reports the attachment pull phase's outcome: a cursor only,
// since bytes are never downloaded (§4.10).
type PullResult struct {
	LastSeq int64
	Stats   Stats
}

// Pull drains the attachment change feed, advancing lastAttachmentSeq
// without fetching any content: once uploaded, attachments are addressed
// by URL embedded in text documents, so the client has no use for the
// bytes themselves.
func (d *Driver) Pull(ctx context.Context, since int64, persist PersistCursorFunc) (PullResult, error) {
	result := PullResult{LastSeq: since}

	for {
		page, err := d.fetchChanges(ctx, result.LastSeq)
		if err != nil {
			return result, fmt.Errorf("attachsync: fetching changes: %w", err)
		}

		for _, change := range page.Results {
			result.LastSeq = change.Seq
			result.Stats.Pulled++
		}

		if persistErr := persist(result.LastSeq); persistErr != nil {
			return result, fmt.Errorf("attachsync: persisting cursor: %w", persistErr)
		}

		if len(page.Results) < pullBatchSize {
			break
		}
	}

	return result, nil
}

func (d *Driver) fetchChanges(ctx context.Context, since int64) (wire.AttachmentChangesResponse, error) {
	path := fmt.Sprintf("/api/attachments/changes?since=%d&limit=%d&vault_id=%s", since, pullBatchSize, url.QueryEscape(d.VaultID))

	resp, err := d.Transport.Do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return wire.AttachmentChangesResponse{}, err
	}
	defer resp.Body.Close()

	var out wire.AttachmentChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return wire.AttachmentChangesResponse{}, fmt.Errorf("decoding attachment changes response: %w", err)
	}

	return out, nil
}
