package attachsync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/notesync/notesync/internal/client/settings"
	"github.com/notesync/notesync/internal/wire"
	"github.com/notesync/notesync/pkg/vaultfs"
	"golang.org/x/sync/errgroup"
)

// PersistFunc flushes the metadata cache to durable settings at the end
// of the push phase, mirroring docsync's PersistFunc.
type PersistFunc func() error

// PushResult reports the attachment push phase's outcome.
type PushResult struct {
	Stats Stats
}

// upload is one file's outcome, computed concurrently and then applied to
// shared state (metacache, filesystem, markdown rewrite) sequentially.
type upload struct {
	path string
	url  string
	err  error
	reused bool
}

// Push implements §4.10's push phase: scans allow-listed non-markdown
// files, uploads new/modified ones (bounded at maxConcurrentUploads in
// flight), then rewrites wiki-links across the vault and deletes the
// local copy and cache entry of every attachment that uploaded (or was
// reused) successfully.
func (d *Driver) Push(ctx context.Context, persist PersistFunc) (PushResult, error) {
	entries, err := d.scanAttachments(ctx)
	if err != nil {
		return PushResult{}, fmt.Errorf("attachsync: scanning vault: %w", err)
	}

	var candidates []vaultfs.Entry
	for _, e := range entries {
		meta, hasMeta := d.Meta.GetAttachment(e.Path)
		if hasMeta && meta.AttachmentID != "" && e.ModTime.UnixMilli() <= meta.LastModified {
			continue
		}
		candidates = append(candidates, e)
	}

	if len(candidates) == 0 {
		return PushResult{}, nil
	}

	results := make([]upload, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentUploads)

	var mu sync.Mutex
	var stats Stats

	for i, e := range candidates {
		i, e := i, e
		g.Go(func() error {
			u := d.pushOne(gctx, e)

			mu.Lock()
			if u.err != nil {
				stats.Errors++
			} else if u.reused {
				stats.Reused++
			} else {
				stats.Pushed++
			}
			mu.Unlock()

			results[i] = u
			return nil // per-upload failures do not abort the batch
		})
	}
	_ = g.Wait()

	// Indexed by both the full vault-relative path and the bare filename:
	// Obsidian wiki-link embeds (`![[photo.png]]`) almost always reference
	// an attachment by basename alone, not the folder it lives in (§4.10,
	// §8 scenario 3).
	uploadedURLs := make(map[string]string, len(results)*2)
	for i, u := range results {
		if u.err != nil {
			d.Logger.Error("attachsync: upload failed", slog.String("path", candidates[i].Path), slog.Any("error", u.err))
			continue
		}
		uploadedURLs[u.path] = u.url
		uploadedURLs[filepath.Base(u.path)] = u.url
	}

	rewritten, err := d.rewriteWikiLinks(ctx, uploadedURLs)
	if err != nil {
		d.Logger.Error("attachsync: rewriting wiki-links failed", slog.Any("error", err))
	}
	stats.Rewritten = rewritten

	for _, u := range results {
		if u.err != nil {
			continue
		}
		if err := d.Files.Remove(ctx, u.path); err != nil {
			d.Logger.Error("attachsync: removing synced attachment failed", slog.String("path", u.path), slog.Any("error", err))
			continue
		}
		d.Meta.DeleteAttachment(u.path)
	}

	if err := persist(); err != nil {
		return PushResult{Stats: stats}, fmt.Errorf("attachsync: persisting after push: %w", err)
	}

	return PushResult{Stats: stats}, nil
}

// pushOne uploads (or reuses) one candidate file, returning its outcome.
// Run concurrently by Push, so it must not mutate shared state beyond its
// own result slot.
func (d *Driver) pushOne(ctx context.Context, e vaultfs.Entry) upload {
	content, err := d.Files.ReadFile(ctx, e.Path)
	if err != nil {
		return upload{path: e.Path, err: err}
	}

	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	meta, hasMeta := d.Meta.GetAttachment(e.Path)
	if hasMeta && meta.Hash == hash && meta.AttachmentID != "" {
		return upload{path: e.Path, url: attachmentURL(d.VaultID, meta.AttachmentID), reused: true}
	}

	contentType := mime.TypeByExtension(filepath.Ext(e.Path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	reqPath := fmt.Sprintf("/api/attachments/%s?vault_id=%s", pathEscapeSegments(e.Path), url.QueryEscape(d.VaultID))

	headers := http.Header{}
	headers.Set("Content-Type", contentType)
	headers.Set("X-Content-Hash", hash)
	headers.Set("X-Content-Length", strconv.FormatInt(int64(len(content)), 10))

	resp, err := d.Transport.Do(ctx, http.MethodPut, reqPath, bytes.NewReader(content), headers)
	if err != nil {
		return upload{path: e.Path, err: err}
	}
	defer resp.Body.Close()

	var out wire.AttachmentPutResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return upload{path: e.Path, err: fmt.Errorf("decoding attachment put response: %w", err)}
	}

	d.Meta.SetAttachment(e.Path, settings.AttachmentMeta{
		Path: e.Path, Hash: out.Hash, Size: out.Size, ContentType: out.ContentType,
		LastModified: e.ModTime.UnixMilli(), AttachmentID: out.ID,
	})

	return upload{path: e.Path, url: out.URL}
}

// attachmentURL mirrors the server's own URL construction so a reused
// attachment's link rewrite matches what a fresh PUT would have returned.
func attachmentURL(vault, id string) string {
	return fmt.Sprintf("/api/attachments/%s/content?vault_id=%s", id, vault)
}

// pathEscapeSegments percent-encodes each path segment independently,
// preserving "/" as a literal separator in the outgoing request path
// (mirroring docsync's docId encoding for multi-segment identifiers).
func pathEscapeSegments(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// wikiLinkPattern matches Obsidian-style embeds: ![[path]] or
// ![[path|alt]].
var wikiLinkPattern = regexp.MustCompile(`!\[\[([^\]|]+)(?:\|([^\]]+))?\]\]`)

// scanAttachments walks the vault and returns every allow-listed file.
func (d *Driver) scanAttachments(ctx context.Context) ([]vaultfs.Entry, error) {
	var out []vaultfs.Entry

	err := d.Files.Walk(ctx, func(e vaultfs.Entry) error {
		if isAttachment(strings.ToLower(filepath.Ext(e.Path))) {
			out = append(out, e)
		}
		return nil
	})

	return out, err
}

// rewriteWikiLinks scans every markdown file for wiki-link embeds of any
// path in urls and replaces them with a standard markdown image link to
// the corresponding server URL (§4.10). Returns the number of files
// modified.
func (d *Driver) rewriteWikiLinks(ctx context.Context, urls map[string]string) (int, error) {
	if len(urls) == 0 {
		return 0, nil
	}

	var mdFiles []vaultfs.Entry
	err := d.Files.Walk(ctx, func(e vaultfs.Entry) error {
		if strings.HasSuffix(e.Path, ".md") {
			mdFiles = append(mdFiles, e)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	rewritten := 0

	for _, e := range mdFiles {
		content, err := d.Files.ReadFile(ctx, e.Path)
		if err != nil {
			d.Logger.Error("attachsync: reading document for link rewrite failed", slog.String("path", e.Path), slog.Any("error", err))
			continue
		}

		changed := false
		out := wikiLinkPattern.ReplaceAllFunc(content, func(match []byte) []byte {
			sub := wikiLinkPattern.FindSubmatch(match)
			linkPath := string(sub[1])

			targetURL, ok := urls[linkPath]
			if !ok {
				return match
			}

			alt := linkPath
			if len(sub[2]) > 0 {
				alt = string(sub[2])
			}

			changed = true
			return []byte(fmt.Sprintf("![%s|%s](%s)", alt, linkPath, targetURL))
		})

		if !changed {
			continue
		}

		if err := d.Files.WriteFile(ctx, e.Path, out); err != nil {
			d.Logger.Error("attachsync: writing rewritten document failed", slog.String("path", e.Path), slog.Any("error", err))
			continue
		}

		rewritten++
	}

	return rewritten, nil
}
