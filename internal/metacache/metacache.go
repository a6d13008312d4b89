// Package metacache is the client metadata cache (C4): in-memory maps
// path->{rev,lastModified} for documents and path->{hash,size,ctype,
// attachmentId,lastModified} for attachments, rehydrated from persisted
// settings at construction and written back through PersistCache.
package metacache

import (
	"fmt"
	"sync"

	"github.com/notesync/notesync/internal/client/settings"
)

// Cache holds the two metadata maps behind a mutex. The sync driver is the
// only caller (§5: "touched only from the sync driver's single logical
// thread"), but the mutex keeps the type safe to share with a concurrent
// status-reporting reader.
type Cache struct {
	mu          sync.Mutex
	docs        map[string]settings.DocMeta
	attachments map[string]settings.AttachmentMeta
}

// New constructs a Cache rehydrated from persisted maps (nil maps become
// empty ones).
func New(docs map[string]settings.DocMeta, attachments map[string]settings.AttachmentMeta) *Cache {
	if docs == nil {
		docs = make(map[string]settings.DocMeta)
	}
	if attachments == nil {
		attachments = make(map[string]settings.AttachmentMeta)
	}

	return &Cache{docs: docs, attachments: attachments}
}

// GetDoc returns the document metadata for path, if any.
func (c *Cache) GetDoc(path string) (settings.DocMeta, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.docs[path]
	return v, ok
}

// SetDoc stores document metadata for path.
func (c *Cache) SetDoc(path string, meta settings.DocMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.docs[path] = meta
}

// DeleteDoc removes the document metadata entry for path.
func (c *Cache) DeleteDoc(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.docs, path)
}

// Docs returns a defensive copy of all document metadata entries.
func (c *Cache) Docs() map[string]settings.DocMeta {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]settings.DocMeta, len(c.docs))
	for k, v := range c.docs {
		out[k] = v
	}
	return out
}

// GetAttachment returns the attachment metadata for path, if any.
func (c *Cache) GetAttachment(path string) (settings.AttachmentMeta, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.attachments[path]
	return v, ok
}

// SetAttachment stores attachment metadata for path.
func (c *Cache) SetAttachment(path string, meta settings.AttachmentMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attachments[path] = meta
}

// DeleteAttachment removes the attachment metadata entry for path.
func (c *Cache) DeleteAttachment(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.attachments, path)
}

// Attachments returns a defensive copy of all attachment metadata entries.
func (c *Cache) Attachments() map[string]settings.AttachmentMeta {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]settings.AttachmentMeta, len(c.attachments))
	for k, v := range c.attachments {
		out[k] = v
	}
	return out
}

// ClearAll empties both maps. Used by the full-sync-required reset
// callback (§7 "Full-sync-required").
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.docs = make(map[string]settings.DocMeta)
	c.attachments = make(map[string]settings.AttachmentMeta)
}

// PersistCache serializes both maps into vaultName's table in f and saves f
// to path. Settings remain the source of truth for cursors; this is the
// fast-path-to-durable sync point called at least once per batch and at
// the end of each sync phase (§5).
func (c *Cache) PersistCache(f *settings.File, vaultName, path string) error {
	v, _ := f.Vault(vaultName)

	v.MetadataCache = c.Docs()
	v.AttachmentCache = c.Attachments()

	f.SetVault(vaultName, v)

	if err := f.Save(path); err != nil {
		return fmt.Errorf("metacache: persisting cache: %w", err)
	}

	return nil
}
