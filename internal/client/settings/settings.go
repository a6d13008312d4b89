// Package settings persists the client's per-vault configuration and
// runtime sync state (cursors and metadata caches) to a TOML file, mirroring
// the teacher's internal/config layout: one table per named entity
// ("[vault.NAME]" here instead of "[profile.NAME]"), loaded through one
// resolver, used as the single source of truth for cursors across runs.
package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DocMeta is the per-path document bookkeeping entry from §3 "Client
// metadata": {rev, lastModified}, lastModified is millisecond wall time.
type DocMeta struct {
	Path         string `toml:"path"`
	Rev          string `toml:"rev"`
	LastModified int64  `toml:"last_modified"`
}

// AttachmentMeta is the per-path attachment bookkeeping entry.
type AttachmentMeta struct {
	Path         string `toml:"path"`
	Hash         string `toml:"hash"`
	Size         int64  `toml:"size"`
	ContentType  string `toml:"content_type"`
	LastModified int64  `toml:"last_modified"`
	AttachmentID string `toml:"attachment_id"`
}

// VaultSettings is one vault's persisted state: connection details, sync
// preferences, cursors, and the two metadata caches.
type VaultSettings struct {
	LocalPath       string `toml:"local_path"`
	ServerURL       string `toml:"server_url"`
	APIKey          string `toml:"api_key"`
	VaultID         string `toml:"vault_id"`
	AutoSync        bool   `toml:"auto_sync"`
	SyncInterval    string `toml:"sync_interval"`
	SyncOnStartup   bool   `toml:"sync_on_startup"`
	SyncOnSave      bool   `toml:"sync_on_save"`
	SyncAttachments bool   `toml:"sync_attachments"`
	Paused          bool   `toml:"paused"`

	LastSync          int64 `toml:"last_sync"`
	LastSeq           int64 `toml:"last_seq"`
	LastAttachmentSeq int64 `toml:"last_attachment_seq"`

	MetadataCache   map[string]DocMeta        `toml:"metadata_cache"`
	AttachmentCache map[string]AttachmentMeta `toml:"attachment_cache"`
}

// File is the top-level TOML document: one named [vault.NAME] table per
// configured vault, following the teacher's [profile.NAME] convention.
type File struct {
	Vaults map[string]VaultSettings `toml:"vault"`
}

// DefaultPath returns the default settings file location,
// "~/.config/notesync/config.toml", matching the path named in SPEC_FULL's
// ambient-stack section.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("settings: resolving user config dir: %w", err)
	}

	return filepath.Join(dir, "notesync", "config.toml"), nil
}

// Load reads and parses the settings file at path. A missing file is not
// an error: it returns an empty File so first-run works without a config
// wizard.
func Load(path string) (*File, error) {
	f := &File{Vaults: make(map[string]VaultSettings)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: reading %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), f); err != nil {
		return nil, fmt.Errorf("settings: parsing %s: %w", path, err)
	}

	if f.Vaults == nil {
		f.Vaults = make(map[string]VaultSettings)
	}

	return f, nil
}

// Save writes f to path atomically (write to a temp file, then rename),
// creating parent directories as needed.
func (f *File) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("settings: creating config dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.toml")
	if err != nil {
		return fmt.Errorf("settings: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	enc := toml.NewEncoder(tmp)
	if err := enc.Encode(f); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("settings: encoding: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("settings: closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("settings: renaming into place: %w", err)
	}

	return nil
}

// Vault returns the named vault's settings and whether it was present.
func (f *File) Vault(name string) (VaultSettings, bool) {
	v, ok := f.Vaults[name]
	return v, ok
}

// SetVault stores (or replaces) the named vault's settings.
func (f *File) SetVault(name string, v VaultSettings) {
	if f.Vaults == nil {
		f.Vaults = make(map[string]VaultSettings)
	}
	f.Vaults[name] = v
}
