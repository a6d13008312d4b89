package metacache

import (
	"path/filepath"
	"testing"

	"github.com/notesync/notesync/internal/client/settings"
	"github.com/stretchr/testify/require"
)

func TestNewRehydratesFromNilMaps(t *testing.T) {
	c := New(nil, nil)
	require.Empty(t, c.Docs())
	require.Empty(t, c.Attachments())
}

func TestDocRoundTrip(t *testing.T) {
	c := New(nil, nil)

	c.SetDoc("notes/a.md", settings.DocMeta{Path: "notes/a.md", Rev: "1-abc", LastModified: 100})

	got, ok := c.GetDoc("notes/a.md")
	require.True(t, ok)
	require.Equal(t, "1-abc", got.Rev)

	c.DeleteDoc("notes/a.md")
	_, ok = c.GetDoc("notes/a.md")
	require.False(t, ok)
}

func TestAttachmentRoundTrip(t *testing.T) {
	c := New(nil, nil)

	c.SetAttachment("assets/img.png", settings.AttachmentMeta{Path: "assets/img.png", Hash: "abc"})

	got, ok := c.GetAttachment("assets/img.png")
	require.True(t, ok)
	require.Equal(t, "abc", got.Hash)
}

func TestClearAll(t *testing.T) {
	c := New(nil, nil)
	c.SetDoc("a", settings.DocMeta{Path: "a"})
	c.SetAttachment("b", settings.AttachmentMeta{Path: "b"})

	c.ClearAll()

	require.Empty(t, c.Docs())
	require.Empty(t, c.Attachments())
}

func TestPersistCache(t *testing.T) {
	c := New(nil, nil)
	c.SetDoc("notes/a.md", settings.DocMeta{Path: "notes/a.md", Rev: "1-abc"})

	f := &settings.File{Vaults: map[string]settings.VaultSettings{
		"default": {ServerURL: "https://example.com", LastSeq: 5},
	}}

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, c.PersistCache(f, "default", path))

	loaded, err := settings.Load(path)
	require.NoError(t, err)

	v, ok := loaded.Vault("default")
	require.True(t, ok)
	require.EqualValues(t, 5, v.LastSeq)
	require.Equal(t, "1-abc", v.MetadataCache["notes/a.md"].Rev)
}
