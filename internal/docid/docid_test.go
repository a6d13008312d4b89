package docid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromPathStripsMarkdownSuffix(t *testing.T) {
	assert.Equal(t, "notes/today", FromPath("notes/today.md"))
}

func TestFromPathLeavesNonMarkdownExtensionsAlone(t *testing.T) {
	assert.Equal(t, "assets/photo.png", FromPath("assets/photo.png"))
}

func TestFromPathNormalizesBackslashSeparators(t *testing.T) {
	assert.Equal(t, "notes/sub/today", FromPath(`notes\sub\today.md`))
}

func TestFromPathNFCNormalizesComposedAndDecomposedForms(t *testing.T) {
	// NFD: "e" followed by a combining acute accent (U+0301), versus NFC's
	// single precomposed code point (U+00E9) -- distinct byte sequences
	// that must still resolve to the same docId.
	decomposed := "notes/café.md"
	precomposed := "notes/café.md"
	require.NotEqual(t, precomposed, decomposed)

	assert.Equal(t, FromPath(precomposed), FromPath(decomposed))
	assert.Equal(t, "notes/café", FromPath(decomposed))
}

func TestToPathRestoresMarkdownSuffix(t *testing.T) {
	assert.Equal(t, "notes/today.md", ToPath("notes/today"))
}

func TestFromPathToPathRoundTrip(t *testing.T) {
	path := "journal/2026/07-31.md"
	assert.Equal(t, path, ToPath(FromPath(path)))
}
