package docs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docdex/docdex/internal/fingerprint"
)

func TestLoadManifest_Missing(t *testing.T) {
	// Given: no manifest on disk
	path := filepath.Join(t.TempDir(), "manifest.json")

	// When: I load it
	m, err := LoadManifest(path)

	// Then: an empty snapshot is returned, not an error
	require.NoError(t, err)
	assert.Empty(t, m.Documents)
}

func TestManifest_SaveAndLoad(t *testing.T) {
	// Given: a manifest with one document
	path := filepath.Join(t.TempDir(), "manifest.json")
	m := NewManifest()
	m.Documents["a.md"] = Document{
		Path:    "a.md",
		Hash:    fingerprint.Text("content"),
		Size:    7,
		ModTime: time.Now().UTC().Truncate(time.Second),
		Format:  FormatMarkdown,
	}

	// When: I save and reload it
	require.NoError(t, m.Save(path))
	loaded, err := LoadManifest(path)
	require.NoError(t, err)

	// Then: the document round-trips
	require.Len(t, loaded.Documents, 1)
	assert.Equal(t, m.Documents["a.md"].Hash, loaded.Documents["a.md"].Hash)
}

func TestManifest_SaveIsAtomic(t *testing.T) {
	// Given: a previously saved manifest
	path := filepath.Join(t.TempDir(), "manifest.json")
	m := NewManifest()
	m.Documents["a.md"] = Document{Path: "a.md", Hash: "h1"}
	require.NoError(t, m.Save(path))

	// When: I save a new version
	m.Documents["b.md"] = Document{Path: "b.md", Hash: "h2"}
	require.NoError(t, m.Save(path))

	// Then: no temp file is left behind
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	// And: the final file holds the new version
	loaded, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Len(t, loaded.Documents, 2)
}

func TestLoadManifest_Corrupt(t *testing.T) {
	// Given: garbage on disk
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	// When: I load it
	_, err := LoadManifest(path)

	// Then: the corruption surfaces as an error
	require.Error(t, err)
}
