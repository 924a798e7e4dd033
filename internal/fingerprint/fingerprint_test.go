package fingerprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytes_Deterministic(t *testing.T) {
	// Given: the same content
	content := []byte("hello world")

	// When: I fingerprint it twice
	h1 := Bytes(content)
	h2 := Bytes(content)

	// Then: the hashes are identical
	assert.Equal(t, h1, h2)
	assert.Len(t, string(h1), 64)
}

func TestBytes_DistinctContent(t *testing.T) {
	// Given: two contents differing by one byte
	h1 := Bytes([]byte("hello world"))
	h2 := Bytes([]byte("hello world!"))

	// Then: the hashes differ
	assert.NotEqual(t, h1, h2)
}

func TestText_MatchesBytes(t *testing.T) {
	// Given: the same content as string and bytes
	assert.Equal(t, Bytes([]byte("chunk text")), Text("chunk text"))
}

func TestFile_MatchesBytes(t *testing.T) {
	// Given: a file on disk
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	content := []byte("document content for hashing")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	// When: I fingerprint the file
	h, err := File(path)
	require.NoError(t, err)

	// Then: it matches the in-memory fingerprint of the same bytes
	assert.Equal(t, Bytes(content), h)
}

func TestFile_Missing(t *testing.T) {
	// When: I fingerprint a missing file
	_, err := File(filepath.Join(t.TempDir(), "nope.txt"))

	// Then: an error is returned
	require.Error(t, err)
}

func TestShort(t *testing.T) {
	h := Text("abc")
	assert.Len(t, h.Short(), 12)
	assert.Equal(t, string(h)[:12], h.Short())
}
