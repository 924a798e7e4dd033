package chunk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docdex/docdex/internal/docs"
)

// words builds a test document of n numbered words.
func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestSplit_Deterministic(t *testing.T) {
	// Given: a chunker and fixed content
	c := NewTextChunker(8, 2)
	text := words(30)

	// When: I split the same content twice
	a := c.Split("doc.md", text)
	b := c.Split("doc.md", text)

	// Then: the chunk sequences are identical, including hashes and IDs
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
		assert.Equal(t, a[i].Hash, b[i].Hash)
		assert.Equal(t, a[i].Text, b[i].Text)
	}
}

func TestSplit_WindowAndOverlap(t *testing.T) {
	// Given: window 10, overlap 4 (stride 6) and 22 words
	c := NewTextChunker(10, 4)

	// When: I split
	chunks := c.Split("doc.md", words(22))

	// Then: chunks cover [0,10), [6,16), [12,22)
	require.Len(t, chunks, 3)
	assert.True(t, strings.HasPrefix(chunks[0].Text, "w0 "))
	assert.True(t, strings.HasPrefix(chunks[1].Text, "w6 "))
	assert.True(t, strings.HasPrefix(chunks[2].Text, "w12 "))
	assert.True(t, strings.HasSuffix(chunks[2].Text, "w21"))

	// And: ordinals are sequential
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Ordinal)
	}
}

func TestSplit_ShortDocument(t *testing.T) {
	// Given: fewer words than one window
	c := NewTextChunker(256, 50)

	// When: I split
	chunks := c.Split("doc.md", "just a few words")

	// Then: a single chunk holds everything
	require.Len(t, chunks, 1)
	assert.Equal(t, "just a few words", chunks[0].Text)
}

func TestSplit_EmptyDocument(t *testing.T) {
	c := NewTextChunker(256, 50)
	assert.Empty(t, c.Split("doc.md", ""))
	assert.Empty(t, c.Split("doc.md", "   \n\t  "))
}

func TestSplit_SameTextSharesHashAcrossDocs(t *testing.T) {
	// Given: identical content in two documents
	c := NewTextChunker(8, 2)
	text := words(5)

	a := c.Split("a.md", text)
	b := c.Split("b.md", text)

	// Then: chunk IDs differ (distinct records) but hashes match
	// (shared cache entry)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.NotEqual(t, a[0].ID, b[0].ID)
	assert.Equal(t, a[0].Hash, b[0].Hash)
}

func TestSplit_DuplicateTextWithinDocDistinctIDs(t *testing.T) {
	// Given: a document whose windows repeat exactly
	c := NewTextChunker(2, 0)
	chunks := c.Split("doc.md", "same pair same pair")

	// Then: both chunks share a hash but keep distinct IDs via ordinal
	require.Len(t, chunks, 2)
	assert.Equal(t, chunks[0].Hash, chunks[1].Hash)
	assert.NotEqual(t, chunks[0].ID, chunks[1].ID)
}

func TestNewTextChunker_FallsBackOnInvalid(t *testing.T) {
	// Given: invalid parameters
	c := NewTextChunker(0, -1)

	// Then: defaults apply and splitting works
	chunks := c.Split("doc.md", words(300))
	require.NotEmpty(t, chunks)
}

func TestFileResolver_ReadsAndSplits(t *testing.T) {
	// Given: a document on disk
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(path, []byte(words(20)), 0o644))

	r := NewFileResolver(NewTextChunker(8, 2))
	doc := docs.Document{Path: "doc.md", AbsPath: path}

	// When: I resolve it
	chunks, err := r.Resolve(context.Background(), doc)
	require.NoError(t, err)

	// Then: chunks carry the document path
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.Equal(t, "doc.md", ch.DocPath)
	}
}

func TestFileResolver_MissingFile(t *testing.T) {
	// Given: a document that does not exist
	r := NewFileResolver(nil)
	doc := docs.Document{Path: "gone.md", AbsPath: filepath.Join(t.TempDir(), "gone.md")}

	// Then: a read error is returned
	_, err := r.Resolve(context.Background(), doc)
	require.Error(t, err)
}
