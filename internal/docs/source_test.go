package docs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect drains a source into a path-keyed map.
func collect(t *testing.T, s *FSSource) map[string]Document {
	t.Helper()
	results, err := s.Scan(context.Background())
	require.NoError(t, err)

	docs := make(map[string]Document)
	for res := range results {
		require.Nil(t, res.Err)
		docs[res.Doc.Path] = res.Doc
	}
	return docs
}

func TestFSSource_FindsSupportedFormats(t *testing.T) {
	// Given: a corpus with supported and unsupported files
	root := t.TempDir()
	writeDoc(t, root, "readme.md", "markdown")
	writeDoc(t, root, "data.csv", "a,b\n1,2")
	writeDoc(t, root, "notes.txt", "text")
	writeDoc(t, root, "config.json", "{}")
	writeDoc(t, root, "binary.exe", "nope")
	writeDoc(t, root, "image.png", "nope")

	source, err := NewFSSource(root)
	require.NoError(t, err)

	// When: I scan
	docs := collect(t, source)

	// Then: only supported formats are reported
	assert.Len(t, docs, 4)
	assert.Equal(t, FormatMarkdown, docs["readme.md"].Format)
	assert.Equal(t, FormatCSV, docs["data.csv"].Format)
	assert.NotContains(t, docs, "binary.exe")
}

func TestFSSource_WalksSubdirectories(t *testing.T) {
	// Given: nested documents
	root := t.TempDir()
	writeDoc(t, root, "top.md", "top")
	writeDoc(t, root, "sub/inner.md", "inner")

	source, err := NewFSSource(root)
	require.NoError(t, err)

	// When: I scan
	docs := collect(t, source)

	// Then: nested documents appear with slash-separated relative paths
	assert.Contains(t, docs, "sub/inner.md")
	assert.Len(t, docs, 2)
}

func TestFSSource_SkipsDotDirectories(t *testing.T) {
	// Given: documents inside hidden directories
	root := t.TempDir()
	writeDoc(t, root, "visible.md", "yes")
	writeDoc(t, root, ".docdex/cached.md", "no")
	writeDoc(t, root, ".git/objects.md", "no")

	source, err := NewFSSource(root)
	require.NoError(t, err)

	// Then: hidden trees are not scanned
	docs := collect(t, source)
	assert.Len(t, docs, 1)
	assert.Contains(t, docs, "visible.md")
}

func TestFSSource_SkipsOversized(t *testing.T) {
	// Given: a max file size of 10 bytes
	root := t.TempDir()
	writeDoc(t, root, "small.md", "tiny")
	writeDoc(t, root, "large.md", "this is more than ten bytes of content")

	source, err := NewFSSource(root, WithMaxFileSize(10))
	require.NoError(t, err)

	// Then: the oversized document is skipped
	docs := collect(t, source)
	assert.Len(t, docs, 1)
	assert.Contains(t, docs, "small.md")
}

func TestFSSource_ExcludePatterns(t *testing.T) {
	// Given: an exclude pattern for a directory and a glob
	root := t.TempDir()
	writeDoc(t, root, "keep.md", "keep")
	writeDoc(t, root, "archive/old.md", "skip")
	writeDoc(t, root, "draft_notes.md", "skip")

	source, err := NewFSSource(root, WithExclude([]string{"archive", "draft_*"}))
	require.NoError(t, err)

	// Then: excluded paths are not reported
	docs := collect(t, source)
	assert.Len(t, docs, 1)
	assert.Contains(t, docs, "keep.md")
}

func TestFSSource_PopulatesFingerprint(t *testing.T) {
	// Given: a document with known content
	root := t.TempDir()
	writeDoc(t, root, "a.md", "known content")

	source, err := NewFSSource(root)
	require.NoError(t, err)

	// Then: the document carries its content hash and size
	docs := collect(t, source)
	doc := docs["a.md"]
	assert.NotEmpty(t, doc.Hash)
	assert.Equal(t, int64(len("known content")), doc.Size)
	assert.NotEmpty(t, doc.AbsPath)
}

func TestFSSource_ContextCancellation(t *testing.T) {
	// Given: a corpus and an already-cancelled context
	root := t.TempDir()
	for i := 0; i < 20; i++ {
		writeDoc(t, root, filepath.Join("d", "doc"+string(rune('a'+i))+".md"), "content")
	}
	source, err := NewFSSource(root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// When: I scan with the cancelled context
	results, err := source.Scan(ctx)
	require.NoError(t, err)

	// Then: the stream terminates promptly
	count := 0
	for range results {
		count++
	}
	assert.LessOrEqual(t, count, 20)
}

func TestNewFSSource_RejectsFiles(t *testing.T) {
	// Given: a path that is a file, not a directory
	root := t.TempDir()
	path := filepath.Join(root, "file.md")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	// Then: creation fails
	_, err := NewFSSource(path)
	require.Error(t, err)
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path   string
		format Format
		ok     bool
	}{
		{"a.md", FormatMarkdown, true},
		{"a.markdown", FormatMarkdown, true},
		{"b.PDF", FormatPDF, true},
		{"c.csv", FormatCSV, true},
		{"d.docx", FormatDOCX, true},
		{"e.json", FormatJSON, true},
		{"f.txt", FormatText, true},
		{"g.exe", "", false},
		{"noext", "", false},
	}

	for _, tt := range tests {
		format, ok := DetectFormat(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		if ok {
			assert.Equal(t, tt.format, format, tt.path)
		}
	}
}
