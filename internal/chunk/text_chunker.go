package chunk

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/docdex/docdex/internal/docs"
	derrors "github.com/docdex/docdex/internal/errors"
)

// TextChunker splits plain text into overlapping word windows.
// For a fixed input the output is always identical, which keeps chunk
// hashes stable across runs.
type TextChunker struct {
	size    int // window size in tokens
	overlap int // tokens shared with the previous window
}

// NewTextChunker creates a chunker with the given window and overlap.
// Invalid values fall back to the defaults.
func NewTextChunker(size, overlap int) *TextChunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 4
		}
	}
	return &TextChunker{size: size, overlap: overlap}
}

// Split produces the ordered chunk sequence for a document's text.
func (c *TextChunker) Split(docPath, text string) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	stride := c.size - c.overlap
	var chunks []Chunk
	for start, ordinal := 0, 0; start < len(words); start, ordinal = start+stride, ordinal+1 {
		end := start + c.size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, NewChunk(docPath, ordinal, strings.Join(words[start:end], " ")))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// FileResolver resolves documents by reading their bytes as plain text
// and splitting with a TextChunker. Format-specific loaders (PDF, DOCX)
// sit outside this core; anything they emit is plain text by the time
// it reaches the chunker.
type FileResolver struct {
	chunker *TextChunker
}

// NewFileResolver creates the built-in plain text resolver.
func NewFileResolver(chunker *TextChunker) *FileResolver {
	if chunker == nil {
		chunker = NewTextChunker(DefaultChunkSize, DefaultChunkOverlap)
	}
	return &FileResolver{chunker: chunker}
}

// Resolve implements Resolver.
func (r *FileResolver) Resolve(ctx context.Context, doc docs.Document) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := doc.AbsPath
	if path == "" {
		path = doc.Path
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, derrors.DocumentReadError(doc.Path, err)
	}

	chunks := r.chunker.Split(doc.Path, string(data))
	if len(chunks) == 0 {
		return nil, nil
	}
	return chunks, nil
}

// Verify interface implementation at compile time.
var _ Resolver = (*FileResolver)(nil)

// String describes the chunker parameters, used in logs.
func (c *TextChunker) String() string {
	return fmt.Sprintf("text(size=%d overlap=%d)", c.size, c.overlap)
}
