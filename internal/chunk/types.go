// Package chunk splits documents into the units of embedding and
// indexing. Chunking must be deterministic for identical document
// content so that chunk hashes — and therefore cache keys — are stable
// across runs.
package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/docdex/docdex/internal/docs"
	"github.com/docdex/docdex/internal/fingerprint"
)

// Chunking defaults. The window is counted in whitespace tokens.
const (
	DefaultChunkSize    = 256
	DefaultChunkOverlap = 50
)

// Chunk is a contiguous text segment derived from a document.
// Immutable once created; destroyed with its parent document.
type Chunk struct {
	// ID uniquely identifies the chunk within the index. It is derived
	// from the parent path, ordinal, and content hash, so the same text
	// in two documents yields two records that share one cache entry.
	ID string

	// DocPath is the parent document identity.
	DocPath string

	// Ordinal is the chunk's position within the document.
	Ordinal int

	// Text is the chunk content.
	Text string

	// Hash is the content fingerprint of Text alone. This is the
	// embedding cache key: identical text anywhere in the corpus maps
	// to one cached vector.
	Hash fingerprint.Hash
}

// Resolver turns a document into its ordered chunk sequence.
// Implementations wrap format-specific loaders; the built-in resolver
// treats document bytes as plain text.
type Resolver interface {
	Resolve(ctx context.Context, doc docs.Document) ([]Chunk, error)
}

// NewChunk builds a chunk with its derived identity and hash.
func NewChunk(docPath string, ordinal int, text string) Chunk {
	hash := fingerprint.Text(text)
	return Chunk{
		ID:      chunkID(docPath, ordinal, hash),
		DocPath: docPath,
		Ordinal: ordinal,
		Text:    text,
		Hash:    hash,
	}
}

// chunkID derives a stable chunk identity from parent, position, and
// content. Including the ordinal keeps duplicate text within one
// document distinct at the record level.
func chunkID(docPath string, ordinal int, hash fingerprint.Hash) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%s", docPath, ordinal, hash)))
	return hex.EncodeToString(sum[:])[:16]
}
