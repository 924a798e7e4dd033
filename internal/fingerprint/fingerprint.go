// Package fingerprint computes content hashes for documents and chunks.
// Hashes are the identity layer for change detection and for the
// content-addressed embedding cache: identical bytes always produce the
// same hash, so unrelated edits never invalidate unrelated entries.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Hash is a hex-encoded SHA-256 digest.
type Hash string

// String implements fmt.Stringer.
func (h Hash) String() string { return string(h) }

// Short returns a truncated form for logging and display.
func (h Hash) Short() string {
	if len(h) > 12 {
		return string(h[:12])
	}
	return string(h)
}

// Bytes computes the fingerprint of a byte slice.
func Bytes(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// Text computes the fingerprint of a text chunk. Chunk hashes are
// derived from the text alone, independent of the parent document, so
// identical text across documents maps to one cache entry.
func Text(text string) Hash {
	return Bytes([]byte(text))
}

// File computes the fingerprint of a file's contents by streaming,
// avoiding loading large documents into memory. I/O errors propagate
// to the caller unchanged.
func File(path string) (Hash, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return Hash(hex.EncodeToString(h.Sum(nil))), nil
}
