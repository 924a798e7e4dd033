// Package store maintains the persistent vector index. The index pairs
// an HNSW graph with a record table mapping chunk IDs to their source
// document, ordinal, and content hash, so document-level removal and
// cache sweeps can run without re-reading documents.
package store

import (
	"github.com/docdex/docdex/internal/fingerprint"
)

// Default HNSW parameters.
const (
	DefaultM        = 16
	DefaultEfSearch = 20
)

// Config configures the vector index.
type Config struct {
	// Dimensions is the embedding dimension. Fixed at creation; vectors
	// of any other width are rejected.
	Dimensions int

	// M is the HNSW connectivity parameter.
	M int

	// EfSearch is the HNSW search expansion factor.
	EfSearch int

	// Metric is the distance metric ("cos" or "l2").
	Metric string
}

// Record is the index-side bookkeeping for one chunk. Seq is a
// monotonic insertion counter used to break score ties
// deterministically.
type Record struct {
	ChunkID   string
	ChunkHash fingerprint.Hash
	DocPath   string
	Ordinal   int
	Seq       uint64
}

// SearchResult is one query hit.
type SearchResult struct {
	Record   Record
	Distance float32
	Score    float32
}
