package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	derrors "github.com/docdex/docdex/internal/errors"
	"github.com/docdex/docdex/internal/fingerprint"
)

// VectorIndex is an HNSW-backed vector index with per-chunk records.
// Safe for concurrent readers; callers serialize writers.
type VectorIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config Config

	// Chunk ID mapping (string <-> uint64 graph key)
	idMap  map[string]uint64
	keyMap map[uint64]string

	records map[string]Record
	byDoc   map[string][]string // doc path -> chunk IDs

	nextKey uint64
	nextSeq uint64

	closed bool
}

// indexMetadata is the gob sidecar persisted next to the graph file.
type indexMetadata struct {
	IDMap   map[string]uint64
	Records map[string]Record
	NextKey uint64
	NextSeq uint64
	Config  Config
}

// NewVectorIndex creates an empty index with the given configuration.
func NewVectorIndex(cfg Config) (*VectorIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, derrors.New(derrors.ErrCodeInvalidInput,
			fmt.Sprintf("invalid embedding dimension: %d", cfg.Dimensions), nil)
	}
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = DefaultM
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = DefaultEfSearch
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &VectorIndex{
		graph:   graph,
		config:  cfg,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		records: make(map[string]Record),
		byDoc:   make(map[string][]string),
	}, nil
}

// Load opens a persisted index. Any decode failure or internal
// inconsistency surfaces as corrupt state; recovery is a full rebuild,
// never a partial load.
func Load(path string, expectedDims int) (*VectorIndex, error) {
	metaPath := path + ".meta"
	metaFile, err := os.Open(metaPath)
	if err != nil {
		return nil, derrors.CorruptStateError("vector index", fmt.Errorf("open metadata: %w", err))
	}
	defer func() { _ = metaFile.Close() }()

	var meta indexMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return nil, derrors.CorruptStateError("vector index", fmt.Errorf("decode metadata: %w", err))
	}

	if expectedDims > 0 && meta.Config.Dimensions != expectedDims {
		return nil, derrors.New(derrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("index has %d dimensions, expected %d", meta.Config.Dimensions, expectedDims), nil).
			WithDetail("path", path)
	}

	idx, err := NewVectorIndex(meta.Config)
	if err != nil {
		return nil, derrors.CorruptStateError("vector index", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, derrors.CorruptStateError("vector index", fmt.Errorf("open graph: %w", err))
	}
	defer func() { _ = file.Close() }()

	// coder/hnsw Import requires an io.ByteReader
	if err := idx.graph.Import(bufio.NewReader(file)); err != nil {
		return nil, derrors.CorruptStateError("vector index", fmt.Errorf("import graph: %w", err))
	}

	idx.idMap = meta.IDMap
	idx.records = meta.Records
	idx.nextKey = meta.NextKey
	idx.nextSeq = meta.NextSeq
	if idx.idMap == nil {
		idx.idMap = make(map[string]uint64)
	}
	if idx.records == nil {
		idx.records = make(map[string]Record)
	}

	idx.keyMap = make(map[uint64]string, len(idx.idMap))
	idx.byDoc = make(map[string][]string)
	for id, key := range idx.idMap {
		idx.keyMap[key] = id
	}

	// Records and ID mappings must agree; a mismatch means the sidecar
	// and graph are from different generations.
	for id := range idx.idMap {
		rec, ok := idx.records[id]
		if !ok {
			return nil, derrors.CorruptStateError("vector index",
				fmt.Errorf("chunk %s has a vector but no record", id))
		}
		idx.byDoc[rec.DocPath] = append(idx.byDoc[rec.DocPath], id)
	}
	for id := range idx.records {
		if _, ok := idx.idMap[id]; !ok {
			return nil, derrors.CorruptStateError("vector index",
				fmt.Errorf("chunk %s has a record but no vector", id))
		}
	}

	return idx, nil
}

// Add inserts a chunk vector with its record. Re-adding an existing
// chunk ID replaces it via lazy deletion.
func (x *VectorIndex) Add(ctx context.Context, rec Record, vec []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return fmt.Errorf("index is closed")
	}

	if len(vec) != x.config.Dimensions {
		return derrors.New(derrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("vector has %d dimensions, index expects %d", len(vec), x.config.Dimensions), nil).
			WithDetail("chunk_id", rec.ChunkID)
	}

	// Lazy deletion: orphan the old graph node rather than removing it.
	// coder/hnsw misbehaves when the last node is deleted.
	if existingKey, exists := x.idMap[rec.ChunkID]; exists {
		delete(x.keyMap, existingKey)
		delete(x.idMap, rec.ChunkID)
		x.dropFromDoc(rec.ChunkID)
	}

	key := x.nextKey
	x.nextKey++
	rec.Seq = x.nextSeq
	x.nextSeq++

	v := make([]float32, len(vec))
	copy(v, vec)
	if x.config.Metric == "cos" {
		normalizeInPlace(v)
	}

	x.graph.Add(hnsw.MakeNode(key, v))
	x.idMap[rec.ChunkID] = key
	x.keyMap[key] = rec.ChunkID
	x.records[rec.ChunkID] = rec
	x.byDoc[rec.DocPath] = append(x.byDoc[rec.DocPath], rec.ChunkID)

	return nil
}

// RemoveByDoc removes every chunk belonging to a document.
// Returns the number of chunks removed.
func (x *VectorIndex) RemoveByDoc(docPath string) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return 0
	}

	ids := x.byDoc[docPath]
	for _, id := range ids {
		if key, exists := x.idMap[id]; exists {
			delete(x.keyMap, key)
			delete(x.idMap, id)
		}
		delete(x.records, id)
	}
	delete(x.byDoc, docPath)
	return len(ids)
}

// Search finds the k nearest chunks to the query vector. Results are
// ordered by score descending, with insertion order breaking ties so
// identical corpora return identical rankings.
func (x *VectorIndex) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return nil, fmt.Errorf("index is closed")
	}

	if len(query) != x.config.Dimensions {
		return nil, derrors.New(derrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query has %d dimensions, index expects %d", len(query), x.config.Dimensions), nil)
	}

	if k <= 0 || x.graph.Len() == 0 || len(x.idMap) == 0 {
		return []SearchResult{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if x.config.Metric == "cos" {
		normalizeInPlace(q)
	}

	// Over-fetch to cover lazily deleted nodes still in the graph.
	orphans := x.graph.Len() - len(x.idMap)
	fetch := k + orphans
	if fetch > x.graph.Len() {
		fetch = x.graph.Len()
	}

	nodes := x.graph.Search(q, fetch)

	results := make([]SearchResult, 0, k)
	for _, node := range nodes {
		id, exists := x.keyMap[node.Key]
		if !exists {
			continue // lazily deleted
		}
		distance := x.graph.Distance(q, node.Value)
		results = append(results, SearchResult{
			Record:   x.records[id],
			Distance: distance,
			Score:    distanceToScore(distance, x.config.Metric),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.Seq < results[j].Record.Seq
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Contains reports whether a chunk ID is indexed.
func (x *VectorIndex) Contains(chunkID string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return false
	}
	_, exists := x.idMap[chunkID]
	return exists
}

// Count returns the number of live chunks.
func (x *VectorIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return 0
	}
	return len(x.idMap)
}

// Docs returns the number of distinct documents with indexed chunks.
func (x *VectorIndex) Docs() int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return 0
	}
	return len(x.byDoc)
}

// Dimensions returns the configured embedding dimension.
func (x *VectorIndex) Dimensions() int {
	return x.config.Dimensions
}

// ReferencedHashes returns the set of chunk content hashes currently
// referenced by the index. Input to the cache maintenance sweep.
func (x *VectorIndex) ReferencedHashes() map[fingerprint.Hash]bool {
	x.mu.RLock()
	defer x.mu.RUnlock()

	refs := make(map[fingerprint.Hash]bool, len(x.records))
	for _, rec := range x.records {
		refs[rec.ChunkHash] = true
	}
	return refs
}

// Stats describes graph occupancy, including orphans left behind by
// lazy deletion.
type Stats struct {
	LiveChunks int
	GraphNodes int
	Orphans    int
	Documents  int
}

// Stats returns index occupancy statistics.
func (x *VectorIndex) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return Stats{}
	}

	return Stats{
		LiveChunks: len(x.idMap),
		GraphNodes: x.graph.Len(),
		Orphans:    x.graph.Len() - len(x.idMap),
		Documents:  len(x.byDoc),
	}
}

// Save persists the index atomically: graph and metadata sidecar are
// each written to a temp file and renamed into place.
func (x *VectorIndex) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return fmt.Errorf("index is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return derrors.Wrap(derrors.ErrCodeIndexPersist, fmt.Errorf("create directory: %w", err))
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return derrors.Wrap(derrors.ErrCodeIndexPersist, fmt.Errorf("create graph file: %w", err))
	}
	if err := x.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return derrors.Wrap(derrors.ErrCodeIndexPersist, fmt.Errorf("export graph: %w", err))
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return derrors.Wrap(derrors.ErrCodeIndexPersist, fmt.Errorf("close graph file: %w", err))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return derrors.Wrap(derrors.ErrCodeIndexPersist, fmt.Errorf("rename graph file: %w", err))
	}

	if err := x.saveMetadata(path + ".meta"); err != nil {
		return derrors.Wrap(derrors.ErrCodeIndexPersist, err)
	}
	return nil
}

// saveMetadata writes the gob sidecar atomically.
func (x *VectorIndex) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := indexMetadata{
		IDMap:   x.idMap,
		Records: x.records,
		NextKey: x.nextKey,
		NextSeq: x.nextSeq,
		Config:  x.config,
	}

	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Exists reports whether a persisted index is present at path.
func Exists(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	if _, err := os.Stat(path + ".meta"); err != nil {
		return false
	}
	return true
}

// ReadDimensions reads the embedding dimension from a persisted
// index's metadata. Returns 0 if no index exists yet.
func ReadDimensions(path string) (int, error) {
	file, err := os.Open(path + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open index metadata: %w", err)
	}
	defer func() { _ = file.Close() }()

	var meta indexMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return 0, derrors.CorruptStateError("vector index", fmt.Errorf("decode metadata: %w", err))
	}
	return meta.Config.Dimensions, nil
}

// Close releases the graph.
func (x *VectorIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return nil
	}
	x.closed = true
	x.graph = nil
	return nil
}

// dropFromDoc removes one chunk ID from its document's list.
// Caller holds the write lock.
func (x *VectorIndex) dropFromDoc(chunkID string) {
	rec, ok := x.records[chunkID]
	if !ok {
		return
	}
	ids := x.byDoc[rec.DocPath]
	for i, id := range ids {
		if id == chunkID {
			x.byDoc[rec.DocPath] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(x.byDoc[rec.DocPath]) == 0 {
		delete(x.byDoc, rec.DocPath)
	}
}

// normalizeInPlace normalizes a vector to unit length in place.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore converts a distance to a 0-1 similarity score.
func distanceToScore(distance float32, metric string) float32 {
	switch metric {
	case "l2":
		return 1.0 / (1.0 + distance)
	default:
		// Cosine distance ranges 0 (identical) to 2 (opposite).
		return 1.0 - distance/2.0
	}
}
