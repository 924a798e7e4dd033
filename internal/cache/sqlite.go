// Package cache persists computed embeddings keyed by chunk content
// hash. Entries are content-addressed: identical text always maps to
// the same key, so edits elsewhere in a document never invalidate
// unrelated entries. Entries are immutable once written — inserted or
// evicted, never overwritten.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	derrors "github.com/docdex/docdex/internal/errors"
	"github.com/docdex/docdex/internal/fingerprint"
)

// DefaultHotSize is the default in-memory LRU size fronting the store.
const DefaultHotSize = 1000

// Store is the durable embedding cache. SQLite gives random access by
// key on the lookup hot path; an LRU front avoids repeated point reads
// for hashes touched within one run.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	hot    *lru.Cache[fingerprint.Hash, []float32]
	closed bool
}

// Options configures the cache store.
type Options struct {
	// HotSize is the in-memory LRU capacity (default: 1000).
	HotSize int
}

// Open opens (or creates) the embedding cache at path.
// An empty path opens an in-memory store for testing.
func Open(path string, opts Options) (*Store, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, derrors.Wrap(derrors.ErrCodeCacheIO, err)
	}

	// Single writer keeps SQLite lock contention away
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, derrors.Wrap(derrors.ErrCodeCacheIO, fmt.Errorf("set pragma: %w", err))
		}
	}

	hotSize := opts.HotSize
	if hotSize <= 0 {
		hotSize = DefaultHotSize
	}
	hot, _ := lru.New[fingerprint.Hash, []float32](hotSize)

	s := &Store{
		db:   db,
		path: path,
		hot:  hot,
	}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, derrors.Wrap(derrors.ErrCodeCacheIO, fmt.Errorf("initialize schema: %w", err))
	}

	return s, nil
}

// initSchema creates the embeddings table.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS embeddings (
		chunk_hash TEXT PRIMARY KEY,
		dims       INTEGER NOT NULL,
		vector     BLOB NOT NULL,
		model      TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the cached vector for a chunk hash if present.
// It never computes anything on a miss. The returned slice is a private
// copy; callers may mutate it without corrupting later lookups.
func (s *Store) Get(ctx context.Context, hash fingerprint.Hash) ([]float32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, fmt.Errorf("cache is closed")
	}

	if vec, ok := s.hot.Get(hash); ok {
		return slices.Clone(vec), true, nil
	}

	var dims int
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT dims, vector FROM embeddings WHERE chunk_hash = ?`, string(hash)).
		Scan(&dims, &blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, derrors.Wrap(derrors.ErrCodeCacheIO, err)
	}

	vec, err := decodeVector(blob, dims)
	if err != nil {
		// A malformed row is corruption, not a miss; surface it.
		return nil, false, derrors.CorruptStateError("embedding cache", err)
	}

	s.hot.Add(hash, vec)
	return slices.Clone(vec), true, nil
}

// Put inserts a vector for a chunk hash. A put for an existing key is a
// no-op: entries are immutable, which makes concurrent computations of
// the same chunk race-free by construction.
func (s *Store) Put(ctx context.Context, hash fingerprint.Hash, vec []float32, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("cache is closed")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO embeddings (chunk_hash, dims, vector, model, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		string(hash), len(vec), encodeVector(vec), model, time.Now().Unix())
	if err != nil {
		return derrors.Wrap(derrors.ErrCodeCacheIO, err)
	}

	s.hot.Add(hash, slices.Clone(vec))
	return nil
}

// Evict removes entries by hash. Used by the maintenance sweep for
// chunks with no surviving references.
func (s *Store) Evict(ctx context.Context, hashes []fingerprint.Hash) error {
	if len(hashes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("cache is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return derrors.Wrap(derrors.ErrCodeCacheIO, err)
	}
	for _, hash := range hashes {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM embeddings WHERE chunk_hash = ?`, string(hash)); err != nil {
			_ = tx.Rollback()
			return derrors.Wrap(derrors.ErrCodeCacheIO, err)
		}
		s.hot.Remove(hash)
	}
	if err := tx.Commit(); err != nil {
		return derrors.Wrap(derrors.ErrCodeCacheIO, err)
	}
	return nil
}

// Hashes returns every chunk hash currently stored.
func (s *Store) Hashes(ctx context.Context) ([]fingerprint.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("cache is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT chunk_hash FROM embeddings`)
	if err != nil {
		return nil, derrors.Wrap(derrors.ErrCodeCacheIO, err)
	}
	defer func() { _ = rows.Close() }()

	var hashes []fingerprint.Hash
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, derrors.Wrap(derrors.ErrCodeCacheIO, err)
		}
		hashes = append(hashes, fingerprint.Hash(h))
	}
	return hashes, rows.Err()
}

// Sweep evicts entries whose hash is absent from the referenced set.
// It runs only during an explicit maintenance pass, never inline with a
// lookup. Returns the number of evicted entries.
func (s *Store) Sweep(ctx context.Context, referenced map[fingerprint.Hash]bool) (int, error) {
	all, err := s.Hashes(ctx)
	if err != nil {
		return 0, err
	}

	var orphans []fingerprint.Hash
	for _, h := range all {
		if !referenced[h] {
			orphans = append(orphans, h)
		}
	}

	if len(orphans) == 0 {
		return 0, nil
	}
	if err := s.Evict(ctx, orphans); err != nil {
		return 0, err
	}
	return len(orphans), nil
}

// Len returns the number of stored entries.
func (s *Store) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("cache is closed")
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n); err != nil {
		return 0, derrors.Wrap(derrors.ErrCodeCacheIO, err)
	}
	return n, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
