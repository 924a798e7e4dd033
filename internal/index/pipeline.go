// Package index orchestrates the incremental indexing pipeline:
// scan the corpus, diff against the last snapshot, embed what changed,
// update the vector index, persist, and only then commit the snapshot.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/docdex/docdex/internal/cache"
	"github.com/docdex/docdex/internal/chunk"
	"github.com/docdex/docdex/internal/config"
	"github.com/docdex/docdex/internal/docs"
	"github.com/docdex/docdex/internal/embed"
	derrors "github.com/docdex/docdex/internal/errors"
	"github.com/docdex/docdex/internal/store"
)

// LockFileName is the cross-process advisory lock under the data dir.
const LockFileName = "docdex.lock"

// Pipeline coordinates the indexing collaborators. One writer at a
// time: concurrent refreshes are rejected, reads stay available
// against the last committed state throughout.
type Pipeline struct {
	manager  *docs.Manager
	cache    *cache.Store
	vectors  *store.VectorIndex
	resolver chunk.Resolver
	embedder embed.Embedder

	indexPath string
	fileLock  *flock.Flock
	workers   int

	updateMu sync.Mutex // held for the duration of one Refresh
	sf       singleflight.Group
}

// Options configures Open.
type Options struct {
	// Rebuild discards the manifest snapshot and the persisted index so
	// the next refresh reprocesses everything. The embedding cache is
	// kept; unchanged chunk text still hits it.
	Rebuild bool
}

// Open wires a pipeline from configuration: manifest manager, embedding
// cache, vector index, chunker, and embedder.
func Open(cfg *config.Config, opts Options) (*Pipeline, error) {
	rebuild := opts.Rebuild

	var manager *docs.Manager
	if rebuild {
		manager = docs.NewEmptyManager(cfg.ManifestPath())
	} else {
		var err error
		manager, err = docs.NewManager(cfg.ManifestPath())
		if err != nil {
			if derrors.GetCode(err) != derrors.ErrCodeCorruptState {
				return nil, err
			}
			// Corrupt snapshot recovery is a full rebuild: empty manifest,
			// fresh index. Embeddings still come from the durable cache.
			slog.Warn("manifest snapshot is corrupt, rebuilding",
				slog.String("error", err.Error()))
			manager = docs.NewEmptyManager(cfg.ManifestPath())
			rebuild = true
		}
	}

	cacheStore, err := cache.Open(cfg.CachePath(), cache.Options{
		HotSize: cfg.Embeddings.CacheSize,
	})
	if err != nil {
		return nil, err
	}

	embedder := embed.NewCachedEmbedder(
		embed.NewStaticEmbedder(cfg.Embeddings.Dimensions),
		cfg.Embeddings.CacheSize,
	)

	var vectors *store.VectorIndex
	indexPath := cfg.IndexPath()
	switch {
	case rebuild:
		vectors, err = store.NewVectorIndex(store.Config{Dimensions: embedder.Dimensions()})
	case store.Exists(indexPath):
		vectors, err = store.Load(indexPath, embedder.Dimensions())
		if err != nil && derrors.GetCode(err) == derrors.ErrCodeCorruptState {
			// The snapshot must be discarded with the index, otherwise the
			// next scan reports everything unchanged and nothing reindexes.
			slog.Warn("vector index is corrupt, rebuilding",
				slog.String("error", err.Error()))
			manager.Reset()
			vectors, err = store.NewVectorIndex(store.Config{Dimensions: embedder.Dimensions()})
		}
	default:
		vectors, err = store.NewVectorIndex(store.Config{Dimensions: embedder.Dimensions()})
	}
	if err != nil {
		_ = cacheStore.Close()
		return nil, err
	}

	resolver := chunk.NewFileResolver(chunk.NewTextChunker(
		cfg.Indexing.ChunkSize, cfg.Indexing.ChunkOverlap))

	return &Pipeline{
		manager:   manager,
		cache:     cacheStore,
		vectors:   vectors,
		resolver:  resolver,
		embedder:  embedder,
		indexPath: indexPath,
		fileLock:  flock.New(filepath.Join(cfg.Paths.DataDir, LockFileName)),
		workers:   cfg.Indexing.Workers,
	}, nil
}

// New wires a pipeline from explicit collaborators. Used by tests; no
// cross-process lock is taken.
func New(manager *docs.Manager, cacheStore *cache.Store, vectors *store.VectorIndex,
	resolver chunk.Resolver, embedder embed.Embedder, indexPath string, workers int) *Pipeline {
	if workers <= 0 {
		workers = 1
	}
	return &Pipeline{
		manager:   manager,
		cache:     cacheStore,
		vectors:   vectors,
		resolver:  resolver,
		embedder:  embedder,
		indexPath: indexPath,
		workers:   workers,
	}
}

// Report summarizes one refresh.
type Report struct {
	Added     int
	Modified  int
	Removed   int
	Unchanged int
	Failed    []docs.DocumentError

	ChunksIndexed  int
	ChunksRemoved  int
	EmbedComputed  int
	EmbedCacheHits int

	Duration time.Duration
}

// String renders a one-line summary.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d added, %d modified, %d removed, %d unchanged",
		r.Added, r.Modified, r.Removed, r.Unchanged)
	if len(r.Failed) > 0 {
		fmt.Fprintf(&b, ", %d failed", len(r.Failed))
	}
	fmt.Fprintf(&b, " (%d chunks indexed, %d embedded, %d cache hits, %s)",
		r.ChunksIndexed, r.EmbedComputed, r.EmbedCacheHits, r.Duration.Round(time.Millisecond))
	return b.String()
}

// Refresh runs one scan/diff/apply/persist/commit cycle against the
// source. A second refresh while one is in flight is rejected
// immediately rather than queued.
func (p *Pipeline) Refresh(ctx context.Context, source docs.Source) (*Report, error) {
	if !p.updateMu.TryLock() {
		return nil, derrors.New(derrors.ErrCodeUpdateInFlight,
			"an index update is already in progress", nil)
	}
	defer p.updateMu.Unlock()

	if p.fileLock != nil {
		locked, err := p.fileLock.TryLock()
		if err != nil {
			return nil, derrors.Wrap(derrors.ErrCodeUpdateInFlight, err)
		}
		if !locked {
			return nil, derrors.New(derrors.ErrCodeUpdateInFlight,
				"another process holds the index lock", nil)
		}
		defer func() { _ = p.fileLock.Unlock() }()
	}

	start := time.Now()

	diff, err := p.manager.Scan(ctx, source)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Added:     len(diff.Added),
		Modified:  len(diff.Modified),
		Removed:   len(diff.Removed),
		Unchanged: len(diff.Unchanged),
		Failed:    diff.Failed,
	}

	if diff.Empty() {
		report.Duration = time.Since(start)
		if len(diff.Failed) > 0 {
			slog.Warn("no changes applied, some documents unreadable",
				slog.Int("failed", len(diff.Failed)),
				slog.Int("unchanged", report.Unchanged))
		} else {
			slog.Info("index up to date", slog.Int("unchanged", report.Unchanged))
		}
		return report, nil
	}

	if err := p.applyDiff(ctx, diff, report); err != nil {
		return nil, err
	}

	// Persist order matters: index first, snapshot last. A crash in
	// between leaves the old snapshot active, so the next refresh
	// reproduces the same diff and overwrites the partial index state.
	if err := p.vectors.Save(p.indexPath); err != nil {
		return nil, err
	}
	if err := p.manager.Commit(diff); err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)
	slog.Info("refresh complete", slog.String("summary", report.String()))
	return report, nil
}

// applyDiff mutates the in-memory index to match the diff: removals
// first, then added and modified documents chunk by chunk.
func (p *Pipeline) applyDiff(ctx context.Context, diff *docs.Diff, report *Report) error {
	for _, doc := range diff.Removed {
		report.ChunksRemoved += p.vectors.RemoveByDoc(doc.Path)
	}
	// Modified documents are fully re-chunked; drop their old records
	// before inserting the new generation.
	for _, doc := range diff.Modified {
		report.ChunksRemoved += p.vectors.RemoveByDoc(doc.Path)
	}

	var failed []docs.DocumentError
	for _, doc := range diff.Changed() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.indexDocument(ctx, doc, report); err != nil {
			if derrors.IsFatal(err) || ctx.Err() != nil {
				return err
			}
			// Document-level failure: roll back its partial chunks and
			// keep its previous snapshot entry for the next run.
			p.vectors.RemoveByDoc(doc.Path)
			failed = append(failed, docs.DocumentError{Path: doc.Path, Err: err})
			slog.Warn("document indexing failed",
				slog.String("path", doc.Path),
				slog.String("error", err.Error()))
		}
	}

	if len(failed) > 0 {
		diff.DropChanged(failed)
		report.Failed = append(report.Failed, failed...)
		report.Added = len(diff.Added)
		report.Modified = len(diff.Modified)
	}
	return nil
}

// indexDocument chunks one document, resolves embeddings through the
// cache, and inserts the records. Chunks of one document embed
// concurrently; any chunk failure fails the whole document.
func (p *Pipeline) indexDocument(ctx context.Context, doc docs.Document, report *Report) error {
	chunks, err := p.resolver.Resolve(ctx, doc)
	if err != nil {
		return err
	}

	vecs := make([][]float32, len(chunks))
	var hits, computed int
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, c := range chunks {
		g.Go(func() error {
			vec, fromCache, err := p.resolveEmbedding(gctx, c)
			if err != nil {
				return err
			}
			mu.Lock()
			vecs[i] = vec
			if fromCache {
				hits++
			} else {
				computed++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Insertion stays sequential and ordered so Seq follows ordinals.
	for i, c := range chunks {
		rec := store.Record{
			ChunkID:   c.ID,
			ChunkHash: c.Hash,
			DocPath:   c.DocPath,
			Ordinal:   c.Ordinal,
		}
		if err := p.vectors.Add(ctx, rec, vecs[i]); err != nil {
			return err
		}
	}

	report.ChunksIndexed += len(chunks)
	report.EmbedCacheHits += hits
	report.EmbedComputed += computed
	return nil
}

// embedOutcome carries a singleflight result.
type embedOutcome struct {
	vec      []float32
	computed bool
}

// resolveEmbedding returns the vector for a chunk, from the durable
// cache when present. Concurrent requests for the same content hash
// collapse into a single computation.
func (p *Pipeline) resolveEmbedding(ctx context.Context, c chunk.Chunk) ([]float32, bool, error) {
	v, err, _ := p.sf.Do(string(c.Hash), func() (any, error) {
		if vec, ok, err := p.cache.Get(ctx, c.Hash); err != nil {
			return nil, err
		} else if ok {
			return embedOutcome{vec: vec}, nil
		}

		vec, err := p.embedder.Embed(ctx, c.Text)
		if err != nil {
			return nil, derrors.EmbeddingError(c.ID, err)
		}
		if err := p.cache.Put(ctx, c.Hash, vec, p.embedder.ModelName()); err != nil {
			return nil, err
		}
		return embedOutcome{vec: vec, computed: true}, nil
	})
	if err != nil {
		return nil, false, err
	}
	out := v.(embedOutcome)
	return out.vec, !out.computed, nil
}

// Query embeds the query text and searches the index. Reads never
// block on a refresh; they see the last applied state.
func (p *Pipeline) Query(ctx context.Context, text string, k int) ([]store.SearchResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, derrors.New(derrors.ErrCodeQueryEmpty, "query text is empty", nil)
	}
	if k <= 0 {
		k = config.DefaultTopK
	}

	vec, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return nil, derrors.EmbeddingError("query", err)
	}
	return p.vectors.Search(ctx, vec, k)
}

// Sweep evicts cache entries no longer referenced by any indexed
// chunk. Explicit maintenance only; never runs inline with a refresh.
func (p *Pipeline) Sweep(ctx context.Context) (int, error) {
	return p.cache.Sweep(ctx, p.vectors.ReferencedHashes())
}

// Status describes the current index state.
type Status struct {
	Documents  int
	Chunks     int
	GraphNodes int
	Orphans    int
	CacheLen   int
	Dimensions int
	EmbedderOK bool
	ModelName  string
}

// Status reports index, cache, and embedder state.
func (p *Pipeline) Status(ctx context.Context) (*Status, error) {
	stats := p.vectors.Stats()
	cacheLen, err := p.cache.Len(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{
		Documents:  stats.Documents,
		Chunks:     stats.LiveChunks,
		GraphNodes: stats.GraphNodes,
		Orphans:    stats.Orphans,
		CacheLen:   cacheLen,
		Dimensions: p.vectors.Dimensions(),
		EmbedderOK: p.embedder.Available(ctx),
		ModelName:  p.embedder.ModelName(),
	}, nil
}

// Tracked returns the documents in the committed snapshot.
func (p *Pipeline) Tracked() []docs.Document {
	return p.manager.Tracked()
}

// Close releases the cache, index, and embedder.
func (p *Pipeline) Close() error {
	var firstErr error
	if err := p.cache.Close(); err != nil {
		firstErr = err
	}
	if err := p.vectors.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := p.embedder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
