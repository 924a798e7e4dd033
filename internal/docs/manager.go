package docs

import (
	"context"
	"log/slog"
	"sort"

	derrors "github.com/docdex/docdex/internal/errors"
)

// Manager owns the manifest snapshot and produces diffs against it.
// It never touches the vector index or the embedding cache; the caller
// applies the diff and only then commits the new snapshot.
type Manager struct {
	manifestPath string
	snapshot     *Manifest
}

// NewManager loads the last manifest snapshot for the given path.
// A corrupt snapshot is a CorruptState error; recovery is a full
// rebuild via Reset, never a partial load.
func NewManager(manifestPath string) (*Manager, error) {
	snapshot, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, derrors.CorruptStateError("manifest", err)
	}
	return &Manager{
		manifestPath: manifestPath,
		snapshot:     snapshot,
	}, nil
}

// NewEmptyManager returns a manager with an empty snapshot, as if no
// manifest had ever been committed. Forced rebuilds and corrupt-snapshot
// recovery both start here: every current document scans as added.
func NewEmptyManager(manifestPath string) *Manager {
	return &Manager{
		manifestPath: manifestPath,
		snapshot:     NewManifest(),
	}
}

// Reset discards the snapshot so the next scan reports every current
// document as added. Used on the corruption rebuild path and for
// forced reindexing.
func (m *Manager) Reset() {
	m.snapshot = NewManifest()
}

// Tracked returns the documents in the current snapshot, sorted by path.
func (m *Manager) Tracked() []Document {
	out := make([]Document, 0, len(m.snapshot.Documents))
	for _, d := range m.snapshot.Documents {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Scan enumerates the source and diffs it against the snapshot.
// The diff is a pure set-difference over fingerprints: absent from the
// snapshot means added, hash changed means modified, hash equal means
// unchanged, and snapshot entries with no current document are removed.
// Per-document read failures land in Diff.Failed without aborting; the
// failed document keeps its snapshot entry so the next successful read
// classifies it correctly.
func (m *Manager) Scan(ctx context.Context, source Source) (*Diff, error) {
	results, err := source.Scan(ctx)
	if err != nil {
		return nil, derrors.Wrap(derrors.ErrCodeDocumentRead, err)
	}

	diff := &Diff{}
	seen := make(map[string]bool, len(m.snapshot.Documents))

	for res := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if res.Err != nil {
			seen[res.Err.Path] = true
			diff.Failed = append(diff.Failed, *res.Err)
			slog.Warn("document unreadable, keeping previous state",
				slog.String("path", res.Err.Path),
				slog.String("error", res.Err.Err.Error()))
			continue
		}

		doc := res.Doc
		seen[doc.Path] = true

		prev, known := m.snapshot.Documents[doc.Path]
		switch {
		case !known:
			diff.Added = append(diff.Added, doc)
		case prev.Hash != doc.Hash:
			diff.Modified = append(diff.Modified, doc)
		default:
			diff.Unchanged = append(diff.Unchanged, doc)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for path, doc := range m.snapshot.Documents {
		if !seen[path] {
			diff.Removed = append(diff.Removed, doc)
		}
	}

	sortDiff(diff)

	slog.Info("document scan complete",
		slog.Int("added", len(diff.Added)),
		slog.Int("modified", len(diff.Modified)),
		slog.Int("removed", len(diff.Removed)),
		slog.Int("unchanged", len(diff.Unchanged)),
		slog.Int("failed", len(diff.Failed)))

	return diff, nil
}

// Commit persists the post-diff snapshot atomically. Called only after
// the index update for the same diff succeeded; a crash before Commit
// leaves the prior snapshot active, so the next scan reproduces the
// same diff and the run is retried from scratch.
func (m *Manager) Commit(diff *Diff) error {
	next := NewManifest()

	for _, doc := range diff.Unchanged {
		next.Documents[doc.Path] = doc
	}
	for _, doc := range diff.Added {
		next.Documents[doc.Path] = doc
	}
	for _, doc := range diff.Modified {
		next.Documents[doc.Path] = doc
	}
	// Unreadable documents keep their previous entry.
	for _, fail := range diff.Failed {
		if prev, ok := m.snapshot.Documents[fail.Path]; ok {
			next.Documents[fail.Path] = prev
		}
	}

	if err := next.Save(m.manifestPath); err != nil {
		return derrors.Wrap(derrors.ErrCodeManifestWrite, err)
	}

	m.snapshot = next
	return nil
}

// sortDiff orders every partition by path for deterministic processing.
func sortDiff(d *Diff) {
	byPath := func(docs []Document) {
		sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	}
	byPath(d.Added)
	byPath(d.Modified)
	byPath(d.Removed)
	byPath(d.Unchanged)
	sort.Slice(d.Failed, func(i, j int) bool { return d.Failed[i].Path < d.Failed[j].Path })
}
