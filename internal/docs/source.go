package docs

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/docdex/docdex/internal/fingerprint"
)

// DefaultMaxFileSize is the default maximum document size (10MB).
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// FSSource enumerates supported documents under a root directory.
type FSSource struct {
	root        string
	maxFileSize int64
	exclude     []string
}

// FSOption configures an FSSource.
type FSOption func(*FSSource)

// WithMaxFileSize overrides the maximum document size.
func WithMaxFileSize(n int64) FSOption {
	return func(s *FSSource) { s.maxFileSize = n }
}

// WithExclude adds path patterns to skip. Patterns match path segments
// ("archive" skips archive/ anywhere) or glob against the base name.
func WithExclude(patterns []string) FSOption {
	return func(s *FSSource) { s.exclude = patterns }
}

// NewFSSource creates a filesystem document source rooted at dir.
func NewFSSource(dir string, opts ...FSOption) (*FSSource, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve docs dir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat docs dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("docs path is not a directory: %s", abs)
	}

	s := &FSSource{
		root:        abs,
		maxFileSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the absolute docs root.
func (s *FSSource) Root() string { return s.root }

// Scan walks the root and streams one Result per supported document.
// Unreadable documents yield a Result with Err set; the walk continues.
func (s *FSSource) Scan(ctx context.Context) (<-chan Result, error) {
	results := make(chan Result, 64)

	go func() {
		defer close(results)
		s.walk(ctx, results)
	}()

	return results, nil
}

func (s *FSSource) walk(ctx context.Context, results chan<- Result) {
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // inaccessible entries are skipped, not fatal
		}

		relPath, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		if relPath == "." {
			return nil
		}

		if d.IsDir() {
			if s.excluded(relPath, d.Name()) || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		format, ok := DetectFormat(relPath)
		if !ok || s.excluded(relPath, d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		if info.Size() > s.maxFileSize {
			slog.Warn("skipping oversized document",
				slog.String("path", relPath),
				slog.Int64("size", info.Size()),
				slog.Int64("max", s.maxFileSize))
			return nil
		}

		doc := Document{
			Path:    filepath.ToSlash(relPath),
			AbsPath: path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Format:  format,
		}

		hash, err := fingerprint.File(path)
		if err != nil {
			select {
			case results <- Result{Doc: doc, Err: &DocumentError{Path: doc.Path, Err: err}}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		}
		doc.Hash = hash

		select {
		case results <- Result{Doc: doc}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && err != context.Canceled {
		slog.Warn("document walk aborted", slog.String("error", err.Error()))
	}
}

// excluded checks a relative path against the exclude patterns.
func (s *FSSource) excluded(relPath, base string) bool {
	for _, pattern := range s.exclude {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		for _, part := range strings.Split(relPath, string(filepath.Separator)) {
			if part == pattern {
				return true
			}
		}
	}
	return false
}
