// Package docs tracks the document corpus: it enumerates documents from
// a source, fingerprints them, and diffs the result against the last
// persisted manifest snapshot to detect additions, removals, and
// modifications across runs.
package docs

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/docdex/docdex/internal/fingerprint"
)

// Format is the document format tag. Each supported format is resolved
// to plain text by an external loader before chunking; the tag only
// records provenance.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatDOCX     Format = "docx"
	FormatJSON     Format = "json"
	FormatText     Format = "text"
)

// supportedExtensions maps file extensions to format tags.
// The set mirrors what the document loaders understand.
var supportedExtensions = map[string]Format{
	".pdf":      FormatPDF,
	".csv":      FormatCSV,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".docx":     FormatDOCX,
	".json":     FormatJSON,
	".txt":      FormatText,
}

// DetectFormat returns the format tag for a path, and whether the
// format is supported at all.
func DetectFormat(path string) (Format, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	f, ok := supportedExtensions[ext]
	return f, ok
}

// Document is a tracked source document. Identity is the path relative
// to the docs root; the content hash drives change detection.
type Document struct {
	// Path is the stable identity, relative to the docs root.
	Path string `json:"path"`

	// AbsPath is where the document can be read from. Not persisted.
	AbsPath string `json:"-"`

	// Hash is the content fingerprint of the raw bytes.
	Hash fingerprint.Hash `json:"hash"`

	// Size is the document size in bytes.
	Size int64 `json:"size"`

	// ModTime is the last modification time observed at scan.
	ModTime time.Time `json:"mod_time"`

	// Format is the detected format tag.
	Format Format `json:"format"`
}

// DocumentError records a per-document scan failure. Failures never
// abort the scan; the caller decides whether to retry or skip.
type DocumentError struct {
	Path string
	Err  error
}

func (e DocumentError) Error() string {
	return "document " + e.Path + ": " + e.Err.Error()
}

func (e DocumentError) Unwrap() error { return e.Err }

// Diff partitions the document set between the last snapshot and the
// current scan. A modified document is always fully reprocessed;
// chunk boundaries are never patched in place.
type Diff struct {
	Added     []Document
	Removed   []Document
	Modified  []Document
	Unchanged []Document

	// Failed holds documents that could not be read this scan. They
	// keep their previous snapshot entry so a later successful read is
	// classified correctly.
	Failed []DocumentError
}

// Empty reports whether the diff carries no changes.
func (d *Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Changed returns the documents that need (re)processing.
func (d *Diff) Changed() []Document {
	out := make([]Document, 0, len(d.Added)+len(d.Modified))
	out = append(out, d.Added...)
	out = append(out, d.Modified...)
	return out
}

// DropChanged moves documents from the Added/Modified partitions into
// Failed. Used when processing a document fails after the scan: the
// document must not enter the next snapshot as successfully indexed.
func (d *Diff) DropChanged(failed []DocumentError) {
	drop := make(map[string]bool, len(failed))
	for _, f := range failed {
		drop[f.Path] = true
	}

	keep := func(docs []Document) []Document {
		out := docs[:0]
		for _, doc := range docs {
			if !drop[doc.Path] {
				out = append(out, doc)
			}
		}
		return out
	}
	d.Added = keep(d.Added)
	d.Modified = keep(d.Modified)
	d.Failed = append(d.Failed, failed...)
}

// Result is one entry streamed from a Source.
type Result struct {
	Doc Document
	Err *DocumentError
}

// Source enumerates the current document set. Implementations stream
// results and must honor context cancellation. The returned channel is
// closed when enumeration completes.
type Source interface {
	Scan(ctx context.Context) (<-chan Result, error)
}
