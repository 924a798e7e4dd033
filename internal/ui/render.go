package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docdex/docdex/internal/index"
	"github.com/docdex/docdex/internal/store"
)

// Renderer writes formatted command output.
type Renderer struct {
	out    io.Writer
	styles Styles
}

// NewRenderer creates a renderer. noColor forces plain output
// regardless of TTY detection.
func NewRenderer(out io.Writer, noColor bool) *Renderer {
	return &Renderer{
		out:    out,
		styles: GetStyles(noColor || !IsTTY()),
	}
}

// Report prints a refresh summary.
func (r *Renderer) Report(rep *index.Report) {
	s := r.styles

	if rep.Added == 0 && rep.Modified == 0 && rep.Removed == 0 {
		if len(rep.Failed) == 0 {
			fmt.Fprintln(r.out, s.Success.Render(fmt.Sprintf(
				"Index up to date (%d documents unchanged)", rep.Unchanged)))
			return
		}
		fmt.Fprintln(r.out, s.Warning.Render(fmt.Sprintf(
			"No changes applied (%d documents unreadable, %d unchanged)",
			len(rep.Failed), rep.Unchanged)))
		for _, fail := range rep.Failed {
			fmt.Fprintf(r.out, "  %s %s: %v\n", s.Error.Render("failed:"), fail.Path, fail.Err)
		}
		return
	}

	fmt.Fprintln(r.out, s.Header.Render("Index updated"))
	fmt.Fprintf(r.out, "  %s %d added, %d modified, %d removed, %d unchanged\n",
		s.Label.Render("documents:"), rep.Added, rep.Modified, rep.Removed, rep.Unchanged)
	fmt.Fprintf(r.out, "  %s %d indexed, %d removed\n",
		s.Label.Render("chunks:   "), rep.ChunksIndexed, rep.ChunksRemoved)
	fmt.Fprintf(r.out, "  %s %d computed, %d cache hits\n",
		s.Label.Render("embed:    "), rep.EmbedComputed, rep.EmbedCacheHits)
	fmt.Fprintf(r.out, "  %s %s\n",
		s.Label.Render("duration: "), rep.Duration.Round(time.Millisecond))

	for _, fail := range rep.Failed {
		fmt.Fprintf(r.out, "  %s %s: %v\n", s.Error.Render("failed:"), fail.Path, fail.Err)
	}
}

// SearchResults prints ranked query hits with a text preview.
func (r *Renderer) SearchResults(query string, results []store.SearchResult, previews map[string]string) {
	s := r.styles

	if len(results) == 0 {
		fmt.Fprintln(r.out, s.Dim.Render(fmt.Sprintf("No results for %q", query)))
		return
	}

	fmt.Fprintln(r.out, s.Header.Render(fmt.Sprintf("Results for %q", query)))
	for i, res := range results {
		fmt.Fprintf(r.out, "%s %s %s\n",
			s.Score.Render(fmt.Sprintf("%2d. [%.3f]", i+1, res.Score)),
			s.Path.Render(res.Record.DocPath),
			s.Dim.Render(fmt.Sprintf("#%d", res.Record.Ordinal)))

		if preview, ok := previews[res.Record.ChunkID]; ok && preview != "" {
			fmt.Fprintf(r.out, "    %s\n", s.Label.Render(truncate(preview, 160)))
		}
	}
}

// Status prints the index status summary.
func (r *Renderer) Status(st *index.Status) {
	s := r.styles

	fmt.Fprintln(r.out, s.Header.Render("Index status"))
	fmt.Fprintf(r.out, "  %s %d\n", s.Label.Render("documents:    "), st.Documents)
	fmt.Fprintf(r.out, "  %s %d\n", s.Label.Render("chunks:       "), st.Chunks)
	fmt.Fprintf(r.out, "  %s %d\n", s.Label.Render("cache entries:"), st.CacheLen)
	fmt.Fprintf(r.out, "  %s %d\n", s.Label.Render("dimensions:   "), st.Dimensions)
	fmt.Fprintf(r.out, "  %s %s\n", s.Label.Render("model:        "), st.ModelName)

	if st.Orphans > 0 {
		fmt.Fprintf(r.out, "  %s %d stale graph nodes (compacted on rebuild)\n",
			s.Dim.Render("orphans:      "), st.Orphans)
	}
	if !st.EmbedderOK {
		fmt.Fprintln(r.out, s.Error.Render("  embedder unavailable"))
	}
}

// Error prints a command failure.
func (r *Renderer) Error(err error) {
	fmt.Fprintln(r.out, r.styles.Error.Render(fmt.Sprintf("Error: %v", err)))
}

// Info prints a neutral informational line.
func (r *Renderer) Info(msg string) {
	fmt.Fprintln(r.out, r.styles.Label.Render(msg))
}

// Success prints a positive completion line.
func (r *Renderer) Success(msg string) {
	fmt.Fprintln(r.out, r.styles.Success.Render(msg))
}

// truncate shortens text to max runes, collapsing whitespace.
func truncate(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}
