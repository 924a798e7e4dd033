package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/docdex/docdex/internal/docs"
	"github.com/docdex/docdex/internal/index"
	"github.com/docdex/docdex/internal/ui"
)

// newIndexCmd creates the index command.
func newIndexCmd() *cobra.Command {
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Scan the corpus and update the index incrementally",
		Long: `Index scans the document corpus, diffs it against the last run,
and updates the vector index for added, modified, and removed documents.
Unchanged documents are skipped entirely.

With --rebuild the snapshot and index are discarded and every document
is reprocessed. Cached embeddings survive a rebuild.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, rebuild)
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Discard the index and reprocess every document")
	return cmd
}

func runIndex(cmd *cobra.Command, rebuild bool) error {
	out := ui.NewRenderer(os.Stdout, noColor)

	cfg, err := loadConfig()
	if err != nil {
		out.Error(err)
		return err
	}

	pipeline, err := index.Open(cfg, index.Options{Rebuild: rebuild})
	if err != nil {
		out.Error(err)
		return err
	}
	defer func() { _ = pipeline.Close() }()

	source, err := docs.NewFSSource(cfg.Paths.DocsDir,
		docs.WithMaxFileSize(cfg.Indexing.MaxFileSize),
		docs.WithExclude(cfg.Indexing.Exclude))
	if err != nil {
		out.Error(err)
		return err
	}

	report, err := pipeline.Refresh(cmd.Context(), source)
	if err != nil {
		out.Error(err)
		return err
	}

	out.Report(report)
	return nil
}
