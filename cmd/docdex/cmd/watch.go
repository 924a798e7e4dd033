package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docdex/docdex/internal/docs"
	"github.com/docdex/docdex/internal/index"
	"github.com/docdex/docdex/internal/ui"
	"github.com/docdex/docdex/internal/watcher"
)

// newWatchCmd creates the watch command.
func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the corpus and refresh the index on changes",
		Long: `Watch runs an initial refresh, then keeps the index up to date as
documents change. Filesystem events are debounced; each trigger runs a
full incremental scan, so bursts of edits cost one refresh.

Stop with Ctrl-C.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd)
		},
	}
}

func runWatch(cmd *cobra.Command) error {
	out := ui.NewRenderer(os.Stdout, noColor)

	cfg, err := loadConfig()
	if err != nil {
		out.Error(err)
		return err
	}

	pipeline, err := index.Open(cfg, index.Options{})
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

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	refresh := func() {
		report, err := pipeline.Refresh(ctx, source)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			out.Error(err)
			return
		}
		out.Report(report)
	}

	refresh()

	w, err := watcher.New(cfg.Paths.DocsDir, cfg.Watch.Debounce)
	if err != nil {
		out.Error(err)
		return err
	}
	if err := w.Start(ctx); err != nil {
		out.Error(err)
		return err
	}
	defer func() { _ = w.Stop() }()

	out.Info("Watching " + cfg.Paths.DocsDir + " (Ctrl-C to stop)")

	for {
		select {
		case <-ctx.Done():
			out.Info("Stopped")
			return nil
		case <-w.Triggers():
			refresh()
		case err := <-w.Errors():
			out.Error(err)
		}
	}
}
