package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docdex/docdex/internal/index"
	"github.com/docdex/docdex/internal/ui"
)

// newSearchCmd creates the search command.
func newSearchCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), topK)
		},
	}

	cmd.Flags().IntVarP(&topK, "limit", "k", 0, "Maximum number of results (default from config)")
	return cmd
}

func runSearch(cmd *cobra.Command, query string, topK int) error {
	out := ui.NewRenderer(os.Stdout, noColor)

	cfg, err := loadConfig()
	if err != nil {
		out.Error(err)
		return err
	}
	if topK <= 0 {
		topK = cfg.Search.TopK
	}

	pipeline, err := index.Open(cfg, index.Options{})
	if err != nil {
		out.Error(err)
		return err
	}
	defer func() { _ = pipeline.Close() }()

	results, err := pipeline.Query(cmd.Context(), query, topK)
	if err != nil {
		out.Error(err)
		return err
	}

	out.SearchResults(query, results, nil)
	return nil
}
