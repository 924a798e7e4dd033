package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/docdex/docdex/internal/index"
	"github.com/docdex/docdex/internal/ui"
)

// newStatusCmd creates the status command.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index, cache, and embedder status",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			st, err := pipeline.Status(cmd.Context())
			if err != nil {
				out.Error(err)
				return err
			}

			out.Status(st)
			return nil
		},
	}
}
