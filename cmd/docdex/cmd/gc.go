package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/docdex/docdex/internal/index"
	"github.com/docdex/docdex/internal/ui"
)

// newGCCmd creates the gc command.
func newGCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Evict cached embeddings no longer referenced by the index",
		Long: `Gc removes embedding cache entries whose chunk text no longer
appears anywhere in the indexed corpus. The cache is content-addressed,
so entries stay valid indefinitely; gc only reclaims disk space.`,
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

			evicted, err := pipeline.Sweep(cmd.Context())
			if err != nil {
				out.Error(err)
				return err
			}

			if evicted == 0 {
				out.Info("Cache is clean, nothing to evict")
			} else {
				out.Success(fmt.Sprintf("Evicted %d unreferenced cache entries", evicted))
			}
			return nil
		},
	}
}
