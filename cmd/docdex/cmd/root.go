// Package cmd provides the CLI commands for docdex.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/docdex/docdex/internal/config"
	"github.com/docdex/docdex/internal/logging"
	"github.com/docdex/docdex/pkg/version"
)

var (
	rootDir   string
	noColor   bool
	debugMode bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the docdex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docdex",
		Short: "Incremental document indexing for local semantic search",
		Long: `Docdex keeps a vector index over a document corpus up to date
incrementally: it fingerprints documents, re-embeds only what changed,
and reuses cached embeddings for everything else.

Run 'docdex index' in a directory of documents to get started.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("docdex version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&rootDir, "root", "r", ".", "Corpus root directory")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.docdex/logs/")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRunE = teardownLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newGCCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupLogging initializes file logging before any command runs.
func setupLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	cfg.WriteToStderr = false
	if debugMode {
		cfg.Level = "debug"
	}

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		// Logging is not worth failing the command over; fall back to
		// the default stderr handler.
		slog.Warn("file logging unavailable", slog.String("error", err.Error()))
		return nil
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

// teardownLogging flushes and closes the log file.
func teardownLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// loadConfig loads configuration for the --root directory.
func loadConfig() (*config.Config, error) {
	return config.Load(rootDir)
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
