// Package cli provides the command-line interface for docforge.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/docforge/docforge/internal/config"
	"github.com/docforge/docforge/internal/logging"
)

var (
	// Global flags
	cfgFile string
	verbose bool

	// Global logger
	logger *logging.Logger
)

// Version information - set by main package at startup.
var (
	Version   = "v1.0.0-dev"
	BuildTime = "unknown"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "docforge",
		Short: "Docforge - document ingestion and job orchestration service",
		Long: `Docforge ` + Version + ` - Built: ` + BuildTime + `
Service that accepts document uploads, extracts ZIP archives,
deduplicates content per tenant bucket, converts documents to final
artifacts, and delivers them to the downstream GX ingestion service.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewLogger("cli", true)
			if verbose {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.Version = Version + " (" + BuildTime + ")"

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCreateUploadCmd())
	rootCmd.AddCommand(newPresignPartCmd())
	rootCmd.AddCommand(newCompleteUploadCmd())
	rootCmd.AddCommand(newTriggerCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newFilesCmd())
	rootCmd.AddCommand(newMetricsCmd())
	rootCmd.AddCommand(newTerminateCmd())
	rootCmd.AddCommand(newTerminateAllCmd())
	rootCmd.AddCommand(newRetryCmd())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig resolves the configuration from the --config flag, the
// DOCFORGE_CONFIG environment variable, or the default path.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = os.Getenv("DOCFORGE_CONFIG")
	}
	return config.Load(path)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
