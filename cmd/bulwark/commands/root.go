package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	profilePaths []string
	verbose      bool
	jsonOutput   bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bulwark",
		Short: "Bulwark - Resilient Execution Toolkit",
		Long: `Bulwark runs operations under named resilience profiles: retry with
backoff, fault-kind filtering, fallback values, and wall-clock timeouts.

Features:
  - Named profiles loaded from YAML or JSON, hot-reloadable
  - Retry policies with exponential backoff and fault matching
  - Timeout guards that abandon overrunning workers
  - Automatic decoration of capability sets
  - Prometheus metrics for retries, timeouts, and wrap failures`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			applyVerbosity()
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringSliceVarP(&profilePaths, "profiles", "p", nil, "profile file or directory paths")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newProfilesCommand())

	return rootCmd
}

// applyVerbosity lowers the global log level when --verbose is set.
func applyVerbosity() {
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}
