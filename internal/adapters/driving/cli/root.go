// Package cli implements the parley command-line interface.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/parley-cli/internal/core/ports/driven"
	"github.com/custodia-labs/parley-cli/internal/core/ports/driving"
	"github.com/custodia-labs/parley-cli/internal/logger"
)

// Injected by main before Execute.
var (
	searchService driving.SearchService
	registry      driving.AdapterRegistry
	configStore   driven.PlatformConfigStore
)

var (
	version = "dev"
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Search your messages across platforms",
	Long: `Parley searches messages across connected platforms (Lark, Slack,
Gmail) from one place, merging and ranking the results by recency.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

// Configure injects the services the commands run against.
func Configure(s driving.SearchService, r driving.AdapterRegistry, cs driven.PlatformConfigStore) {
	searchService = s
	registry = r
	configStore = cs
}

// SetVersion sets the version string printed by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command. Cancelling ctx aborts running searches.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
