package cli

import (
	"errors"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show search metrics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if searchService == nil {
			return errors.New("search service not configured")
		}
		m := searchService.Metrics()
		cmd.Printf("Searches:    %d (%d ok, %d failed)\n", m.TotalSearches, m.Succeeded, m.Failed)
		cmd.Printf("Cache:       %d hits, %d misses\n", m.CacheHits, m.CacheMisses)
		cmd.Printf("Avg latency: %s\n", m.AvgLatency.Round(time.Millisecond))

		platforms := make([]string, 0, len(m.Platforms))
		for p := range m.Platforms {
			platforms = append(platforms, p)
		}
		sort.Strings(platforms)
		for _, p := range platforms {
			pm := m.Platforms[p]
			cmd.Printf("  %-8s %d attempts, %d ok, %d failed, avg %s\n",
				p, pm.Attempts, pm.Successes, pm.Failures, pm.AvgLatency.Round(time.Millisecond))
		}
		return nil
	},
}

var metricsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Zero all search metrics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if searchService == nil {
			return errors.New("search service not configured")
		}
		searchService.ResetMetrics()
		cmd.Println("Metrics reset.")
		return nil
	},
}

func init() {
	metricsCmd.AddCommand(metricsResetCmd)
	rootCmd.AddCommand(metricsCmd)
}
