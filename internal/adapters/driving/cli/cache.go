package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clear the result cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show result cache statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if searchService == nil {
			return errors.New("search service not configured")
		}
		stats := searchService.CacheStats()
		cmd.Printf("Entries:  %d / %d\n", stats.Size, stats.MaxSize)
		cmd.Printf("Hit rate: %.1f%%\n", stats.HitRate*100)
		for _, e := range stats.Entries {
			cmd.Printf("  %s  age=%s ttl=%s results=%d\n",
				e.Key[:12], e.Age.Round(time.Second), e.TTL, e.Results)
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop all cached search results",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if searchService == nil {
			return errors.New("search service not configured")
		}
		searchService.ClearCache()
		cmd.Println("Cache cleared.")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
