package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/parley-cli/internal/core/domain"
	"github.com/custodia-labs/parley-cli/internal/core/ports/driving"
)

var (
	searchPlatforms  []string
	searchLimit      int
	searchPage       int
	searchSince      string
	searchUntil      string
	searchSender     string
	searchType       string
	searchJSON       bool
	searchNoCache    bool
	searchTimeout    time.Duration
	searchSequential bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search messages across connected platforms",
	Long: `Searches every connected platform (or the ones given with --platform)
and prints the merged results, newest first.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringSliceVarP(&searchPlatforms, "platform", "p", nil, "platform name or config ID (repeatable)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "results per page (default 20)")
	searchCmd.Flags().IntVar(&searchPage, "page", 1, "result page")
	searchCmd.Flags().StringVar(&searchSince, "since", "", "only messages on or after this date (YYYY-MM-DD)")
	searchCmd.Flags().StringVar(&searchUntil, "until", "", "only messages before this date (YYYY-MM-DD)")
	searchCmd.Flags().StringVar(&searchSender, "sender", "", "only messages from a matching sender")
	searchCmd.Flags().StringVar(&searchType, "type", "", "only messages of this type (text, file, image)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().BoolVar(&searchNoCache, "no-cache", false, "bypass the result cache")
	searchCmd.Flags().DurationVar(&searchTimeout, "timeout", 0, "overall search timeout")
	searchCmd.Flags().BoolVar(&searchSequential, "sequential", false, "search platforms one at a time")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errors.New("search service not configured")
	}

	req := domain.SearchRequest{
		Query:     args[0],
		Platforms: searchPlatforms,
		Page:      searchPage,
		Limit:     searchLimit,
	}

	filters, err := buildFilters()
	if err != nil {
		return err
	}
	req.Filters = filters

	// Progress goes to stderr, and only when someone is watching.
	if !searchJSON && term.IsTerminal(int(os.Stderr.Fd())) {
		req.Progress = printProgress
	}

	applySearchOptions()

	resp, err := searchService.Search(cmd.Context(), req)
	if err != nil {
		var se *domain.SearchError
		if errors.As(err, &se) {
			return errors.New(se.Message)
		}
		return err
	}

	if searchJSON {
		return outputSearchJSON(cmd, resp)
	}
	return outputSearchTable(cmd, resp)
}

func buildFilters() (*domain.SearchFilters, error) {
	if searchSince == "" && searchUntil == "" && searchSender == "" && searchType == "" {
		return nil, nil
	}

	f := &domain.SearchFilters{
		Sender: searchSender,
		Type:   domain.MessageType(searchType),
	}
	if searchSince != "" {
		t, err := time.Parse("2006-01-02", searchSince)
		if err != nil {
			return nil, fmt.Errorf("invalid --since date: %w", err)
		}
		f.Start = &t
	}
	if searchUntil != "" {
		t, err := time.Parse("2006-01-02", searchUntil)
		if err != nil {
			return nil, fmt.Errorf("invalid --until date: %w", err)
		}
		f.End = &t
	}
	return f, nil
}

// applySearchOptions maps command flags onto the orchestrator's options.
func applySearchOptions() {
	var patch driving.SearchOptionsPatch
	if searchNoCache {
		enabled := false
		patch.CacheEnabled = &enabled
	}
	if searchTimeout > 0 {
		patch.Timeout = &searchTimeout
	}
	if searchSequential {
		concurrent := false
		patch.Concurrent = &concurrent
	}
	searchService.UpdateOptions(patch)
}

func printProgress(p domain.SearchProgress) {
	switch p.Stage {
	case domain.StageListingContainers:
		fmt.Fprintf(os.Stderr, "\r%s: listing conversations...", p.Platform)
	case domain.StageSearching:
		fmt.Fprintf(os.Stderr, "\r%s: %d/%d conversations, %d found",
			p.Platform, p.ContainersDone, p.ContainersTotal, p.Found)
	case domain.StageDone:
		fmt.Fprintf(os.Stderr, "\r%s: done, %d found          \n", p.Platform, p.Found)
	}
}

func outputSearchJSON(cmd *cobra.Command, resp *domain.SearchResponse) error {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, resp *domain.SearchResponse) error {
	if len(resp.Results) == 0 {
		cmd.Println("No results found.")
		printPlatformStatus(cmd, resp)
		return nil
	}

	cmd.Printf("Results (%d of %d, %.1fs):\n\n",
		len(resp.Results), resp.TotalCount, resp.Elapsed.Seconds())

	offset := 0
	if resp.TotalCount > len(resp.Results) {
		offset = (searchPage - 1) * len(resp.Results)
	}
	for i := range resp.Results {
		r := &resp.Results[i]
		cmd.Printf("  [%d] %s | %s | %s\n", offset+i+1,
			r.Timestamp.Local().Format("2006-01-02 15:04"), r.Platform, r.Sender.Name)
		if r.Container != "" {
			cmd.Printf("      In: %s\n", r.Container)
		}
		snippet := r.Snippet
		if snippet == "" {
			snippet = r.Content
		}
		if snippet != "" {
			cmd.Printf("      %s\n", snippet)
		}
		if r.DeepLink != "" {
			cmd.Printf("      %s\n", r.DeepLink)
		}
		cmd.Println()
	}

	if resp.HasMore {
		cmd.Printf("More results available. Use --page %d for the next page.\n", searchPage+1)
	}
	printPlatformStatus(cmd, resp)
	return nil
}

func printPlatformStatus(cmd *cobra.Command, resp *domain.SearchResponse) {
	platforms := make([]string, 0, len(resp.PlatformStatus))
	for p := range resp.PlatformStatus {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)

	for _, p := range platforms {
		s := resp.PlatformStatus[p]
		if s.Success {
			continue
		}
		cmd.Printf("warning: %s search failed: %s\n", p, s.Error)
	}
}
