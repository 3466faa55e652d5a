package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/parley-cli/internal/core/domain"
)

// SearchService is the orchestrator's public surface.
type SearchService interface {
	// Search fans the request out to the target platforms and returns the
	// aggregated response. Per-platform failures are reported in the
	// response's status map; only orchestrator-level failures return an
	// error (as *domain.SearchError).
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error)

	// CancelSearch cancels a running search by ID. Returns false if no
	// search with that ID is running.
	CancelSearch(searchID string) bool

	// CancelAllSearches cancels every running search.
	CancelAllSearches()

	// ClearCache drops all cached responses.
	ClearCache()

	// CacheStats reports the result cache's current state.
	CacheStats() CacheStats

	// Metrics returns a snapshot of search counters.
	Metrics() domain.SearchMetrics

	// ResetMetrics zeroes all counters.
	ResetMetrics()

	// Options returns the current orchestrator options.
	Options() SearchOptions

	// UpdateOptions applies the non-nil fields of patch.
	UpdateOptions(patch SearchOptionsPatch)
}

// SearchOptions configures orchestrator behaviour.
type SearchOptions struct {
	// CacheEnabled toggles the result cache.
	CacheEnabled bool

	// CacheTTL is how long a cached response stays valid.
	CacheTTL time.Duration

	// Timeout races against the whole fan-out.
	Timeout time.Duration

	// Concurrent dispatches platform legs concurrently when true,
	// sequentially when false.
	Concurrent bool

	// Retry wraps each per-platform call.
	Retry domain.RetryPolicy
}

// SearchOptionsPatch is a partial update of SearchOptions.
// Nil fields keep their current value.
type SearchOptionsPatch struct {
	CacheEnabled *bool
	CacheTTL     *time.Duration
	Timeout      *time.Duration
	Concurrent   *bool
	Retry        *domain.RetryPolicy
}

// DefaultSearchOptions returns the options used when none are supplied.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		CacheEnabled: true,
		CacheTTL:     5 * time.Minute,
		Timeout:      30 * time.Second,
		Concurrent:   true,
		Retry:        domain.DefaultRetryPolicy(),
	}
}

// CacheEntryInfo describes one cached response for diagnostics.
type CacheEntryInfo struct {
	Key     string        `json:"key"`
	Age     time.Duration `json:"age"`
	TTL     time.Duration `json:"ttl"`
	Results int           `json:"results"`
}

// CacheStats reports result cache occupancy and effectiveness.
type CacheStats struct {
	Size    int              `json:"size"`
	MaxSize int              `json:"max_size"`
	HitRate float64          `json:"hit_rate"`
	Entries []CacheEntryInfo `json:"entries"`
}
