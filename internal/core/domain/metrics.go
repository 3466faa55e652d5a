package domain

import "time"

// PlatformMetrics is the per-platform slice of SearchMetrics.
type PlatformMetrics struct {
	Attempts   int64         `json:"attempts"`
	Successes  int64         `json:"successes"`
	Failures   int64         `json:"failures"`
	AvgLatency time.Duration `json:"avg_latency"`
}

// SearchMetrics is a point-in-time snapshot of orchestrator counters.
type SearchMetrics struct {
	TotalSearches int64                      `json:"total_searches"`
	Succeeded     int64                      `json:"succeeded"`
	Failed        int64                      `json:"failed"`
	CacheHits     int64                      `json:"cache_hits"`
	CacheMisses   int64                      `json:"cache_misses"`
	AvgLatency    time.Duration              `json:"avg_latency"`
	Platforms     map[string]PlatformMetrics `json:"platforms"`
}
