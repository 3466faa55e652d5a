package services

import (
	"sync"
	"time"

	"github.com/custodia-labs/parley-cli/internal/core/domain"
)

// MetricsRecorder accumulates search counters behind a mutex.
type MetricsRecorder struct {
	mu        sync.Mutex
	total     int64
	succeeded int64
	failed    int64
	hits      int64
	misses    int64
	avg       time.Duration
	platforms map[string]*platformCounters
}

type platformCounters struct {
	attempts  int64
	successes int64
	failures  int64
	avg       time.Duration
}

// NewMetricsRecorder creates a zeroed recorder.
func NewMetricsRecorder() *MetricsRecorder {
	return &MetricsRecorder{platforms: make(map[string]*platformCounters)}
}

// RecordSearch records one completed search.
func (m *MetricsRecorder) RecordSearch(success bool, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	if success {
		m.succeeded++
	} else {
		m.failed++
	}
	m.avg += (latency - m.avg) / time.Duration(m.total)
}

// RecordCacheHit records a result served from cache.
func (m *MetricsRecorder) RecordCacheHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

// RecordCacheMiss records a cache miss.
func (m *MetricsRecorder) RecordCacheMiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

// RecordPlatform records one platform leg of a search.
func (m *MetricsRecorder) RecordPlatform(platform string, success bool, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pc, ok := m.platforms[platform]
	if !ok {
		pc = &platformCounters{}
		m.platforms[platform] = pc
	}
	pc.attempts++
	if success {
		pc.successes++
	} else {
		pc.failures++
	}
	pc.avg += (latency - pc.avg) / time.Duration(pc.attempts)
}

// Snapshot returns a copy of all counters.
func (m *MetricsRecorder) Snapshot() domain.SearchMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	platforms := make(map[string]domain.PlatformMetrics, len(m.platforms))
	for name, pc := range m.platforms {
		platforms[name] = domain.PlatformMetrics{
			Attempts:   pc.attempts,
			Successes:  pc.successes,
			Failures:   pc.failures,
			AvgLatency: pc.avg,
		}
	}
	return domain.SearchMetrics{
		TotalSearches: m.total,
		Succeeded:     m.succeeded,
		Failed:        m.failed,
		CacheHits:     m.hits,
		CacheMisses:   m.misses,
		AvgLatency:    m.avg,
		Platforms:     platforms,
	}
}

// Reset zeroes every counter.
func (m *MetricsRecorder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total, m.succeeded, m.failed = 0, 0, 0
	m.hits, m.misses = 0, 0
	m.avg = 0
	m.platforms = make(map[string]*platformCounters)
}
