package services

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/parley-cli/internal/core/domain"
	"github.com/custodia-labs/parley-cli/internal/core/ports/driving"
	"github.com/custodia-labs/parley-cli/internal/logger"
)

const (
	// DefaultCacheMaxSize bounds the number of cached responses.
	DefaultCacheMaxSize = 100

	// janitorInterval is how often expired entries are swept.
	janitorInterval = time.Minute
)

// cacheEntry is one cached response with its originating request.
type cacheEntry struct {
	key       string
	results   []domain.MessageResult
	status    map[string]domain.PlatformSearchStatus
	request   domain.SearchRequest
	createdAt time.Time
	ttl       time.Duration
}

func (e *cacheEntry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// ResultCache is a bounded LRU cache of search responses with TTL.
// Eviction is strict LRU: a hit moves the entry to the front, the entry at
// the back goes first when the cache is full.
type ResultCache struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List // front = most recently used
	entries map[string]*list.Element

	hits   int64
	misses int64

	stop chan struct{}
	once sync.Once
}

// NewResultCache creates a result cache. A non-positive maxSize falls back
// to DefaultCacheMaxSize. The janitor goroutine runs until Close.
func NewResultCache(maxSize int) *ResultCache {
	if maxSize <= 0 {
		maxSize = DefaultCacheMaxSize
	}
	c := &ResultCache{
		maxSize: maxSize,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		stop:    make(chan struct{}),
	}
	go c.janitor()
	return c
}

// CacheKey computes the deterministic key for a request: a hash over the
// normalized query, sorted platform and account lists, filters and
// pagination. The progress sink never participates.
func CacheKey(req domain.SearchRequest) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(req.Query)))
	b.WriteByte('|')

	platforms := append([]string(nil), req.Platforms...)
	sort.Strings(platforms)
	b.WriteString(strings.Join(platforms, ","))
	b.WriteByte('|')

	accountKeys := make([]string, 0, len(req.Accounts))
	for platform := range req.Accounts {
		accountKeys = append(accountKeys, platform)
	}
	sort.Strings(accountKeys)
	for _, platform := range accountKeys {
		ids := append([]string(nil), req.Accounts[platform]...)
		sort.Strings(ids)
		fmt.Fprintf(&b, "%s=%s;", platform, strings.Join(ids, ","))
	}
	b.WriteByte('|')

	if f := req.Filters; f != nil {
		if f.Start != nil {
			fmt.Fprintf(&b, "start=%d;", f.Start.Unix())
		}
		if f.End != nil {
			fmt.Fprintf(&b, "end=%d;", f.End.Unix())
		}
		if f.Sender != "" {
			fmt.Fprintf(&b, "sender=%s;", strings.ToLower(f.Sender))
		}
		if f.Type != "" {
			fmt.Fprintf(&b, "type=%s;", f.Type)
		}
	}
	fmt.Fprintf(&b, "|page=%d|limit=%d", req.EffectivePage(), req.EffectiveLimit())

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached results for key if present and within TTL.
func (c *ResultCache) Get(key string) ([]domain.MessageResult, map[string]domain.PlatformSearchStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if entry.expired(time.Now()) {
		c.removeLocked(elem)
		c.misses++
		return nil, nil, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return entry.results, entry.status, true
}

// Put stores a response under key, evicting the least recently used entry
// when the cache is full.
func (c *ResultCache) Put(key string, req domain.SearchRequest, results []domain.MessageResult, status map[string]domain.PlatformSearchStatus, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.results = results
		entry.status = status
		entry.createdAt = time.Now()
		entry.ttl = ttl
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		logger.Debug("cache full, evicting %s", oldest.Value.(*cacheEntry).key)
		c.removeLocked(oldest)
	}

	req.Progress = nil
	entry := &cacheEntry{
		key:       key,
		results:   results,
		status:    status,
		request:   req,
		createdAt: time.Now(),
		ttl:       ttl,
	}
	c.entries[key] = c.order.PushFront(entry)
}

// Clear drops every entry.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[string]*list.Element)
}

// Stats reports occupancy and hit rate.
func (c *ResultCache) Stats() driving.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entries := make([]driving.CacheEntryInfo, 0, c.order.Len())
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*cacheEntry)
		entries = append(entries, driving.CacheEntryInfo{
			Key:     entry.key,
			Age:     now.Sub(entry.createdAt),
			TTL:     entry.ttl,
			Results: len(entry.results),
		})
	}

	var hitRate float64
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return driving.CacheStats{
		Size:    len(c.entries),
		MaxSize: c.maxSize,
		HitRate: hitRate,
		Entries: entries,
	}
}

// Close stops the janitor goroutine.
func (c *ResultCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *ResultCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.order.Remove(elem)
	delete(c.entries, entry.key)
}

// janitor periodically sweeps entries past their TTL.
func (c *ResultCache) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *ResultCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*cacheEntry).expired(now) {
			c.removeLocked(elem)
		}
		elem = prev
	}
}
