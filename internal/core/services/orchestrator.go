package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/parley-cli/internal/connectors/backoff"
	"github.com/custodia-labs/parley-cli/internal/core/domain"
	"github.com/custodia-labs/parley-cli/internal/core/ports/driven"
	"github.com/custodia-labs/parley-cli/internal/core/ports/driving"
	"github.com/custodia-labs/parley-cli/internal/logger"
)

// Ensure Orchestrator implements the interface.
var _ driving.SearchService = (*Orchestrator)(nil)

// Orchestrator fans a search request out to platform adapters, aggregates
// their results and serves repeats from the result cache.
type Orchestrator struct {
	registry driving.AdapterRegistry
	cache    *ResultCache
	metrics  *MetricsRecorder

	optsMu sync.RWMutex
	opts   driving.SearchOptions

	activeMu sync.Mutex
	active   map[string]context.CancelFunc
}

// NewOrchestrator creates an orchestrator over the given registry with
// default options.
func NewOrchestrator(registry driving.AdapterRegistry) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		cache:    NewResultCache(DefaultCacheMaxSize),
		metrics:  NewMetricsRecorder(),
		opts:     driving.DefaultSearchOptions(),
		active:   make(map[string]context.CancelFunc),
	}
}

// legResult is the outcome of one adapter's leg of a search.
type legResult struct {
	adapter driven.PlatformAdapter
	results []domain.MessageResult
	status  domain.PlatformSearchStatus
}

// Search validates the request, consults the cache, fans out to every
// resolved adapter and aggregates the results. Per-platform failures are
// isolated into the response's status map.
func (o *Orchestrator) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	started := time.Now()

	if err := req.Validate(); err != nil {
		return nil, domain.NewSearchError("invalid search request", false, err)
	}
	if req.SearchID == "" {
		req.SearchID = uuid.NewString()
	}

	adapters, err := o.resolveAdapters(req.Platforms)
	if err != nil {
		return nil, err
	}

	opts := o.Options()
	key := CacheKey(req)
	if opts.CacheEnabled {
		if results, status, ok := o.cache.Get(key); ok {
			o.metrics.RecordCacheHit()
			logger.Debug("cache hit for query %q", req.Query)
			resp := o.assemble(req, results, status, time.Since(started))
			return resp, nil
		}
		o.metrics.RecordCacheMiss()
	}

	searchCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	o.track(req.SearchID, cancel)
	defer o.untrack(req.SearchID)
	defer cancel()

	logger.Info("search %s: dispatching to %d platforms", req.SearchID, len(adapters))
	legs := o.dispatch(searchCtx, adapters, req, opts)

	// A deadline on searchCtx means timeout; Canceled means the caller or
	// CancelSearch pulled the plug.
	if errors.Is(searchCtx.Err(), context.Canceled) {
		o.metrics.RecordSearch(false, time.Since(started))
		return nil, domain.NewSearchError("search cancelled", false, domain.ErrSearchCancelled)
	}

	merged, status := o.aggregate(legs)
	succeeded := false
	for _, s := range status {
		if s.Success {
			succeeded = true
			break
		}
	}
	o.metrics.RecordSearch(succeeded, time.Since(started))

	if opts.CacheEnabled && succeeded {
		o.cache.Put(key, req, merged, status, opts.CacheTTL)
	}

	return o.assemble(req, merged, status, time.Since(started)), nil
}

// resolveAdapters maps the requested platform names or config IDs to
// adapter instances. An empty list targets every registered adapter.
func (o *Orchestrator) resolveAdapters(platforms []string) ([]driven.PlatformAdapter, error) {
	if len(platforms) == 0 {
		ids := o.registry.ListActive()
		adapters := make([]driven.PlatformAdapter, 0, len(ids))
		for _, id := range ids {
			if a, ok := o.registry.Resolve(id); ok {
				adapters = append(adapters, a)
			}
		}
		if len(adapters) == 0 {
			return nil, domain.NewSearchError("no platforms connected", false, domain.ErrNoAdapters)
		}
		return adapters, nil
	}

	var adapters []driven.PlatformAdapter
	seen := make(map[string]bool)
	for _, p := range platforms {
		matches := o.registry.ResolveAll(p)
		if len(matches) == 0 {
			return nil, domain.NewSearchError(
				fmt.Sprintf("platform %q is not connected", p), false,
				fmt.Errorf("%w: %s", domain.ErrPlatformNotConfigured, p))
		}
		for _, a := range matches {
			if !seen[a.ConfigID()] {
				seen[a.ConfigID()] = true
				adapters = append(adapters, a)
			}
		}
	}
	return adapters, nil
}

// dispatch runs one leg per adapter, concurrently or sequentially per the
// options, and collects every leg's outcome.
func (o *Orchestrator) dispatch(ctx context.Context, adapters []driven.PlatformAdapter, req domain.SearchRequest, opts driving.SearchOptions) []legResult {
	legs := make([]legResult, len(adapters))

	if !opts.Concurrent {
		for i, adapter := range adapters {
			if ctx.Err() != nil {
				legs[i] = cancelledLeg(adapter)
				continue
			}
			legs[i] = o.runLeg(ctx, adapter, req, opts.Retry)
		}
		return legs
	}

	var wg sync.WaitGroup
	for i, adapter := range adapters {
		wg.Add(1)
		go func(i int, adapter driven.PlatformAdapter) {
			defer wg.Done()
			legs[i] = o.runLeg(ctx, adapter, req, opts.Retry)
		}(i, adapter)
	}
	wg.Wait()
	return legs
}

func cancelledLeg(adapter driven.PlatformAdapter) legResult {
	return legResult{
		adapter: adapter,
		status: domain.PlatformSearchStatus{
			Platform: adapter.Platform(),
			Error:    domain.ErrSearchCancelled.Error(),
		},
	}
}

// classifyLeg maps a leg error to a retry action for the orchestrator's
// policy. Auth errors propagate without local retry so the recovery pass
// can refresh the credential first.
func classifyLeg(err error) backoff.Action {
	switch {
	case domain.IsAuthError(err):
		return backoff.Reauth
	case errors.Is(err, domain.ErrRateLimited):
		return backoff.RetryRateLimited
	case domain.IsRetryable(err):
		return backoff.Retry
	default:
		return backoff.Fail
	}
}

// runLeg executes one adapter's search under the retry policy, then a
// single recovery pass: an expired credential triggers a refresh and one
// retry, an unavailable platform gets one retry. Panics in an adapter are
// confined to its leg.
func (o *Orchestrator) runLeg(ctx context.Context, adapter driven.PlatformAdapter, req domain.SearchRequest, policy domain.RetryPolicy) (leg legResult) {
	platform := adapter.Platform()
	accountIDs := req.Accounts[platform]
	started := time.Now()

	leg = legResult{adapter: adapter}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("adapter %s panicked: %v", adapter.ConfigID(), r)
			leg.results = nil
			leg.status = domain.PlatformSearchStatus{
				Platform: platform,
				Elapsed:  time.Since(started),
				Error:    fmt.Sprintf("adapter panic: %v", r),
			}
		}
		o.metrics.RecordPlatform(platform, leg.status.Success, leg.status.Elapsed)
	}()

	var results []domain.MessageResult
	err := backoff.Do(ctx, policy, classifyLeg, func() error {
		var serr error
		results, serr = adapter.Search(ctx, req, accountIDs)
		return serr
	})
	if err != nil && ctx.Err() == nil {
		if recovered, rerr := o.recoverLeg(ctx, adapter, req, accountIDs, err); rerr == nil {
			results, err = recovered, nil
		} else {
			err = rerr
		}
	}

	leg.status = domain.PlatformSearchStatus{
		Platform:    platform,
		Success:     err == nil,
		ResultCount: len(results),
		Elapsed:     time.Since(started),
	}
	if err != nil {
		leg.status.Error = err.Error()
		logger.Debug("platform %s search failed: %v", platform, err)
		return leg
	}
	leg.results = results
	return leg
}

// recoverLeg attempts the single recovery pass for a failed leg.
func (o *Orchestrator) recoverLeg(ctx context.Context, adapter driven.PlatformAdapter, req domain.SearchRequest, accountIDs []string, cause error) ([]domain.MessageResult, error) {
	switch {
	case domain.IsAuthError(cause):
		logger.Info("refreshing credentials for %s after auth failure", adapter.ConfigID())
		if err := adapter.RefreshCredentials(ctx, ""); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrTokenRefreshFailed, err)
		}
	case errors.Is(cause, domain.ErrPlatformUnavailable):
		logger.Debug("retrying unavailable platform %s", adapter.Platform())
	default:
		return nil, cause
	}
	return adapter.Search(ctx, req, accountIDs)
}

// aggregate merges leg results, dropping duplicates by identity key, and
// folds each leg into a per-platform status entry.
func (o *Orchestrator) aggregate(legs []legResult) ([]domain.MessageResult, map[string]domain.PlatformSearchStatus) {
	var merged []domain.MessageResult
	seen := make(map[string]bool)
	status := make(map[string]domain.PlatformSearchStatus, len(legs))

	for _, leg := range legs {
		for _, r := range leg.results {
			key := r.IdentityKey()
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, r)
		}

		s := leg.status
		if prev, ok := status[s.Platform]; ok {
			// Several configs of the same platform fold into one entry.
			s.ResultCount += prev.ResultCount
			s.Success = s.Success && prev.Success
			if s.Elapsed < prev.Elapsed {
				s.Elapsed = prev.Elapsed
			}
			if s.Error == "" {
				s.Error = prev.Error
			}
		}
		status[s.Platform] = s
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].Timestamp.Equal(merged[j].Timestamp) {
			return merged[i].Timestamp.After(merged[j].Timestamp)
		}
		return merged[i].IdentityKey() < merged[j].IdentityKey()
	})
	return merged, status
}

// assemble paginates the merged result set into a response.
func (o *Orchestrator) assemble(req domain.SearchRequest, merged []domain.MessageResult, status map[string]domain.PlatformSearchStatus, elapsed time.Duration) *domain.SearchResponse {
	limit := req.EffectiveLimit()
	offset := (req.EffectivePage() - 1) * limit

	page := []domain.MessageResult{}
	if offset < len(merged) {
		end := offset + limit
		if end > len(merged) {
			end = len(merged)
		}
		page = merged[offset:end]
	}

	return &domain.SearchResponse{
		SearchID:       req.SearchID,
		Results:        page,
		TotalCount:     len(merged),
		HasMore:        offset+len(page) < len(merged),
		Elapsed:        elapsed,
		PlatformStatus: status,
	}
}

func (o *Orchestrator) track(searchID string, cancel context.CancelFunc) {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()
	o.active[searchID] = cancel
}

func (o *Orchestrator) untrack(searchID string) {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()
	delete(o.active, searchID)
}

// CancelSearch cancels the running search with the given ID.
func (o *Orchestrator) CancelSearch(searchID string) bool {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()
	cancel, ok := o.active[searchID]
	if ok {
		cancel()
		delete(o.active, searchID)
	}
	return ok
}

// CancelAllSearches cancels every running search.
func (o *Orchestrator) CancelAllSearches() {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()
	for id, cancel := range o.active {
		cancel()
		delete(o.active, id)
	}
}

// ClearCache drops all cached responses.
func (o *Orchestrator) ClearCache() {
	o.cache.Clear()
}

// CacheStats reports the result cache's current state.
func (o *Orchestrator) CacheStats() driving.CacheStats {
	return o.cache.Stats()
}

// Metrics returns a snapshot of search counters.
func (o *Orchestrator) Metrics() domain.SearchMetrics {
	return o.metrics.Snapshot()
}

// ResetMetrics zeroes all counters.
func (o *Orchestrator) ResetMetrics() {
	o.metrics.Reset()
}

// Options returns a copy of the current options.
func (o *Orchestrator) Options() driving.SearchOptions {
	o.optsMu.RLock()
	defer o.optsMu.RUnlock()
	return o.opts
}

// UpdateOptions applies the non-nil fields of patch.
func (o *Orchestrator) UpdateOptions(patch driving.SearchOptionsPatch) {
	o.optsMu.Lock()
	defer o.optsMu.Unlock()
	if patch.CacheEnabled != nil {
		o.opts.CacheEnabled = *patch.CacheEnabled
	}
	if patch.CacheTTL != nil {
		o.opts.CacheTTL = *patch.CacheTTL
	}
	if patch.Timeout != nil {
		o.opts.Timeout = *patch.Timeout
	}
	if patch.Concurrent != nil {
		o.opts.Concurrent = *patch.Concurrent
	}
	if patch.Retry != nil {
		o.opts.Retry = *patch.Retry
	}
}

// Close stops background work owned by the orchestrator.
func (o *Orchestrator) Close() {
	o.CancelAllSearches()
	o.cache.Close()
}
