package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/parley-cli/internal/core/domain"
	"github.com/custodia-labs/parley-cli/internal/core/ports/driving"
)

func newTestRegistry(t *testing.T, adapters ...*mockAdapter) *Registry {
	t.Helper()
	byID := make(map[string]*mockAdapter, len(adapters))
	for _, a := range adapters {
		byID[a.configID] = a
	}
	reg := NewRegistry(&mockFactory{adapters: byID})
	for _, a := range adapters {
		cfg := domain.PlatformConfig{ID: a.configID, Platform: a.platform, Enabled: true}
		require.NoError(t, reg.Load(context.Background(), cfg))
	}
	return reg
}

func result(platform, id string, ts time.Time) domain.MessageResult {
	return domain.MessageResult{Platform: platform, ID: id, Timestamp: ts, Content: "hit " + id}
}

func TestOrchestrator_MergesAndSortsNewestFirst(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	t1, t3, t4 := base, base.Add(2*time.Hour), base.Add(3*time.Hour)

	a := &mockAdapter{platform: "lark", configID: "lark-a", searchFn: func(context.Context, domain.SearchRequest, []string) ([]domain.MessageResult, error) {
		return []domain.MessageResult{result("lark", "m1", t1), result("lark", "m4", t4)}, nil
	}}
	b := &mockAdapter{platform: "slack", configID: "slack-b", searchFn: func(context.Context, domain.SearchRequest, []string) ([]domain.MessageResult, error) {
		return []domain.MessageResult{result("slack", "m3", t3)}, nil
	}}

	o := NewOrchestrator(newTestRegistry(t, a, b))
	defer o.Close()

	resp, err := o.Search(context.Background(), domain.SearchRequest{Query: "hit"})
	require.NoError(t, err)

	require.Len(t, resp.Results, 3)
	assert.Equal(t, "m4", resp.Results[0].ID)
	assert.Equal(t, "m3", resp.Results[1].ID)
	assert.Equal(t, "m1", resp.Results[2].ID)
	assert.Equal(t, 3, resp.TotalCount)
	assert.False(t, resp.HasMore)

	assert.True(t, resp.PlatformStatus["lark"].Success)
	assert.Equal(t, 2, resp.PlatformStatus["lark"].ResultCount)
	assert.True(t, resp.PlatformStatus["slack"].Success)
}

func TestOrchestrator_DeduplicatesByIdentity(t *testing.T) {
	ts := time.Now()
	dup := result("lark", "m1", ts)

	a := &mockAdapter{platform: "lark", configID: "lark-a", searchFn: func(context.Context, domain.SearchRequest, []string) ([]domain.MessageResult, error) {
		return []domain.MessageResult{dup, dup, result("lark", "m2", ts.Add(-time.Minute))}, nil
	}}

	o := NewOrchestrator(newTestRegistry(t, a))
	defer o.Close()

	resp, err := o.Search(context.Background(), domain.SearchRequest{Query: "hit"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalCount)
}

func TestOrchestrator_PartialFailureIsIsolated(t *testing.T) {
	a := &mockAdapter{platform: "lark", configID: "lark-a", searchFn: func(context.Context, domain.SearchRequest, []string) ([]domain.MessageResult, error) {
		return []domain.MessageResult{result("lark", "m1", time.Now())}, nil
	}}
	b := &mockAdapter{platform: "slack", configID: "slack-b", searchFn: func(context.Context, domain.SearchRequest, []string) ([]domain.MessageResult, error) {
		return nil, errors.New("slack is down")
	}}

	o := NewOrchestrator(newTestRegistry(t, a, b))
	defer o.Close()

	resp, err := o.Search(context.Background(), domain.SearchRequest{Query: "hit"})
	require.NoError(t, err, "one platform failing must not fail the search")

	assert.Len(t, resp.Results, 1)
	assert.True(t, resp.PlatformStatus["lark"].Success)

	slackStatus := resp.PlatformStatus["slack"]
	assert.False(t, slackStatus.Success)
	assert.Contains(t, slackStatus.Error, "slack is down")
}

func TestOrchestrator_AdapterPanicIsIsolated(t *testing.T) {
	a := &mockAdapter{platform: "lark", configID: "lark-a", searchFn: func(context.Context, domain.SearchRequest, []string) ([]domain.MessageResult, error) {
		panic("adapter bug")
	}}
	b := &mockAdapter{platform: "slack", configID: "slack-b", searchFn: func(context.Context, domain.SearchRequest, []string) ([]domain.MessageResult, error) {
		return []domain.MessageResult{result("slack", "m1", time.Now())}, nil
	}}

	o := NewOrchestrator(newTestRegistry(t, a, b))
	defer o.Close()

	resp, err := o.Search(context.Background(), domain.SearchRequest{Query: "hit"})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
	assert.False(t, resp.PlatformStatus["lark"].Success)
	assert.Contains(t, resp.PlatformStatus["lark"].Error, "panic")
}

func TestOrchestrator_AuthFailureTriggersRefreshAndRetry(t *testing.T) {
	calls := 0
	a := &mockAdapter{platform: "lark", configID: "lark-a", searchFn: func(context.Context, domain.SearchRequest, []string) ([]domain.MessageResult, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("account x: %w", domain.ErrAuthExpired)
		}
		return []domain.MessageResult{result("lark", "m1", time.Now())}, nil
	}}

	o := NewOrchestrator(newTestRegistry(t, a))
	defer o.Close()

	resp, err := o.Search(context.Background(), domain.SearchRequest{Query: "hit"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), a.refreshCalls.Load(), "expected one credential refresh")
	assert.Equal(t, 2, calls, "expected exactly one retry")
	assert.True(t, resp.PlatformStatus["lark"].Success)
	assert.Len(t, resp.Results, 1)
}

func TestOrchestrator_FailedRefreshFailsTheLeg(t *testing.T) {
	a := &mockAdapter{
		platform: "lark", configID: "lark-a",
		searchFn: func(context.Context, domain.SearchRequest, []string) ([]domain.MessageResult, error) {
			return nil, domain.ErrAuthExpired
		},
		refreshFn: func(context.Context, string) error {
			return errors.New("refresh endpoint down")
		},
	}

	o := NewOrchestrator(newTestRegistry(t, a))
	defer o.Close()

	resp, err := o.Search(context.Background(), domain.SearchRequest{Query: "hit"})
	require.NoError(t, err)

	status := resp.PlatformStatus["lark"]
	assert.False(t, status.Success)
	assert.Contains(t, status.Error, "token refresh failed")
	assert.Equal(t, int64(1), a.searchCalls.Load(), "no retry after failed refresh")
}

func TestOrchestrator_UnavailablePlatformRetriedOnce(t *testing.T) {
	calls := 0
	a := &mockAdapter{platform: "slack", configID: "slack-a", searchFn: func(context.Context, domain.SearchRequest, []string) ([]domain.MessageResult, error) {
		calls++
		if calls == 1 {
			return nil, domain.ErrPlatformUnavailable
		}
		return []domain.MessageResult{result("slack", "m1", time.Now())}, nil
	}}

	o := NewOrchestrator(newTestRegistry(t, a))
	defer o.Close()

	resp, err := o.Search(context.Background(), domain.SearchRequest{Query: "hit"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, resp.PlatformStatus["slack"].Success)
}

// fastRetry keeps retry tests quick.
func fastRetry() domain.RetryPolicy {
	return domain.RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      time.Millisecond,
		Multiplier:     2,
		MaxDelay:       5 * time.Millisecond,
		RateLimitDelay: 2 * time.Millisecond,
	}
}

func TestOrchestrator_RetryPolicyRetriesTransientErrors(t *testing.T) {
	calls := 0
	a := &mockAdapter{platform: "lark", configID: "lark-a", searchFn: func(context.Context, domain.SearchRequest, []string) ([]domain.MessageResult, error) {
		calls++
		if calls < 3 {
			return nil, fmt.Errorf("flaky: %w", domain.ErrRateLimited)
		}
		return []domain.MessageResult{result("lark", "m1", time.Now())}, nil
	}}

	o := NewOrchestrator(newTestRegistry(t, a))
	defer o.Close()

	policy := fastRetry()
	o.UpdateOptions(driving.SearchOptionsPatch{Retry: &policy})

	resp, err := o.Search(context.Background(), domain.SearchRequest{Query: "hit"})
	require.NoError(t, err)

	assert.Equal(t, int64(3), a.searchCalls.Load(), "transient errors retry up to MaxAttempts")
	assert.True(t, resp.PlatformStatus["lark"].Success)
	assert.Len(t, resp.Results, 1)
}

func TestOrchestrator_RetryPolicyStopsAtMaxAttempts(t *testing.T) {
	a := &mockAdapter{platform: "lark", configID: "lark-a", searchFn: func(context.Context, domain.SearchRequest, []string) ([]domain.MessageResult, error) {
		return nil, fmt.Errorf("still busy: %w", domain.ErrRateLimited)
	}}

	o := NewOrchestrator(newTestRegistry(t, a))
	defer o.Close()

	policy := fastRetry()
	policy.MaxAttempts = 2
	o.UpdateOptions(driving.SearchOptionsPatch{Retry: &policy})

	resp, err := o.Search(context.Background(), domain.SearchRequest{Query: "hit"})
	require.NoError(t, err)

	assert.Equal(t, int64(2), a.searchCalls.Load())
	status := resp.PlatformStatus["lark"]
	assert.False(t, status.Success)
	assert.Contains(t, status.Error, "still busy")
}

func TestOrchestrator_NonTransientErrorNotRetried(t *testing.T) {
	a := &mockAdapter{platform: "lark", configID: "lark-a", searchFn: func(context.Context, domain.SearchRequest, []string) ([]domain.MessageResult, error) {
		return nil, errors.New("bad request")
	}}

	o := NewOrchestrator(newTestRegistry(t, a))
	defer o.Close()

	policy := fastRetry()
	o.UpdateOptions(driving.SearchOptionsPatch{Retry: &policy})

	_, err := o.Search(context.Background(), domain.SearchRequest{Query: "hit"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.searchCalls.Load(), "permanent errors fail on first attempt")
}

func TestOrchestrator_Pagination(t *testing.T) {
	base := time.Now()
	a := &mockAdapter{platform: "lark", configID: "lark-a", searchFn: func(context.Context, domain.SearchRequest, []string) ([]domain.MessageResult, error) {
		var out []domain.MessageResult
		for i := 0; i < 5; i++ {
			out = append(out, result("lark", fmt.Sprintf("m%d", i), base.Add(-time.Duration(i)*time.Minute)))
		}
		return out, nil
	}}

	o := NewOrchestrator(newTestRegistry(t, a))
	defer o.Close()

	resp, err := o.Search(context.Background(), domain.SearchRequest{Query: "hit", Page: 2, Limit: 2})
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "m2", resp.Results[0].ID)
	assert.Equal(t, "m3", resp.Results[1].ID)
	assert.Equal(t, 5, resp.TotalCount)
	assert.True(t, resp.HasMore)

	// Page past the end is empty but not an error.
	resp, err = o.Search(context.Background(), domain.SearchRequest{Query: "hit", Page: 9, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.False(t, resp.HasMore)
}

func TestOrchestrator_CacheServesRepeatSearches(t *testing.T) {
	a := &mockAdapter{platform: "lark", configID: "lark-a", searchFn: func(context.Context, domain.SearchRequest, []string) ([]domain.MessageResult, error) {
		return []domain.MessageResult{result("lark", "m1", time.Now())}, nil
	}}

	o := NewOrchestrator(newTestRegistry(t, a))
	defer o.Close()

	req := domain.SearchRequest{Query: "hit"}
	_, err := o.Search(context.Background(), req)
	require.NoError(t, err)
	_, err = o.Search(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int64(1), a.searchCalls.Load(), "second search should come from cache")

	m := o.Metrics()
	assert.Equal(t, int64(1), m.CacheHits)
	assert.Equal(t, int64(1), m.CacheMisses)

	// Different query misses.
	_, err = o.Search(context.Background(), domain.SearchRequest{Query: "other"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), a.searchCalls.Load())
}

func TestOrchestrator_CacheDisabled(t *testing.T) {
	a := &mockAdapter{platform: "lark", configID: "lark-a"}

	o := NewOrchestrator(newTestRegistry(t, a))
	defer o.Close()

	disabled := false
	o.UpdateOptions(driving.SearchOptionsPatch{CacheEnabled: &disabled})

	req := domain.SearchRequest{Query: "hit"}
	_, err := o.Search(context.Background(), req)
	require.NoError(t, err)
	_, err = o.Search(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int64(2), a.searchCalls.Load())
}

func TestOrchestrator_FailedSearchesAreNotCached(t *testing.T) {
	a := &mockAdapter{platform: "lark", configID: "lark-a", searchFn: func(context.Context, domain.SearchRequest, []string) ([]domain.MessageResult, error) {
		return nil, errors.New("down")
	}}

	o := NewOrchestrator(newTestRegistry(t, a))
	defer o.Close()

	req := domain.SearchRequest{Query: "hit"}
	_, err := o.Search(context.Background(), req)
	require.NoError(t, err)
	_, err = o.Search(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int64(2), a.searchCalls.Load(), "total failures must not be cached")
}

func TestOrchestrator_InvalidRequestRejected(t *testing.T) {
	a := &mockAdapter{platform: "lark", configID: "lark-a"}
	o := NewOrchestrator(newTestRegistry(t, a))
	defer o.Close()

	_, err := o.Search(context.Background(), domain.SearchRequest{Query: ""})
	require.Error(t, err)

	var se *domain.SearchError
	require.ErrorAs(t, err, &se)
	assert.False(t, se.Retryable)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, int64(0), a.searchCalls.Load(), "invalid requests never reach adapters")
}

func TestOrchestrator_UnknownPlatformRejected(t *testing.T) {
	o := NewOrchestrator(newTestRegistry(t, &mockAdapter{platform: "lark", configID: "lark-a"}))
	defer o.Close()

	_, err := o.Search(context.Background(), domain.SearchRequest{Query: "hit", Platforms: []string{"teams"}})
	assert.ErrorIs(t, err, domain.ErrPlatformNotConfigured)
}

func TestOrchestrator_NoAdapters(t *testing.T) {
	o := NewOrchestrator(NewRegistry(&mockFactory{}))
	defer o.Close()

	_, err := o.Search(context.Background(), domain.SearchRequest{Query: "hit"})
	assert.ErrorIs(t, err, domain.ErrNoAdapters)
}

func TestOrchestrator_PlatformSelection(t *testing.T) {
	a := &mockAdapter{platform: "lark", configID: "lark-a"}
	b := &mockAdapter{platform: "slack", configID: "slack-b"}

	o := NewOrchestrator(newTestRegistry(t, a, b))
	defer o.Close()

	_, err := o.Search(context.Background(), domain.SearchRequest{Query: "hit", Platforms: []string{"slack"}})
	require.NoError(t, err)

	assert.Equal(t, int64(0), a.searchCalls.Load())
	assert.Equal(t, int64(1), b.searchCalls.Load())
}

func TestOrchestrator_SequentialMode(t *testing.T) {
	a := &mockAdapter{platform: "lark", configID: "lark-a"}
	b := &mockAdapter{platform: "slack", configID: "slack-b"}

	o := NewOrchestrator(newTestRegistry(t, a, b))
	defer o.Close()

	concurrent := false
	o.UpdateOptions(driving.SearchOptionsPatch{Concurrent: &concurrent})

	resp, err := o.Search(context.Background(), domain.SearchRequest{Query: "hit"})
	require.NoError(t, err)
	assert.Len(t, resp.PlatformStatus, 2)
	assert.Equal(t, int64(1), a.searchCalls.Load())
	assert.Equal(t, int64(1), b.searchCalls.Load())
}

func TestOrchestrator_CancellationStopsSearch(t *testing.T) {
	started := make(chan struct{})
	a := &mockAdapter{platform: "lark", configID: "lark-a", searchFn: func(ctx context.Context, _ domain.SearchRequest, _ []string) ([]domain.MessageResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	o := NewOrchestrator(newTestRegistry(t, a))
	defer o.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := o.Search(ctx, domain.SearchRequest{Query: "hit"})
		assert.ErrorIs(t, err, domain.ErrSearchCancelled)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("search did not return promptly after cancellation")
	}
}

func TestOrchestrator_TimeoutYieldsPartialResults(t *testing.T) {
	fast := &mockAdapter{platform: "slack", configID: "slack-a", searchFn: func(context.Context, domain.SearchRequest, []string) ([]domain.MessageResult, error) {
		return []domain.MessageResult{result("slack", "m1", time.Now())}, nil
	}}
	slow := &mockAdapter{platform: "lark", configID: "lark-a", searchFn: func(ctx context.Context, _ domain.SearchRequest, _ []string) ([]domain.MessageResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	o := NewOrchestrator(newTestRegistry(t, fast, slow))
	defer o.Close()

	timeout := 100 * time.Millisecond
	o.UpdateOptions(driving.SearchOptionsPatch{Timeout: &timeout})

	resp, err := o.Search(context.Background(), domain.SearchRequest{Query: "hit"})
	require.NoError(t, err, "timeout must surface partial results, not an error")

	assert.Len(t, resp.Results, 1)
	assert.True(t, resp.PlatformStatus["slack"].Success)
	assert.False(t, resp.PlatformStatus["lark"].Success)
}

func TestOrchestrator_CancelSearchByID(t *testing.T) {
	started := make(chan struct{})
	a := &mockAdapter{platform: "lark", configID: "lark-a", searchFn: func(ctx context.Context, _ domain.SearchRequest, _ []string) ([]domain.MessageResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	o := NewOrchestrator(newTestRegistry(t, a))
	defer o.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := o.Search(context.Background(), domain.SearchRequest{Query: "hit", SearchID: "job-42"})
		assert.ErrorIs(t, err, domain.ErrSearchCancelled)
	}()

	<-started
	assert.True(t, o.CancelSearch("job-42"), "a running search is cancellable by its ID")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("search did not return promptly after CancelSearch")
	}

	assert.False(t, o.CancelSearch("job-42"), "a finished search is no longer tracked")
}

func TestOrchestrator_SearchIDEchoed(t *testing.T) {
	a := &mockAdapter{platform: "lark", configID: "lark-a"}
	o := NewOrchestrator(newTestRegistry(t, a))
	defer o.Close()

	resp, err := o.Search(context.Background(), domain.SearchRequest{Query: "hit", SearchID: "job-7"})
	require.NoError(t, err)
	assert.Equal(t, "job-7", resp.SearchID)

	resp, err = o.Search(context.Background(), domain.SearchRequest{Query: "other"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SearchID, "a search without an ID gets a generated one")
}

func TestOrchestrator_CancelSearchUnknownID(t *testing.T) {
	o := NewOrchestrator(NewRegistry(&mockFactory{}))
	defer o.Close()
	assert.False(t, o.CancelSearch("nope"))
}

func TestOrchestrator_OptionsPatch(t *testing.T) {
	o := NewOrchestrator(NewRegistry(&mockFactory{}))
	defer o.Close()

	assert.Equal(t, driving.DefaultSearchOptions(), o.Options())

	ttl := time.Minute
	o.UpdateOptions(driving.SearchOptionsPatch{CacheTTL: &ttl})

	got := o.Options()
	assert.Equal(t, time.Minute, got.CacheTTL)
	assert.Equal(t, driving.DefaultSearchOptions().Timeout, got.Timeout, "unset fields keep their value")
}

func TestOrchestrator_MetricsAndReset(t *testing.T) {
	a := &mockAdapter{platform: "lark", configID: "lark-a"}
	o := NewOrchestrator(newTestRegistry(t, a))
	defer o.Close()

	_, err := o.Search(context.Background(), domain.SearchRequest{Query: "hit"})
	require.NoError(t, err)

	m := o.Metrics()
	assert.Equal(t, int64(1), m.TotalSearches)
	assert.Equal(t, int64(1), m.Succeeded)
	require.Contains(t, m.Platforms, "lark")
	assert.Equal(t, int64(1), m.Platforms["lark"].Attempts)

	o.ResetMetrics()
	m = o.Metrics()
	assert.Equal(t, int64(0), m.TotalSearches)
	assert.Empty(t, m.Platforms)
}
