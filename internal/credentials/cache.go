// Package credentials caches short-lived access credentials per account and
// refreshes them when a platform rejects or expires them. The upstream
// credential store stays the source of truth; refreshed tokens are pushed
// back best-effort.
package credentials

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/parley-cli/internal/core/domain"
	"github.com/custodia-labs/parley-cli/internal/core/ports/driven"
	"github.com/custodia-labs/parley-cli/internal/logger"
)

// Refresher exchanges a refresh token for a new access token.
// Each platform registers its own implementation.
type Refresher interface {
	Refresh(ctx context.Context, cred *domain.CachedCredential) (*domain.CachedCredential, error)
}

// Cache is a TTL cache of credentials keyed by token ID.
type Cache struct {
	mu         sync.RWMutex
	store      driven.CredentialStore
	ttl        time.Duration
	entries    map[string]*domain.CachedCredential
	refreshers map[string]Refresher

	// upstreamTimeout bounds the fire-and-forget upstream update.
	upstreamTimeout time.Duration
}

// NewCache creates a credential cache backed by the upstream store.
// A non-positive ttl falls back to domain.DefaultCredentialTTL.
func NewCache(store driven.CredentialStore, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = domain.DefaultCredentialTTL
	}
	return &Cache{
		store:           store,
		ttl:             ttl,
		entries:         make(map[string]*domain.CachedCredential),
		refreshers:      make(map[string]Refresher),
		upstreamTimeout: 10 * time.Second,
	}
}

// RegisterRefresher installs the refresh implementation for a platform.
func (c *Cache) RegisterRefresher(platform string, r Refresher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshers[platform] = r
}

// Get returns a live credential for the token ID. A cache hit within TTL
// returns immediately; a miss fetches the full record from the upstream
// store. An expired credential is refreshed before being returned.
func (c *Cache) Get(ctx context.Context, tokenID string) (*domain.CachedCredential, error) {
	c.mu.RLock()
	cred, ok := c.entries[tokenID]
	c.mu.RUnlock()

	if ok && !cred.Stale(c.ttl) {
		if cred.IsExpired(domain.ExpirySkew) {
			logger.Debug("credential %s expired in cache, refreshing", tokenID)
			return c.Refresh(ctx, tokenID)
		}
		return cred, nil
	}

	logger.Debug("credential cache miss for %s, fetching upstream", tokenID)
	fetched, err := c.store.FetchCredential(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("fetch credential %s: %w", tokenID, err)
	}
	fetched.CachedAt = time.Now()

	c.mu.Lock()
	c.entries[tokenID] = fetched
	c.mu.Unlock()

	if fetched.IsExpired(domain.ExpirySkew) {
		return c.Refresh(ctx, tokenID)
	}
	return fetched, nil
}

// Refresh exchanges the stored refresh token for a new access token using
// the platform's registered refresher, caches the result and pushes it
// upstream asynchronously.
func (c *Cache) Refresh(ctx context.Context, tokenID string) (*domain.CachedCredential, error) {
	c.mu.RLock()
	cred, ok := c.entries[tokenID]
	c.mu.RUnlock()

	if !ok {
		fetched, err := c.store.FetchCredential(ctx, tokenID)
		if err != nil {
			return nil, fmt.Errorf("fetch credential %s: %w", tokenID, err)
		}
		cred = fetched
	}

	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token for %s", domain.ErrTokenRefreshFailed, tokenID)
	}

	c.mu.RLock()
	refresher, ok := c.refreshers[cred.Platform]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no refresher registered for platform %s", domain.ErrTokenRefreshFailed, cred.Platform)
	}

	refreshed, err := refresher.Refresh(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTokenRefreshFailed, err)
	}
	refreshed.TokenID = cred.TokenID
	refreshed.Platform = cred.Platform
	refreshed.AccountID = cred.AccountID
	refreshed.CachedAt = time.Now()
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = cred.RefreshToken
	}
	if refreshed.ClientID == "" {
		refreshed.ClientID = cred.ClientID
		refreshed.ClientSecret = cred.ClientSecret
	}

	c.mu.Lock()
	c.entries[tokenID] = refreshed
	c.mu.Unlock()

	c.updateUpstreamAsync(tokenID, refreshed.AccessToken, refreshed.ExpiresAt)

	logger.Info("refreshed credential %s (%s)", tokenID, cred.Platform)
	return refreshed, nil
}

// updateUpstreamAsync pushes a refreshed token back to the upstream store
// without blocking the caller. Failures are logged and ignored.
func (c *Cache) updateUpstreamAsync(tokenID, accessToken string, expiresAt *time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.upstreamTimeout)
		defer cancel()
		if err := c.store.UpdateCredential(ctx, tokenID, accessToken, expiresAt); err != nil {
			logger.Warn("upstream credential update failed for %s: %v", tokenID, err)
		}
	}()
}

// Invalidate drops the cached credential for a token ID. Called after a
// platform rejects the token so the next Get fetches or refreshes.
func (c *Cache) Invalidate(tokenID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tokenID)
}

// Clear drops every cached credential.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*domain.CachedCredential)
}

// Len returns the number of cached credentials.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
