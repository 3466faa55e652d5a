package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/parley-cli/internal/core/domain"
	"github.com/custodia-labs/parley-cli/internal/core/ports/driven"
	"github.com/custodia-labs/parley-cli/internal/core/ports/driving"
	"github.com/custodia-labs/parley-cli/internal/logger"
)

// Ensure Registry implements the interface.
var _ driving.AdapterRegistry = (*Registry)(nil)

// Registry owns adapter instances keyed by configuration ID.
// It is constructed explicitly and injected into the orchestrator; there is
// no process-wide instance.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]driven.PlatformAdapter
	configs  map[string]domain.PlatformConfig
	factory  driven.AdapterFactory
}

// NewRegistry creates an empty registry backed by the adapter factory.
func NewRegistry(factory driven.AdapterFactory) *Registry {
	return &Registry{
		adapters: make(map[string]driven.PlatformAdapter),
		configs:  make(map[string]domain.PlatformConfig),
		factory:  factory,
	}
}

// Load builds and registers an adapter for cfg. A failed connection check
// does not fail the load: the adapter stays registered so a later search or
// credential refresh can bring it back without a separate bootstrap step.
func (r *Registry) Load(ctx context.Context, cfg domain.PlatformConfig) error {
	adapter, err := r.factory.New(cfg)
	if err != nil {
		return fmt.Errorf("load %s: %w", cfg.ID, err)
	}

	if err := adapter.ValidateConnection(ctx); err != nil {
		logger.Warn("adapter %s loaded with failing connection check: %v", cfg.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.adapters[cfg.ID]; ok {
		if err := old.Disconnect(); err != nil {
			logger.Warn("disconnect %s: %v", cfg.ID, err)
		}
	}
	r.adapters[cfg.ID] = adapter
	r.configs[cfg.ID] = cfg
	logger.Info("loaded adapter %s (%s)", cfg.ID, cfg.Platform)
	return nil
}

// Unload disconnects and removes the adapter with the given config ID.
func (r *Registry) Unload(id string) error {
	r.mu.Lock()
	adapter, ok := r.adapters[id]
	delete(r.adapters, id)
	delete(r.configs, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("unload %s: %w", id, domain.ErrNotFound)
	}
	if err := adapter.Disconnect(); err != nil {
		logger.Warn("disconnect %s: %v", id, err)
	}
	return nil
}

// Reload unloads then loads the adapter for cfg.
func (r *Registry) Reload(ctx context.Context, cfg domain.PlatformConfig) error {
	// Unload is best-effort: reloading a config that never loaded is fine.
	_ = r.Unload(cfg.ID)
	return r.Load(ctx, cfg)
}

// Resolve returns the adapter for an exact config ID, or for a bare
// platform name by prefix match. With several configs per platform the
// first match in ID order wins.
func (r *Registry) Resolve(idOrPlatform string) (driven.PlatformAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if adapter, ok := r.adapters[idOrPlatform]; ok {
		return adapter, true
	}
	for _, id := range r.sortedIDsLocked() {
		if strings.HasPrefix(id, idOrPlatform) {
			return r.adapters[id], true
		}
	}
	return nil, false
}

// ResolveAll returns every adapter matching idOrPlatform.
func (r *Registry) ResolveAll(idOrPlatform string) []driven.PlatformAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if adapter, ok := r.adapters[idOrPlatform]; ok {
		return []driven.PlatformAdapter{adapter}
	}
	var matches []driven.PlatformAdapter
	for _, id := range r.sortedIDsLocked() {
		if strings.HasPrefix(id, idOrPlatform) {
			matches = append(matches, r.adapters[id])
		}
	}
	return matches
}

// ListActive returns the config IDs of all registered adapters, sorted.
func (r *Registry) ListActive() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedIDsLocked()
}

func (r *Registry) sortedIDsLocked() []string {
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ValidateAll checks every adapter's connection.
func (r *Registry) ValidateAll(ctx context.Context) map[string]bool {
	r.mu.RLock()
	adapters := make(map[string]driven.PlatformAdapter, len(r.adapters))
	for id, a := range r.adapters {
		adapters[id] = a
	}
	r.mu.RUnlock()

	results := make(map[string]bool, len(adapters))
	for id, adapter := range adapters {
		err := adapter.ValidateConnection(ctx)
		results[id] = err == nil
		if err != nil {
			logger.Debug("validate %s: %v", id, err)
		}
	}
	return results
}

// Cleanup disconnects every adapter, tolerating individual failures.
func (r *Registry) Cleanup() error {
	r.mu.Lock()
	adapters := r.adapters
	r.adapters = make(map[string]driven.PlatformAdapter)
	r.configs = make(map[string]domain.PlatformConfig)
	r.mu.Unlock()

	var lastErr error
	for id, adapter := range adapters {
		if err := adapter.Disconnect(); err != nil {
			logger.Warn("disconnect %s: %v", id, err)
			lastErr = err
		}
	}
	return lastErr
}
