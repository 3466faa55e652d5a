package driving

import (
	"context"

	"github.com/custodia-labs/parley-cli/internal/core/domain"
	"github.com/custodia-labs/parley-cli/internal/core/ports/driven"
)

// AdapterRegistry owns adapter instances keyed by configuration ID.
type AdapterRegistry interface {
	// Load builds and registers an adapter for cfg. A failed connection
	// check does not fail the load; the adapter stays registered so later
	// calls can trigger a credential refresh.
	Load(ctx context.Context, cfg domain.PlatformConfig) error

	// Unload disconnects and removes the adapter with the given config ID.
	Unload(id string) error

	// Reload unloads then loads the adapter for the given config ID.
	Reload(ctx context.Context, cfg domain.PlatformConfig) error

	// Resolve returns the adapter for an exact config ID, or for a bare
	// platform name by matching any config ID carrying that prefix.
	Resolve(idOrPlatform string) (driven.PlatformAdapter, bool)

	// ResolveAll returns every adapter matching idOrPlatform.
	ResolveAll(idOrPlatform string) []driven.PlatformAdapter

	// ListActive returns the config IDs of all registered adapters.
	ListActive() []string

	// ValidateAll checks every adapter's connection.
	ValidateAll(ctx context.Context) map[string]bool

	// Cleanup disconnects every adapter, tolerating individual failures.
	Cleanup() error
}
