package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/parley-cli/internal/core/domain"
)

// CredentialStore is the upstream source of truth for account credentials.
// The credential cache fetches full records on miss and pushes refreshed
// access tokens back best-effort.
type CredentialStore interface {
	// FetchCredential returns the full credential record for a token ID.
	// Returns domain.ErrNotFound for unknown IDs.
	FetchCredential(ctx context.Context, tokenID string) (*domain.CachedCredential, error)

	// UpdateCredential pushes a refreshed access token upstream.
	// Best-effort: callers log and ignore failures.
	UpdateCredential(ctx context.Context, tokenID, accessToken string, expiresAt *time.Time) error
}

// PlatformConfigStore persists platform configurations.
type PlatformConfigStore interface {
	List() ([]domain.PlatformConfig, error)
	Get(id string) (*domain.PlatformConfig, error)
	Save(cfg domain.PlatformConfig) error
	Delete(id string) error
}
