package driven

import (
	"context"

	"github.com/custodia-labs/parley-cli/internal/core/domain"
)

// PlatformAdapter searches one remote message platform.
// Each platform (lark, slack, gmail, ...) implements this interface once;
// one instance exists per platform configuration.
type PlatformAdapter interface {
	// Platform returns the platform name ("lark", "slack", ...).
	Platform() string

	// ConfigID returns the configuration ID this instance was loaded from.
	ConfigID() string

	// Search runs the platform-specific search for the given accounts and
	// returns canonical results. Pagination, rate limiting and backoff are
	// handled internally. An empty accountIDs slice means every account the
	// adapter is configured with.
	Search(ctx context.Context, req domain.SearchRequest, accountIDs []string) ([]domain.MessageResult, error)

	// Authenticate verifies the adapter holds usable credentials for at
	// least one account, fetching them from the credential cache if needed.
	Authenticate(ctx context.Context) error

	// RefreshCredentials forces a credential refresh. An empty accountID
	// refreshes every configured account, tolerating individual failures.
	RefreshCredentials(ctx context.Context, accountID string) error

	// ValidateConnection performs a lightweight liveness check against the
	// platform API.
	ValidateConnection(ctx context.Context) error

	// TestConnection is ValidateConnection plus a credential check; used by
	// interactive setup rather than the search path.
	TestConnection(ctx context.Context) error

	// GetUserInfo fetches the authenticated user behind an account.
	GetUserInfo(ctx context.Context, accountID string) (*domain.UserInfo, error)

	// DeepLink produces a URL opening the message in the platform client.
	DeepLink(messageID string, params map[string]string) (string, error)

	// Disconnect releases resources and drops cached platform state.
	Disconnect() error
}

// AdapterFactory builds a PlatformAdapter from a configuration.
type AdapterFactory interface {
	// New returns an adapter for cfg.Platform, or
	// domain.ErrPlatformNotConfigured for unknown platforms.
	New(cfg domain.PlatformConfig) (PlatformAdapter, error)
}
