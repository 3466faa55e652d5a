package connectors

import (
	"fmt"

	"github.com/custodia-labs/parley-cli/internal/connectors/gmail"
	"github.com/custodia-labs/parley-cli/internal/connectors/lark"
	"github.com/custodia-labs/parley-cli/internal/connectors/slack"
	"github.com/custodia-labs/parley-cli/internal/core/domain"
	"github.com/custodia-labs/parley-cli/internal/core/ports/driven"
	"github.com/custodia-labs/parley-cli/internal/credentials"
)

// Token endpoints for platforms with standard OAuth2 refresh.
const (
	googleTokenURL = "https://oauth2.googleapis.com/token"
	slackTokenURL  = "https://slack.com/api/oauth.v2.access"
)

// Ensure Factory implements the interface.
var _ driven.AdapterFactory = (*Factory)(nil)

// Factory builds platform adapters and registers each platform's credential
// refresher with the shared cache.
type Factory struct {
	creds *credentials.Cache
}

// NewFactory creates the adapter factory and installs refreshers for every
// built-in platform.
func NewFactory(creds *credentials.Cache) *Factory {
	creds.RegisterRefresher(domain.PlatformLark, lark.NewRefresher(""))
	creds.RegisterRefresher(domain.PlatformSlack, credentials.NewOAuth2Refresher(slackTokenURL))
	creds.RegisterRefresher(domain.PlatformGmail, credentials.NewOAuth2Refresher(googleTokenURL))
	return &Factory{creds: creds}
}

// New returns an adapter for cfg.Platform.
func (f *Factory) New(cfg domain.PlatformConfig) (driven.PlatformAdapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Platform {
	case domain.PlatformLark:
		return lark.New(cfg, f.creds), nil
	case domain.PlatformSlack:
		return slack.New(cfg, f.creds), nil
	case domain.PlatformGmail:
		return gmail.New(cfg, f.creds), nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrPlatformNotConfigured, cfg.Platform)
	}
}
