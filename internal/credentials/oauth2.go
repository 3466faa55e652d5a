package credentials

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/parley-cli/internal/core/domain"
)

// OAuth2Refresher refreshes credentials against a standard OAuth2 token
// endpoint. Platforms with spec-compliant token endpoints (gmail, slack)
// share this implementation; platforms with bespoke refresh calls provide
// their own Refresher.
type OAuth2Refresher struct {
	// TokenURL is the platform's token endpoint.
	TokenURL string
}

// NewOAuth2Refresher creates a refresher for the given token endpoint.
func NewOAuth2Refresher(tokenURL string) *OAuth2Refresher {
	return &OAuth2Refresher{TokenURL: tokenURL}
}

// Refresh implements Refresher using golang.org/x/oauth2.
func (r *OAuth2Refresher) Refresh(ctx context.Context, cred *domain.CachedCredential) (*domain.CachedCredential, error) {
	conf := &oauth2.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: r.TokenURL},
	}

	src := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("token endpoint %s: %w", r.TokenURL, err)
	}

	refreshed := &domain.CachedCredential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		refreshed.ExpiresAt = &expiry
	}
	return refreshed, nil
}
