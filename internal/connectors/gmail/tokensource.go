package gmail

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/parley-cli/internal/credentials"
)

// tokenSource adapts the credential cache to oauth2.TokenSource so Google
// API clients use our credential management (including refresh) instead of
// their own.
type tokenSource struct {
	creds     *credentials.Cache
	accountID string
	ctx       context.Context
}

// newTokenSource creates an oauth2.TokenSource for one account.
func newTokenSource(ctx context.Context, creds *credentials.Cache, accountID string) oauth2.TokenSource {
	return &tokenSource{creds: creds, accountID: accountID, ctx: ctx}
}

// Token implements oauth2.TokenSource.
func (t *tokenSource) Token() (*oauth2.Token, error) {
	cred, err := t.creds.Get(t.ctx, t.accountID)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{
		AccessToken: cred.AccessToken,
		TokenType:   "Bearer",
	}
	if cred.ExpiresAt != nil {
		tok.Expiry = *cred.ExpiresAt
	}
	return tok, nil
}
