package domain

import "time"

// ExpirySkew is the lookahead window applied when checking credential
// expiry. A credential expiring within the window counts as expired so a
// long-running search never starts with a token about to die.
const ExpirySkew = 5 * time.Minute

// DefaultCredentialTTL is how long a fetched credential stays cached before
// the upstream store is consulted again.
const DefaultCredentialTTL = time.Hour

// CachedCredential is a live access credential for one platform account.
type CachedCredential struct {
	// TokenID is the upstream store's identifier for this credential.
	TokenID string `json:"token_id"`

	// Platform is the owning platform name.
	Platform string `json:"platform"`

	// AccountID is the owning account identifier (email, user ID).
	AccountID string `json:"account_id"`

	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`

	// ExpiresAt is when the access token expires.
	// Nil means the token never expires.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// CachedAt is when this credential entered the local cache.
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired reports whether the access token is expired or will expire
// within skew. A nil expiry never expires.
func (c *CachedCredential) IsExpired(skew time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return time.Now().Add(skew).After(*c.ExpiresAt)
}

// Stale reports whether the cache entry itself has outlived ttl and should
// be re-fetched from the upstream store.
func (c *CachedCredential) Stale(ttl time.Duration) bool {
	return time.Since(c.CachedAt) > ttl
}
