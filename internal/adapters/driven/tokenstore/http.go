// Package tokenstore implements the driven CredentialStore port against the
// upstream HTTP credential store.
package tokenstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/parley-cli/internal/core/domain"
	"github.com/custodia-labs/parley-cli/internal/core/ports/driven"
)

// DefaultTimeout is the HTTP request timeout for store calls.
const DefaultTimeout = 10 * time.Second

// Ensure Client implements the interface.
var _ driven.CredentialStore = (*Client)(nil)

// Client talks to the upstream credential store.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a store client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// NewClientWithHTTPClient creates a store client with a custom http.Client.
// Useful for tests.
func NewClientWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// credentialRecord is the wire shape of a full credential.
type credentialRecord struct {
	Platform     string `json:"platform"`
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	ExpiresAt    *int64 `json:"expires_at,omitempty"` // Unix seconds, null = non-expiring
}

// FetchCredential retrieves the full credential record for a token ID.
func (c *Client) FetchCredential(ctx context.Context, tokenID string) (*domain.CachedCredential, error) {
	url := fmt.Sprintf("%s/tokens/by-id/%s/full", c.baseURL, tokenID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("credential store: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("token %s: %w", tokenID, domain.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("credential store returned status %d", resp.StatusCode)
	}

	var rec credentialRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}

	cred := &domain.CachedCredential{
		TokenID:      tokenID,
		Platform:     rec.Platform,
		AccountID:    rec.UserID,
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		ClientID:     rec.ClientID,
		ClientSecret: rec.ClientSecret,
	}
	if rec.ExpiresAt != nil {
		t := time.Unix(*rec.ExpiresAt, 0)
		cred.ExpiresAt = &t
	}
	return cred, nil
}

// UpdateCredential pushes a refreshed access token upstream.
func (c *Client) UpdateCredential(ctx context.Context, tokenID, accessToken string, expiresAt *time.Time) error {
	payload := struct {
		AccessToken string `json:"access_token"`
		ExpiresAt   *int64 `json:"expires_at,omitempty"`
	}{AccessToken: accessToken}
	if expiresAt != nil {
		unix := expiresAt.Unix()
		payload.ExpiresAt = &unix
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}

	url := fmt.Sprintf("%s/tokens/by-id/%s/update", c.baseURL, tokenID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("credential store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("credential store returned status %d", resp.StatusCode)
	}
	return nil
}
