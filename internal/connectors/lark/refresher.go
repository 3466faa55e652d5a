package lark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/custodia-labs/parley-cli/internal/core/domain"
	"github.com/custodia-labs/parley-cli/internal/credentials"
)

// Ensure Refresher implements the interface.
var _ credentials.Refresher = (*Refresher)(nil)

// Refresher exchanges Lark refresh tokens. Lark's token endpoint is not a
// standard OAuth2 form endpoint, so the shared refresher does not apply.
type Refresher struct {
	baseURL string
	http    *http.Client
}

// NewRefresher creates a Lark token refresher.
func NewRefresher(baseURL string) *Refresher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Refresher{
		baseURL: baseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// Refresh implements credentials.Refresher.
func (r *Refresher) Refresh(ctx context.Context, cred *domain.CachedCredential) (*domain.CachedCredential, error) {
	payload := map[string]string{
		"app_id":        cred.ClientID,
		"app_secret":    cred.ClientSecret,
		"grant_type":    "refresh_token",
		"refresh_token": cred.RefreshToken,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal refresh request: %w", err)
	}

	url := r.baseURL + "/open-apis/authen/v1/refresh_access_token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lark refresh: %w", err)
	}
	defer resp.Body.Close()

	var env struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
			ExpiresIn    int    `json:"expires_in"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode refresh response: %w", err)
	}
	if env.Code != 0 {
		return nil, &APIError{HTTPStatus: resp.StatusCode, Code: env.Code, Msg: env.Msg}
	}

	refreshed := &domain.CachedCredential{
		AccessToken:  env.Data.AccessToken,
		RefreshToken: env.Data.RefreshToken,
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
	}
	if env.Data.ExpiresIn > 0 {
		expiry := time.Now().Add(time.Duration(env.Data.ExpiresIn) * time.Second)
		refreshed.ExpiresAt = &expiry
	}
	return refreshed, nil
}
