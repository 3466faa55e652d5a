package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/custodia-labs/parley-cli/internal/core/domain"
	"github.com/custodia-labs/parley-cli/internal/credentials"
)

const (
	// DefaultBaseURL is the Slack Web API endpoint.
	DefaultBaseURL = "https://slack.com/api"

	// DefaultTimeout is the HTTP request timeout.
	DefaultTimeout = 30 * time.Second
)

// apiError is a non-ok Slack API response.
type apiError struct {
	Reason string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("slack: API error: %s", e.Reason)
}

// Unwrap maps well-known Slack error strings onto domain sentinels so the
// orchestrator's classification works unchanged.
func (e *apiError) Unwrap() error {
	switch e.Reason {
	case "invalid_auth", "token_expired", "token_revoked", "not_authed":
		return domain.ErrAuthExpired
	case "ratelimited", "rate_limited":
		return domain.ErrRateLimited
	default:
		return nil
	}
}

// IsReauth reports whether err requires a credential refresh.
func IsReauth(err error) bool {
	return errors.Is(err, domain.ErrAuthExpired)
}

// Client is a thin JSON client for the Slack Web API.
type Client struct {
	baseURL string
	http    *http.Client
	creds   *credentials.Cache
}

// NewClient creates a Slack API client.
func NewClient(baseURL string, creds *credentials.Cache) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
		creds:   creds,
	}
}

// searchMatch is one hit from search.messages.
type searchMatch struct {
	IID       string `json:"iid"`
	TS        string `json:"ts"`
	Text      string `json:"text"`
	User      string `json:"user"`
	Username  string `json:"username"`
	Permalink string `json:"permalink"`
	Channel   struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"channel"`
}

// searchPage is one page of search.messages results.
type searchPage struct {
	Total   int
	Page    int
	Pages   int
	Matches []searchMatch
}

// SearchMessages calls search.messages for one account.
func (c *Client) SearchMessages(ctx context.Context, accountID, query string, page, count int) (*searchPage, error) {
	cred, err := c.creds.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}

	q := url.Values{}
	q.Set("query", query)
	q.Set("page", strconv.Itoa(page))
	q.Set("count", strconv.Itoa(count))
	q.Set("sort", "timestamp")
	q.Set("sort_dir", "desc")

	u := c.baseURL + "/search.messages?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("slack request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &apiError{Reason: "ratelimited"}
	}

	var body struct {
		OK       bool   `json:"ok"`
		Error    string `json:"error"`
		Messages struct {
			Total  int `json:"total"`
			Paging struct {
				Page  int `json:"page"`
				Pages int `json:"pages"`
			} `json:"paging"`
			Matches []searchMatch `json:"matches"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !body.OK {
		return nil, &apiError{Reason: body.Error}
	}

	return &searchPage{
		Total:   body.Messages.Total,
		Page:    body.Messages.Paging.Page,
		Pages:   body.Messages.Paging.Pages,
		Matches: body.Messages.Matches,
	}, nil
}

// AuthTest calls auth.test, returning the authenticated user.
func (c *Client) AuthTest(ctx context.Context, accountID string) (*domain.UserInfo, error) {
	cred, err := c.creds.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth.test", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("slack request: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		OK     bool   `json:"ok"`
		Error  string `json:"error"`
		UserID string `json:"user_id"`
		User   string `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !body.OK {
		return nil, &apiError{Reason: body.Error}
	}
	return &domain.UserInfo{ID: body.UserID, Name: body.User}, nil
}

// parseSlackTS converts a Slack "1503435956.000247" timestamp.
func parseSlackTS(ts string) time.Time {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
