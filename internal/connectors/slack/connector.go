// Package slack implements the PlatformAdapter contract for Slack.
//
// Slack exposes a native search endpoint, so the adapter translates the
// request into search.messages query modifiers and pages through the
// server-side results rather than enumerating containers.
package slack

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/parley-cli/internal/connectors/backoff"
	"github.com/custodia-labs/parley-cli/internal/core/domain"
	"github.com/custodia-labs/parley-cli/internal/core/ports/driven"
	"github.com/custodia-labs/parley-cli/internal/credentials"
	"github.com/custodia-labs/parley-cli/internal/logger"
)

const (
	// DefaultPageCount is the search.messages page size.
	DefaultPageCount = 100

	// DefaultMaxPages bounds server-side paging per account.
	DefaultMaxPages = 3

	// DefaultResultQuota stops an account search early.
	DefaultResultQuota = 200
)

// Ensure Connector implements the interface.
var _ driven.PlatformAdapter = (*Connector)(nil)

// Connector implements driven.PlatformAdapter for Slack.
type Connector struct {
	cfg    domain.PlatformConfig
	client *Client
	creds  *credentials.Cache
	policy domain.RetryPolicy
}

// New creates a Slack connector from a platform configuration.
func New(cfg domain.PlatformConfig, creds *credentials.Cache) *Connector {
	return &Connector{
		cfg:    cfg,
		client: NewClient(cfg.Settings["base_url"], creds),
		creds:  creds,
		policy: domain.DefaultRetryPolicy(),
	}
}

// Platform returns the platform name.
func (c *Connector) Platform() string { return domain.PlatformSlack }

// ConfigID returns the configuration ID.
func (c *Connector) ConfigID() string { return c.cfg.ID }

// classify maps Slack errors to backoff actions. Unknown API error strings
// are permanent; only transport failures retry.
func classify(err error) backoff.Action {
	var apiErr *apiError
	switch {
	case IsReauth(err):
		return backoff.Reauth
	case errors.Is(err, domain.ErrRateLimited):
		return backoff.RetryRateLimited
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return backoff.Fail
	case errors.As(err, &apiErr):
		return backoff.Fail
	default:
		return backoff.Retry
	}
}

// Search pages through search.messages for each requested account.
func (c *Connector) Search(ctx context.Context, req domain.SearchRequest, accountIDs []string) ([]domain.MessageResult, error) {
	if len(accountIDs) == 0 {
		accountIDs = c.cfg.Accounts
	}
	if len(accountIDs) == 0 {
		return nil, fmt.Errorf("slack config %s: %w", c.cfg.ID, domain.ErrAuthRequired)
	}

	query := buildQuery(req)
	var results []domain.MessageResult

	for _, accountID := range accountIDs {
		req.Progress.Report(domain.SearchProgress{
			Platform:  domain.PlatformSlack,
			AccountID: accountID,
			Stage:     domain.StageSearching,
		})

		for page := 1; page <= DefaultMaxPages; page++ {
			var sp *searchPage
			err := backoff.Do(ctx, c.policy, classify, func() error {
				var e error
				sp, e = c.client.SearchMessages(ctx, accountID, query, page, DefaultPageCount)
				return e
			})
			if err != nil {
				if IsReauth(err) {
					c.creds.Invalidate(accountID)
					return nil, fmt.Errorf("account %s: %w", accountID, domain.ErrAuthExpired)
				}
				return nil, fmt.Errorf("account %s: %w", accountID, err)
			}

			for i := range sp.Matches {
				results = append(results, toResult(&sp.Matches[i], accountID))
			}
			logger.Debug("slack %s: page %d/%d, %d results so far", accountID, sp.Page, sp.Pages, len(results))

			if len(results) >= DefaultResultQuota || page >= sp.Pages {
				break
			}
		}

		req.Progress.Report(domain.SearchProgress{
			Platform:  domain.PlatformSlack,
			AccountID: accountID,
			Stage:     domain.StageDone,
			Found:     len(results),
			Percent:   100,
		})
		if len(results) >= DefaultResultQuota {
			break
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Timestamp.After(results[j].Timestamp)
	})
	return results, nil
}

// buildQuery translates filters into Slack search modifiers.
func buildQuery(req domain.SearchRequest) string {
	parts := []string{req.Query}
	if f := req.Filters; f != nil {
		if f.Sender != "" {
			parts = append(parts, "from:"+f.Sender)
		}
		if f.Start != nil {
			parts = append(parts, "after:"+f.Start.Format("2006-01-02"))
		}
		if f.End != nil {
			parts = append(parts, "before:"+f.End.Format("2006-01-02"))
		}
		switch f.Type {
		case domain.MessageTypeFile:
			parts = append(parts, "has:file")
		case domain.MessageTypeImage:
			parts = append(parts, "has:image")
		}
	}
	return strings.Join(parts, " ")
}

// toResult converts a Slack match to the canonical shape.
func toResult(m *searchMatch, accountID string) domain.MessageResult {
	snippet := m.Text
	if runes := []rune(snippet); len(runes) > 120 {
		snippet = string(runes[:120]) + "..."
	}
	return domain.MessageResult{
		Platform:  domain.PlatformSlack,
		ID:        m.TS,
		Sender:    domain.Sender{UserID: m.User, Name: m.Username},
		Content:   m.Text,
		Snippet:   snippet,
		Timestamp: parseSlackTS(m.TS),
		Container: m.Channel.Name,
		DeepLink:  m.Permalink,
		Type:      domain.MessageTypeText,
		AccountID: accountID,
		Metadata:  map[string]string{"channel_id": m.Channel.ID},
	}
}

// Authenticate verifies at least one account has a usable credential.
func (c *Connector) Authenticate(ctx context.Context) error {
	if len(c.cfg.Accounts) == 0 {
		return fmt.Errorf("slack config %s: %w", c.cfg.ID, domain.ErrAuthRequired)
	}
	var lastErr error
	for _, accountID := range c.cfg.Accounts {
		if _, err := c.creds.Get(ctx, accountID); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrAuthRequired, lastErr)
}

// RefreshCredentials refreshes one account, or all configured accounts when
// accountID is empty, tolerating individual failures.
func (c *Connector) RefreshCredentials(ctx context.Context, accountID string) error {
	if accountID != "" {
		_, err := c.creds.Refresh(ctx, accountID)
		return err
	}
	var lastErr error
	refreshed := 0
	for _, id := range c.cfg.Accounts {
		if _, err := c.creds.Refresh(ctx, id); err != nil {
			logger.Warn("slack: refresh %s failed: %v", id, err)
			lastErr = err
			continue
		}
		refreshed++
	}
	if refreshed == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

// ValidateConnection performs a lightweight API liveness check.
func (c *Connector) ValidateConnection(ctx context.Context) error {
	if len(c.cfg.Accounts) == 0 {
		return fmt.Errorf("slack config %s: %w", c.cfg.ID, domain.ErrAuthRequired)
	}
	_, err := c.client.AuthTest(ctx, c.cfg.Accounts[0])
	return err
}

// TestConnection is the same check; auth.test already validates the token.
func (c *Connector) TestConnection(ctx context.Context) error {
	return c.ValidateConnection(ctx)
}

// GetUserInfo fetches the authenticated user behind an account.
func (c *Connector) GetUserInfo(ctx context.Context, accountID string) (*domain.UserInfo, error) {
	return c.client.AuthTest(ctx, accountID)
}

// DeepLink builds an archive permalink from a channel ID and message TS.
func (c *Connector) DeepLink(messageID string, params map[string]string) (string, error) {
	channelID := params["channel_id"]
	if messageID == "" || channelID == "" {
		return "", fmt.Errorf("%w: message id and channel_id required", domain.ErrInvalidInput)
	}
	return fmt.Sprintf("https://slack.com/archives/%s/p%s", channelID, strings.ReplaceAll(messageID, ".", "")), nil
}

// Disconnect releases resources. The Slack client keeps no state.
func (c *Connector) Disconnect() error {
	return nil
}
