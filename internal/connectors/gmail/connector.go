// Package gmail implements the PlatformAdapter contract for Gmail using the
// Google API client. Gmail supports server-side queries, so filters are
// translated into the q= search syntax and only message metadata is fetched.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/parley-cli/internal/connectors/backoff"
	"github.com/custodia-labs/parley-cli/internal/core/domain"
	"github.com/custodia-labs/parley-cli/internal/core/ports/driven"
	"github.com/custodia-labs/parley-cli/internal/credentials"
	"github.com/custodia-labs/parley-cli/internal/logger"
)

const (
	// DefaultResultQuota bounds messages fetched per account.
	DefaultResultQuota = 100

	// metadataConcurrency bounds concurrent metadata fetches.
	metadataConcurrency = 5
)

// Ensure Connector implements the interface.
var _ driven.PlatformAdapter = (*Connector)(nil)

// Connector implements driven.PlatformAdapter for Gmail.
type Connector struct {
	cfg    domain.PlatformConfig
	creds  *credentials.Cache
	policy domain.RetryPolicy

	mu       sync.Mutex
	services map[string]*gm.Service
}

// New creates a Gmail connector from a platform configuration.
func New(cfg domain.PlatformConfig, creds *credentials.Cache) *Connector {
	return &Connector{
		cfg:      cfg,
		creds:    creds,
		policy:   domain.DefaultRetryPolicy(),
		services: make(map[string]*gm.Service),
	}
}

// Platform returns the platform name.
func (c *Connector) Platform() string { return domain.PlatformGmail }

// ConfigID returns the configuration ID.
func (c *Connector) ConfigID() string { return c.cfg.ID }

// service returns the Gmail API service for an account, building it lazily.
func (c *Connector) service(ctx context.Context, accountID string) (*gm.Service, error) {
	c.mu.Lock()
	svc, ok := c.services[accountID]
	c.mu.Unlock()
	if ok {
		return svc, nil
	}

	svc, err := gm.NewService(ctx, option.WithTokenSource(newTokenSource(ctx, c.creds, accountID)))
	if err != nil {
		return nil, fmt.Errorf("gmail service: %w", err)
	}

	c.mu.Lock()
	c.services[accountID] = svc
	c.mu.Unlock()
	return svc, nil
}

// classify maps Google API errors to backoff actions.
func classify(err error) backoff.Action {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 401:
			return backoff.Reauth
		case 403, 404:
			return backoff.Skip
		case 429:
			return backoff.RetryRateLimited
		}
		if gerr.Code >= 500 {
			return backoff.Retry
		}
		return backoff.Fail
	}
	if errors.Is(err, domain.ErrAuthExpired) || errors.Is(err, domain.ErrTokenRefreshFailed) {
		return backoff.Reauth
	}
	return backoff.Retry
}

// Search runs the Gmail query for each requested account.
func (c *Connector) Search(ctx context.Context, req domain.SearchRequest, accountIDs []string) ([]domain.MessageResult, error) {
	if len(accountIDs) == 0 {
		accountIDs = c.cfg.Accounts
	}
	if len(accountIDs) == 0 {
		return nil, fmt.Errorf("gmail config %s: %w", c.cfg.ID, domain.ErrAuthRequired)
	}

	var results []domain.MessageResult
	for _, accountID := range accountIDs {
		found, err := c.searchAccount(ctx, req, accountID)
		if err != nil {
			if classify(err) == backoff.Reauth {
				c.creds.Invalidate(accountID)
				return nil, fmt.Errorf("account %s: %w", accountID, domain.ErrAuthExpired)
			}
			return nil, fmt.Errorf("account %s: %w", accountID, err)
		}
		results = append(results, found...)
		if len(results) >= DefaultResultQuota {
			break
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Timestamp.After(results[j].Timestamp)
	})
	return results, nil
}

// searchAccount lists matching message IDs, then hydrates metadata with
// bounded concurrency.
func (c *Connector) searchAccount(ctx context.Context, req domain.SearchRequest, accountID string) ([]domain.MessageResult, error) {
	svc, err := c.service(ctx, accountID)
	if err != nil {
		return nil, err
	}

	req.Progress.Report(domain.SearchProgress{
		Platform:  domain.PlatformGmail,
		AccountID: accountID,
		Stage:     domain.StageSearching,
	})

	var list *gm.ListMessagesResponse
	err = backoff.Do(ctx, c.policy, classify, func() error {
		var e error
		list, e = svc.Users.Messages.List("me").
			Q(buildQuery(req)).
			MaxResults(DefaultResultQuota).
			Context(ctx).Do()
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	results := make([]domain.MessageResult, len(list.Messages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(metadataConcurrency)
	for i, m := range list.Messages {
		g.Go(func() error {
			var msg *gm.Message
			err := backoff.Do(gctx, c.policy, classify, func() error {
				var e error
				msg, e = svc.Users.Messages.Get("me", m.Id).
					Format("metadata").
					MetadataHeaders("From", "Subject", "Date").
					Context(gctx).Do()
				return e
			})
			if err != nil {
				if classify(err) == backoff.Skip {
					logger.Debug("gmail: skipping message %s: %v", m.Id, err)
					return nil
				}
				return err
			}
			results[i] = toResult(msg, accountID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Drop slots left empty by skipped messages.
	kept := results[:0]
	for i := range results {
		if results[i].ID != "" {
			kept = append(kept, results[i])
		}
	}

	req.Progress.Report(domain.SearchProgress{
		Platform:  domain.PlatformGmail,
		AccountID: accountID,
		Stage:     domain.StageDone,
		Found:     len(kept),
		Percent:   100,
	})
	return kept, nil
}

// buildQuery translates the request into Gmail q= syntax.
func buildQuery(req domain.SearchRequest) string {
	parts := []string{req.Query}
	if f := req.Filters; f != nil {
		if f.Sender != "" {
			parts = append(parts, "from:"+f.Sender)
		}
		if f.Start != nil {
			parts = append(parts, "after:"+f.Start.Format("2006/01/02"))
		}
		if f.End != nil {
			parts = append(parts, "before:"+f.End.Format("2006/01/02"))
		}
		if f.Type == domain.MessageTypeFile || f.Type == domain.MessageTypeImage {
			parts = append(parts, "has:attachment")
		}
	}
	return strings.Join(parts, " ")
}

// toResult converts a Gmail message to the canonical shape.
func toResult(msg *gm.Message, accountID string) domain.MessageResult {
	var from, subject string
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "From":
				from = h.Value
			case "Subject":
				subject = h.Value
			}
		}
	}

	sender := parseFrom(from)
	content := subject
	if content == "" {
		content = msg.Snippet
	}

	return domain.MessageResult{
		Platform:  domain.PlatformGmail,
		ID:        msg.Id,
		Sender:    sender,
		Content:   content,
		Snippet:   msg.Snippet,
		Timestamp: time.UnixMilli(msg.InternalDate),
		Container: "INBOX",
		DeepLink:  "https://mail.google.com/mail/u/0/#all/" + msg.Id,
		Type:      domain.MessageTypeText,
		AccountID: accountID,
		Metadata:  map[string]string{"thread_id": msg.ThreadId},
	}
}

// parseFrom splits an RFC 5322 From header into name and address.
func parseFrom(from string) domain.Sender {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		name := strings.Trim(strings.TrimSpace(from[:i]), `"`)
		email := strings.TrimRight(from[i+1:], ">")
		return domain.Sender{Name: name, Email: email}
	}
	return domain.Sender{Name: from, Email: from}
}

// Authenticate verifies at least one account has a usable credential.
func (c *Connector) Authenticate(ctx context.Context) error {
	if len(c.cfg.Accounts) == 0 {
		return fmt.Errorf("gmail config %s: %w", c.cfg.ID, domain.ErrAuthRequired)
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
			logger.Warn("gmail: refresh %s failed: %v", id, err)
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
		return fmt.Errorf("gmail config %s: %w", c.cfg.ID, domain.ErrAuthRequired)
	}
	_, err := c.GetUserInfo(ctx, c.cfg.Accounts[0])
	return err
}

// TestConnection is the same check; the profile call validates the token.
func (c *Connector) TestConnection(ctx context.Context) error {
	return c.ValidateConnection(ctx)
}

// GetUserInfo fetches the mailbox profile behind an account.
func (c *Connector) GetUserInfo(ctx context.Context, accountID string) (*domain.UserInfo, error) {
	svc, err := c.service(ctx, accountID)
	if err != nil {
		return nil, err
	}
	profile, err := svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		if classify(err) == backoff.Reauth {
			return nil, fmt.Errorf("%w: %v", domain.ErrAuthExpired, err)
		}
		return nil, err
	}
	return &domain.UserInfo{
		ID:    profile.EmailAddress,
		Name:  profile.EmailAddress,
		Email: profile.EmailAddress,
	}, nil
}

// DeepLink produces a Gmail web URL for a message.
func (c *Connector) DeepLink(messageID string, _ map[string]string) (string, error) {
	if messageID == "" {
		return "", fmt.Errorf("%w: empty message id", domain.ErrInvalidInput)
	}
	return "https://mail.google.com/mail/u/0/#all/" + messageID, nil
}

// Disconnect drops cached API services.
func (c *Connector) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services = make(map[string]*gm.Service)
	return nil
}
