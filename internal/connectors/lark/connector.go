// Package lark implements the PlatformAdapter contract for Lark (Feishu).
//
// Lark has no native message search endpoint, so the adapter enumerates the
// account's chats, pages through each chat's recent messages and filters
// locally. Chat enumeration is cached for a short TTL, containers are
// processed in fixed-size concurrent batches to respect rate limits, and the
// whole account search stops early once the result quota is reached.
package lark

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/parley-cli/internal/connectors/backoff"
	"github.com/custodia-labs/parley-cli/internal/core/domain"
	"github.com/custodia-labs/parley-cli/internal/core/ports/driven"
	"github.com/custodia-labs/parley-cli/internal/credentials"
	"github.com/custodia-labs/parley-cli/internal/logger"
)

// Tunables for the per-account search pipeline. Settings in the platform
// config override them.
const (
	DefaultBatchSize     = 5
	DefaultMaxPages      = 10
	DefaultPageSize      = 50
	DefaultResultQuota   = 200
	DefaultMaxContainers = 100
	DefaultContainerTTL  = 5 * time.Minute
	DefaultRecencyWindow = 90 * 24 * time.Hour
)

// Ensure Connector implements the interface.
var _ driven.PlatformAdapter = (*Connector)(nil)

// cachedContainers is one account's chat list with its fetch time.
type cachedContainers struct {
	chats     []chatInfo
	fetchedAt time.Time
}

// Connector implements driven.PlatformAdapter for Lark.
type Connector struct {
	cfg    domain.PlatformConfig
	client *Client
	creds  *credentials.Cache
	policy domain.RetryPolicy

	containerMu  sync.Mutex
	containers   map[string]cachedContainers
	containerTTL time.Duration

	senderMu sync.Mutex
	senders  map[string]domain.Sender

	batchSize     int
	maxPages      int
	pageSize      int
	quota         int
	maxContainers int
	recencyWindow time.Duration
}

// New creates a Lark connector from a platform configuration.
func New(cfg domain.PlatformConfig, creds *credentials.Cache) *Connector {
	c := &Connector{
		cfg:           cfg,
		client:        NewClient(cfg.Settings["base_url"], creds),
		creds:         creds,
		policy:        domain.DefaultRetryPolicy(),
		containers:    make(map[string]cachedContainers),
		containerTTL:  DefaultContainerTTL,
		senders:       make(map[string]domain.Sender),
		batchSize:     settingInt(cfg.Settings, "batch_size", DefaultBatchSize),
		maxPages:      settingInt(cfg.Settings, "max_pages", DefaultMaxPages),
		pageSize:      settingInt(cfg.Settings, "page_size", DefaultPageSize),
		quota:         settingInt(cfg.Settings, "result_quota", DefaultResultQuota),
		maxContainers: settingInt(cfg.Settings, "max_containers", DefaultMaxContainers),
		recencyWindow: DefaultRecencyWindow,
	}
	return c
}

func settingInt(settings map[string]string, key string, def int) int {
	if v, ok := settings[key]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// Platform returns the platform name.
func (c *Connector) Platform() string { return domain.PlatformLark }

// ConfigID returns the configuration ID.
func (c *Connector) ConfigID() string { return c.cfg.ID }

// Search runs the container-enumeration search for each requested account
// and merges the results, newest first.
func (c *Connector) Search(ctx context.Context, req domain.SearchRequest, accountIDs []string) ([]domain.MessageResult, error) {
	if len(accountIDs) == 0 {
		accountIDs = c.cfg.Accounts
	}
	if len(accountIDs) == 0 {
		return nil, fmt.Errorf("lark config %s: %w", c.cfg.ID, domain.ErrAuthRequired)
	}

	var results []domain.MessageResult
	for _, accountID := range accountIDs {
		remaining := c.quota - len(results)
		if remaining <= 0 {
			break
		}
		found, err := c.searchAccount(ctx, req, accountID, remaining)
		if err != nil {
			if IsReauth(err) {
				c.creds.Invalidate(accountID)
				return nil, fmt.Errorf("account %s: %w", accountID, domain.ErrAuthExpired)
			}
			return nil, fmt.Errorf("account %s: %w", accountID, err)
		}
		results = append(results, found...)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Timestamp.After(results[j].Timestamp)
	})
	return results, nil
}

// searchAccount enumerates containers and searches them in batches.
func (c *Connector) searchAccount(ctx context.Context, req domain.SearchRequest, accountID string, quota int) ([]domain.MessageResult, error) {
	req.Progress.Report(domain.SearchProgress{
		Platform:  domain.PlatformLark,
		AccountID: accountID,
		Stage:     domain.StageListingContainers,
	})

	chats, err := c.listContainers(ctx, accountID)
	if err != nil {
		return nil, err
	}
	targets := c.filterContainers(chats)
	logger.Debug("lark %s: searching %d of %d containers", accountID, len(targets), len(chats))

	var (
		mu      sync.Mutex
		results []domain.MessageResult
		done    int
	)
	remaining := func() int {
		mu.Lock()
		defer mu.Unlock()
		return quota - len(results)
	}

	for start := 0; start < len(targets); start += c.batchSize {
		end := start + c.batchSize
		if end > len(targets) {
			end = len(targets)
		}
		batch := targets[start:end]

		g, gctx := errgroup.WithContext(ctx)
		for _, chat := range batch {
			g.Go(func() error {
				found, err := c.searchContainer(gctx, req, accountID, chat, remaining)
				if err != nil {
					return err
				}
				mu.Lock()
				results = append(results, found...)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		done += len(batch)
		mu.Lock()
		found := len(results)
		mu.Unlock()
		req.Progress.Report(domain.SearchProgress{
			Platform:        domain.PlatformLark,
			AccountID:       accountID,
			Stage:           domain.StageSearching,
			ContainersDone:  done,
			ContainersTotal: len(targets),
			Found:           found,
			Percent:         100 * float64(done) / float64(len(targets)),
		})

		if found >= quota {
			logger.Debug("lark %s: quota %d reached after %d containers", accountID, quota, done)
			break
		}
	}

	req.Progress.Report(domain.SearchProgress{
		Platform:        domain.PlatformLark,
		AccountID:       accountID,
		Stage:           domain.StageDone,
		ContainersDone:  done,
		ContainersTotal: len(targets),
		Found:           len(results),
		Percent:         100,
	})
	return results, nil
}

// listContainers returns the account's chats, from cache within TTL.
func (c *Connector) listContainers(ctx context.Context, accountID string) ([]chatInfo, error) {
	c.containerMu.Lock()
	cached, ok := c.containers[accountID]
	c.containerMu.Unlock()
	if ok && time.Since(cached.fetchedAt) < c.containerTTL {
		return cached.chats, nil
	}

	var chats []chatInfo
	pageToken := ""
	for {
		var page *chatListPage
		err := backoff.Do(ctx, c.policy, Classify, func() error {
			var e error
			page, e = c.client.listChats(ctx, accountID, pageToken, 100)
			return e
		})
		if err != nil {
			return nil, fmt.Errorf("list chats: %w", err)
		}
		chats = append(chats, page.Items...)
		if !page.HasMore || page.PageToken == "" {
			break
		}
		pageToken = page.PageToken
	}

	c.containerMu.Lock()
	c.containers[accountID] = cachedContainers{chats: chats, fetchedAt: time.Now()}
	c.containerMu.Unlock()
	return chats, nil
}

// filterContainers applies the recency window and the container cap.
func (c *Connector) filterContainers(chats []chatInfo) []chatInfo {
	cutoff := time.Now().Add(-c.recencyWindow)
	filtered := make([]chatInfo, 0, len(chats))
	for _, chat := range chats {
		if chat.LastActiveAt != "" {
			if active := parseLarkTime(chat.LastActiveAt); !active.IsZero() && active.Before(cutoff) {
				continue
			}
		}
		filtered = append(filtered, chat)
		if len(filtered) >= c.maxContainers {
			break
		}
	}
	return filtered
}

// searchContainer pages through one chat applying the local predicate.
// Container-fatal errors (no permission, not found, recalled, not a member)
// skip the container; credential errors propagate.
func (c *Connector) searchContainer(ctx context.Context, req domain.SearchRequest, accountID string, chat chatInfo, remaining func() int) ([]domain.MessageResult, error) {
	var results []domain.MessageResult
	pageToken := ""

	for page := 0; page < c.maxPages; page++ {
		if remaining() <= 0 {
			return results, nil
		}

		var mp *messagePage
		err := backoff.Do(ctx, c.policy, Classify, func() error {
			var e error
			mp, e = c.client.listMessages(ctx, accountID, chat.ChatID, pageToken, c.pageSize)
			return e
		})
		if err != nil {
			if IsContainerFatal(err) {
				logger.Debug("lark: skipping chat %s: %v", chat.ChatID, err)
				return results, nil
			}
			return nil, fmt.Errorf("chat %s: %w", chat.ChatID, err)
		}

		for i := range mp.Items {
			msg := &mp.Items[i]
			text, msgType, ok := matchMessage(msg, &req)
			if !ok {
				continue
			}
			sender := c.resolveSender(ctx, accountID, msg.Sender.ID)
			if !matchSender(sender, req.Filters) {
				continue
			}
			results = append(results, c.toResult(msg, chat, accountID, text, msgType, sender, req.Query))
			if len(results) >= remaining() {
				return results, nil
			}
		}

		if !mp.HasMore || mp.PageToken == "" {
			break
		}
		pageToken = mp.PageToken
	}
	return results, nil
}

// resolveSender looks up a sender by open ID, caching per connector.
// Lookup failures fall back to the raw ID rather than failing the message.
func (c *Connector) resolveSender(ctx context.Context, accountID, openID string) domain.Sender {
	key := accountID + "/" + openID
	c.senderMu.Lock()
	if s, ok := c.senders[key]; ok {
		c.senderMu.Unlock()
		return s
	}
	c.senderMu.Unlock()

	sender := domain.Sender{UserID: openID, Name: openID}
	var info *userInfo
	err := backoff.Do(ctx, c.policy, Classify, func() error {
		var e error
		info, e = c.client.getUser(ctx, accountID, openID)
		return e
	})
	if err == nil {
		sender = domain.Sender{
			UserID:    info.User.OpenID,
			Name:      info.User.Name,
			Email:     info.User.Email,
			AvatarURL: info.User.Avatar.Avatar72,
		}
	} else {
		logger.Debug("lark: sender lookup %s failed: %v", openID, err)
	}

	c.senderMu.Lock()
	c.senders[key] = sender
	c.senderMu.Unlock()
	return sender
}

// toResult converts a matched Lark message to the canonical shape.
func (c *Connector) toResult(msg *messageInfo, chat chatInfo, accountID, text string, msgType domain.MessageType, sender domain.Sender, query string) domain.MessageResult {
	link, _ := c.DeepLink(msg.MessageID, map[string]string{"chat_id": chat.ChatID})
	return domain.MessageResult{
		Platform:  domain.PlatformLark,
		ID:        msg.MessageID,
		Sender:    sender,
		Content:   text,
		Snippet:   makeSnippet(text, query),
		Timestamp: parseLarkTime(msg.CreateTime),
		Container: chat.Name,
		DeepLink:  link,
		Type:      msgType,
		AccountID: accountID,
		Metadata:  map[string]string{"chat_id": chat.ChatID},
	}
}

// Authenticate verifies at least one account has a usable credential.
func (c *Connector) Authenticate(ctx context.Context) error {
	if len(c.cfg.Accounts) == 0 {
		return fmt.Errorf("lark config %s: %w", c.cfg.ID, domain.ErrAuthRequired)
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
			logger.Warn("lark: refresh %s failed: %v", id, err)
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
		return fmt.Errorf("lark config %s: %w", c.cfg.ID, domain.ErrAuthRequired)
	}
	_, err := c.client.listChats(ctx, c.cfg.Accounts[0], "", 1)
	if err != nil && IsReauth(err) {
		return fmt.Errorf("%w: %v", domain.ErrAuthExpired, err)
	}
	return err
}

// TestConnection validates the connection and the first account's identity.
func (c *Connector) TestConnection(ctx context.Context) error {
	if err := c.ValidateConnection(ctx); err != nil {
		return err
	}
	_, err := c.GetUserInfo(ctx, c.cfg.Accounts[0])
	return err
}

// GetUserInfo fetches the authenticated user behind an account.
func (c *Connector) GetUserInfo(ctx context.Context, accountID string) (*domain.UserInfo, error) {
	cred, err := c.creds.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	info, err := c.client.getUser(ctx, accountID, cred.AccountID)
	if err != nil {
		return nil, err
	}
	return &domain.UserInfo{
		ID:    info.User.OpenID,
		Name:  info.User.Name,
		Email: info.User.Email,
	}, nil
}

// DeepLink produces a Lark applink for a message.
func (c *Connector) DeepLink(messageID string, params map[string]string) (string, error) {
	if messageID == "" {
		return "", fmt.Errorf("%w: empty message id", domain.ErrInvalidInput)
	}
	link := "https://applink.larksuite.com/client/message/link?messageId=" + messageID
	if chatID := params["chat_id"]; chatID != "" {
		link += "&openChatId=" + chatID
	}
	return link, nil
}

// Disconnect drops cached containers and sender lookups.
func (c *Connector) Disconnect() error {
	c.containerMu.Lock()
	c.containers = make(map[string]cachedContainers)
	c.containerMu.Unlock()
	c.senderMu.Lock()
	c.senders = make(map[string]domain.Sender)
	c.senderMu.Unlock()
	return nil
}
