package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/parley-cli/internal/credentials"
)

const (
	// DefaultBaseURL is the Lark open platform endpoint.
	DefaultBaseURL = "https://open.larksuite.com"

	// DefaultTimeout is the HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// ProactiveRate throttles requests ahead of Lark's per-app limits.
	ProactiveRate = 10 // req/sec

	// ProactiveBurst is the limiter burst size.
	ProactiveBurst = 5
)

// Client is a thin JSON client for the Lark open API.
// Tokens come from the credential cache per account.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	creds   *credentials.Cache
}

// NewClient creates a Lark API client.
func NewClient(baseURL string, creds *credentials.Cache) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(ProactiveRate), ProactiveBurst),
		creds:   creds,
	}
}

// envelope is the common Lark response wrapper.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// get performs an authenticated GET and decodes the data payload into out.
func (c *Client) get(ctx context.Context, accountID, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	cred, err := c.creds.Get(ctx, accountID)
	if err != nil {
		return fmt.Errorf("get credential: %w", err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("lark request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Second
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &RateLimitError{RetryAfter: retryAfter}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if env.Code != 0 {
		return &APIError{HTTPStatus: resp.StatusCode, Code: env.Code, Msg: env.Msg}
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// chatInfo is one searchable container (group chat or direct chat).
type chatInfo struct {
	ChatID       string `json:"chat_id"`
	Name         string `json:"name"`
	LastActiveAt string `json:"last_active_at,omitempty"` // Unix ms string
}

type chatListPage struct {
	Items     []chatInfo `json:"items"`
	PageToken string     `json:"page_token"`
	HasMore   bool       `json:"has_more"`
}

// listChats returns one page of the account's chats.
func (c *Client) listChats(ctx context.Context, accountID, pageToken string, pageSize int) (*chatListPage, error) {
	q := url.Values{}
	q.Set("page_size", strconv.Itoa(pageSize))
	if pageToken != "" {
		q.Set("page_token", pageToken)
	}
	var page chatListPage
	if err := c.get(ctx, accountID, "/open-apis/im/v1/chats", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// messageInfo is one raw Lark message.
type messageInfo struct {
	MessageID  string `json:"message_id"`
	MsgType    string `json:"msg_type"`
	CreateTime string `json:"create_time"` // Unix ms string
	Sender     struct {
		ID         string `json:"id"`
		SenderType string `json:"sender_type"`
	} `json:"sender"`
	Body struct {
		Content string `json:"content"` // JSON, e.g. {"text":"..."}
	} `json:"body"`
}

type messagePage struct {
	Items     []messageInfo `json:"items"`
	PageToken string        `json:"page_token"`
	HasMore   bool          `json:"has_more"`
}

// listMessages returns one page of a chat's messages, newest first.
func (c *Client) listMessages(ctx context.Context, accountID, chatID, pageToken string, pageSize int) (*messagePage, error) {
	q := url.Values{}
	q.Set("container_id_type", "chat")
	q.Set("container_id", chatID)
	q.Set("sort_type", "ByCreateTimeDesc")
	q.Set("page_size", strconv.Itoa(pageSize))
	if pageToken != "" {
		q.Set("page_token", pageToken)
	}
	var page messagePage
	if err := c.get(ctx, accountID, "/open-apis/im/v1/messages", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// userInfo is a Lark contact record.
type userInfo struct {
	User struct {
		OpenID string `json:"open_id"`
		Name   string `json:"name"`
		Email  string `json:"email,omitempty"`
		Avatar struct {
			Avatar72 string `json:"avatar_72,omitempty"`
		} `json:"avatar"`
	} `json:"user"`
}

// getUser fetches a user by open ID for sender resolution.
func (c *Client) getUser(ctx context.Context, accountID, openID string) (*userInfo, error) {
	var info userInfo
	path := "/open-apis/contact/v3/users/" + url.PathEscape(openID)
	if err := c.get(ctx, accountID, path, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// parseLarkTime converts a Unix millisecond string to time.Time.
func parseLarkTime(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
