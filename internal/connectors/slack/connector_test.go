package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/parley-cli/internal/connectors/backoff"
	"github.com/custodia-labs/parley-cli/internal/core/domain"
	"github.com/custodia-labs/parley-cli/internal/credentials"
)

type stubCredStore struct{}

func (stubCredStore) FetchCredential(_ context.Context, tokenID string) (*domain.CachedCredential, error) {
	return &domain.CachedCredential{
		TokenID:     tokenID,
		Platform:    domain.PlatformSlack,
		AccountID:   "U123",
		AccessToken: "xoxp-test",
	}, nil
}

func (stubCredStore) UpdateCredential(context.Context, string, string, *time.Time) error {
	return nil
}

func newTestConnector(t *testing.T, handler http.HandlerFunc) *Connector {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := domain.PlatformConfig{
		ID:       "slack-test",
		Platform: domain.PlatformSlack,
		Accounts: []string{"tok1"},
		Settings: map[string]string{"base_url": srv.URL},
		Enabled:  true,
	}
	return New(cfg, credentials.NewCache(stubCredStore{}, time.Hour))
}

func searchResponse(matches []searchMatch) map[string]any {
	return map[string]any{
		"ok": true,
		"messages": map[string]any{
			"total":   len(matches),
			"paging":  map[string]any{"page": 1, "pages": 1},
			"matches": matches,
		},
	}
}

func TestConnector_Search(t *testing.T) {
	match := searchMatch{
		TS:        "1755000000.000100",
		Text:      "deploy finished without incident",
		User:      "U123",
		Username:  "ada",
		Permalink: "https://acme.slack.com/archives/C1/p1755000000000100",
	}
	match.Channel.ID = "C1"
	match.Channel.Name = "engineering"

	var gotQuery string
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search.messages", r.URL.Path)
		assert.Equal(t, "Bearer xoxp-test", r.Header.Get("Authorization"))
		assert.Equal(t, "timestamp", r.URL.Query().Get("sort"))
		assert.Equal(t, "desc", r.URL.Query().Get("sort_dir"))
		gotQuery = r.URL.Query().Get("query")
		//nolint:errcheck // test handler
		json.NewEncoder(w).Encode(searchResponse([]searchMatch{match}))
	})

	results, err := c.Search(context.Background(), domain.SearchRequest{Query: "deploy"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "deploy", gotQuery)

	require.Len(t, results, 1)
	got := results[0]
	assert.Equal(t, domain.PlatformSlack, got.Platform)
	assert.Equal(t, "1755000000.000100", got.ID)
	assert.Equal(t, "engineering", got.Container)
	assert.Equal(t, "ada", got.Sender.Name)
	assert.Equal(t, match.Permalink, got.DeepLink)
	assert.Equal(t, "C1", got.Metadata["channel_id"])
	assert.Equal(t, int64(1755000000), got.Timestamp.Unix())
}

func TestConnector_Search_AuthErrorSurfaces(t *testing.T) {
	c := newTestConnector(t, func(w http.ResponseWriter, _ *http.Request) {
		//nolint:errcheck // test handler
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "token_expired"})
	})

	_, err := c.Search(context.Background(), domain.SearchRequest{Query: "deploy"}, nil)
	assert.ErrorIs(t, err, domain.ErrAuthExpired)
}

func TestConnector_Search_NoAccounts(t *testing.T) {
	cfg := domain.PlatformConfig{ID: "slack-empty", Platform: domain.PlatformSlack}
	c := New(cfg, credentials.NewCache(stubCredStore{}, time.Hour))

	_, err := c.Search(context.Background(), domain.SearchRequest{Query: "deploy"}, nil)
	assert.ErrorIs(t, err, domain.ErrAuthRequired)
}

func TestBuildQuery(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		req  domain.SearchRequest
		want string
	}{
		{
			name: "bare query",
			req:  domain.SearchRequest{Query: "deploy"},
			want: "deploy",
		},
		{
			name: "sender modifier",
			req:  domain.SearchRequest{Query: "deploy", Filters: &domain.SearchFilters{Sender: "ada"}},
			want: "deploy from:ada",
		},
		{
			name: "date range",
			req:  domain.SearchRequest{Query: "deploy", Filters: &domain.SearchFilters{Start: &start, End: &end}},
			want: "deploy after:2026-08-01 before:2026-08-20",
		},
		{
			name: "file type",
			req:  domain.SearchRequest{Query: "deploy", Filters: &domain.SearchFilters{Type: domain.MessageTypeFile}},
			want: "deploy has:file",
		},
		{
			name: "image type",
			req:  domain.SearchRequest{Query: "deploy", Filters: &domain.SearchFilters{Type: domain.MessageTypeImage}},
			want: "deploy has:image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildQuery(tt.req))
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want backoff.Action
	}{
		{"token expired", &apiError{Reason: "token_expired"}, backoff.Reauth},
		{"invalid auth", &apiError{Reason: "invalid_auth"}, backoff.Reauth},
		{"rate limited", &apiError{Reason: "ratelimited"}, backoff.RetryRateLimited},
		{"permanent api error", &apiError{Reason: "invalid_arguments"}, backoff.Fail},
		{"context cancelled", context.Canceled, backoff.Fail},
		{"deadline exceeded", context.DeadlineExceeded, backoff.Fail},
		{"network error", errors.New("connection reset"), backoff.Retry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestToResult_SnippetKeepsRuneBoundaries(t *testing.T) {
	m := searchMatch{TS: "1755000000.000100", Text: strings.Repeat("部署完成", 40)}

	got := toResult(&m, "tok1")
	assert.True(t, utf8.ValidString(got.Snippet))
	assert.Equal(t, 123, len([]rune(got.Snippet)))
	assert.True(t, strings.HasSuffix(got.Snippet, "..."))
}

func TestParseSlackTS(t *testing.T) {
	got := parseSlackTS("1503435956.000247")
	assert.Equal(t, int64(1503435956), got.Unix())

	assert.True(t, parseSlackTS("garbage").IsZero())
}

func TestConnector_DeepLink(t *testing.T) {
	c := New(domain.PlatformConfig{ID: "slack-x", Platform: domain.PlatformSlack}, credentials.NewCache(stubCredStore{}, time.Hour))

	link, err := c.DeepLink("1755000000.000100", map[string]string{"channel_id": "C1"})
	require.NoError(t, err)
	assert.Equal(t, "https://slack.com/archives/C1/p1755000000000100", link)

	_, err = c.DeepLink("1755000000.000100", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestConnector_ValidateConnection(t *testing.T) {
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth.test", r.URL.Path)
		//nolint:errcheck // test handler
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "user_id": "U123", "user": "ada"})
	})

	require.NoError(t, c.ValidateConnection(context.Background()))

	info, err := c.GetUserInfo(context.Background(), "tok1")
	require.NoError(t, err)
	assert.Equal(t, "U123", info.ID)
	assert.Equal(t, "ada", info.Name)
}
