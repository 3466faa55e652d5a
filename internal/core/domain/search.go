package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MaxQueryLength is the maximum accepted search query length in runes.
	MaxQueryLength = 512

	// MaxDateRange is the maximum span of a date-range filter.
	MaxDateRange = 365 * 24 * time.Hour

	// DefaultLimit is the page size used when the request does not set one.
	DefaultLimit = 20

	// MaxLimit caps the page size a caller may request.
	MaxLimit = 100
)

// MessageType categorises a message result.
type MessageType string

// Message type values.
const (
	MessageTypeText  MessageType = "text"
	MessageTypeFile  MessageType = "file"
	MessageTypeImage MessageType = "image"
	MessageTypeOther MessageType = "other"
)

// SearchFilters narrows a search beyond the keyword query.
type SearchFilters struct {
	// Start and End bound message timestamps. Both optional; if both are
	// set, Start must precede End and the span may not exceed MaxDateRange.
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`

	// Sender restricts results to messages from a matching sender name,
	// email or user ID (case-insensitive substring match).
	Sender string `json:"sender,omitempty"`

	// Type restricts results to one message type.
	Type MessageType `json:"type,omitempty"`
}

// SearchRequest describes one logical search across platforms.
type SearchRequest struct {
	// SearchID identifies the search for CancelSearch. Optional; the
	// orchestrator generates one when empty. Never part of request identity.
	SearchID string `json:"search_id,omitempty"`

	// Query is the keyword query. Required, non-empty.
	Query string `json:"query"`

	// Platforms lists target platform names or config IDs.
	// Empty means all registered platforms.
	Platforms []string `json:"platforms,omitempty"`

	// Accounts maps a platform name to the account IDs to search under.
	// Empty means every account the platform's adapter is configured with.
	Accounts map[string][]string `json:"accounts,omitempty"`

	// Filters further narrows the result set. Optional.
	Filters *SearchFilters `json:"filters,omitempty"`

	// Page is the 1-based result page. Zero means the first page.
	Page int `json:"page,omitempty"`

	// Limit is the page size. Zero means DefaultLimit.
	Limit int `json:"limit,omitempty"`

	// Progress receives typed progress events during the search.
	// Optional; never part of request identity.
	Progress ProgressSink `json:"-"`
}

// Validate checks the request against size and shape limits.
// A failing request is never dispatched to any platform.
func (r *SearchRequest) Validate() error {
	query := strings.TrimSpace(r.Query)
	if query == "" {
		return fmt.Errorf("%w: empty query", ErrInvalidInput)
	}
	if len([]rune(query)) > MaxQueryLength {
		return fmt.Errorf("%w: query exceeds %d characters", ErrInvalidInput, MaxQueryLength)
	}
	if r.Page < 0 {
		return fmt.Errorf("%w: negative page", ErrInvalidInput)
	}
	if r.Limit < 0 || r.Limit > MaxLimit {
		return fmt.Errorf("%w: limit must be between 0 and %d", ErrInvalidInput, MaxLimit)
	}
	if f := r.Filters; f != nil {
		if f.Start != nil && f.End != nil {
			if !f.Start.Before(*f.End) {
				return fmt.Errorf("%w: date range start must precede end", ErrInvalidInput)
			}
			if f.End.Sub(*f.Start) > MaxDateRange {
				return fmt.Errorf("%w: date range exceeds one year", ErrInvalidInput)
			}
		}
	}
	return nil
}

// EffectiveLimit returns the page size to use, applying the default.
func (r *SearchRequest) EffectiveLimit() int {
	if r.Limit <= 0 {
		return DefaultLimit
	}
	return r.Limit
}

// EffectivePage returns the 1-based page to use.
func (r *SearchRequest) EffectivePage() int {
	if r.Page <= 0 {
		return 1
	}
	return r.Page
}

// Sender identifies the author of a message.
type Sender struct {
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// MessageResult is one message matched by a search, in canonical shape.
type MessageResult struct {
	// Platform tags which platform produced this result.
	Platform string `json:"platform"`

	// ID is the stable per-platform message identifier.
	ID string `json:"id"`

	Sender  Sender `json:"sender"`
	Content string `json:"content"`

	// Snippet is a short excerpt around the matched terms.
	Snippet string `json:"snippet,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	// Container labels the channel, chat or mailbox the message was found in.
	Container string `json:"container,omitempty"`

	// DeepLink opens the message in the platform's own client.
	DeepLink string `json:"deep_link,omitempty"`

	Type MessageType `json:"type"`

	// AccountID is the account the message was found under.
	AccountID string `json:"account_id,omitempty"`

	// Metadata carries provider-specific extras.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IdentityKey returns the deduplication key for a result.
// Two results with the same key are the same message.
func (m *MessageResult) IdentityKey() string {
	return m.Platform + "\x1f" + m.ID
}

// PlatformSearchStatus records the outcome of one platform's leg of a search.
// One entry exists per targeted platform, even on total failure.
type PlatformSearchStatus struct {
	Platform    string        `json:"platform"`
	Success     bool          `json:"success"`
	ResultCount int           `json:"result_count"`
	Elapsed     time.Duration `json:"elapsed"`
	Error       string        `json:"error,omitempty"`
}

// SearchResponse is the aggregated, ordered result of one search.
type SearchResponse struct {
	// SearchID echoes the request's ID, or the generated one.
	SearchID string `json:"search_id"`

	// Results is ordered by timestamp descending and already paginated.
	Results []MessageResult `json:"results"`

	// TotalCount is the deduplicated result count before pagination.
	TotalCount int `json:"total_count"`

	// HasMore reports whether pages beyond the requested one exist.
	HasMore bool `json:"has_more"`

	Elapsed time.Duration `json:"elapsed"`

	// PlatformStatus maps platform name to that platform's outcome.
	PlatformStatus map[string]PlatformSearchStatus `json:"platform_status"`
}
