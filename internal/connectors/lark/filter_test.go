package lark

import (
	"strconv"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/parley-cli/internal/core/domain"
)

func textMsg(id, text string, ts time.Time) messageInfo {
	msg := messageInfo{
		MessageID:  id,
		MsgType:    "text",
		CreateTime: strconv.FormatInt(ts.UnixMilli(), 10),
	}
	msg.Sender.ID = "ou_sender"
	msg.Sender.SenderType = "user"
	msg.Body.Content = `{"text":"` + text + `"}`
	return msg
}

func TestMatchMessage(t *testing.T) {
	now := time.Now()
	req := domain.SearchRequest{Query: "deploy"}

	t.Run("keyword match is case-insensitive", func(t *testing.T) {
		msg := textMsg("m1", "Deploy finished", now)
		text, msgType, ok := matchMessage(&msg, &req)
		assert.True(t, ok)
		assert.Equal(t, "Deploy finished", text)
		assert.Equal(t, domain.MessageTypeText, msgType)
	})

	t.Run("no keyword no match", func(t *testing.T) {
		msg := textMsg("m1", "lunch plans", now)
		_, _, ok := matchMessage(&msg, &req)
		assert.False(t, ok)
	})

	t.Run("bot senders are skipped", func(t *testing.T) {
		msg := textMsg("m1", "deploy finished", now)
		msg.Sender.SenderType = "app"
		_, _, ok := matchMessage(&msg, &req)
		assert.False(t, ok)
	})

	t.Run("system messages are skipped", func(t *testing.T) {
		msg := textMsg("m1", "deploy finished", now)
		msg.MsgType = "system"
		_, _, ok := matchMessage(&msg, &req)
		assert.False(t, ok)
	})

	t.Run("date range filter", func(t *testing.T) {
		old := now.Add(-48 * time.Hour)
		msg := textMsg("m1", "deploy finished", old)
		start := now.Add(-24 * time.Hour)
		filtered := domain.SearchRequest{Query: "deploy", Filters: &domain.SearchFilters{Start: &start}}
		_, _, ok := matchMessage(&msg, &filtered)
		assert.False(t, ok)
	})

	t.Run("type filter", func(t *testing.T) {
		msg := textMsg("m1", "deploy finished", now)
		filtered := domain.SearchRequest{Query: "deploy", Filters: &domain.SearchFilters{Type: domain.MessageTypeFile}}
		_, _, ok := matchMessage(&msg, &filtered)
		assert.False(t, ok)
	})

	t.Run("file name matches as file type", func(t *testing.T) {
		msg := textMsg("m1", "", now)
		msg.MsgType = "file"
		msg.Body.Content = `{"file_name":"deploy-plan.pdf"}`
		text, msgType, ok := matchMessage(&msg, &req)
		assert.True(t, ok)
		assert.Equal(t, "deploy-plan.pdf", text)
		assert.Equal(t, domain.MessageTypeFile, msgType)
	})
}

func TestMatchSender(t *testing.T) {
	sender := domain.Sender{Name: "Ada Lovelace", Email: "ada@example.com", UserID: "ou_ada"}

	tests := []struct {
		filter string
		want   bool
	}{
		{"", true},
		{"ada", true},
		{"LOVELACE", true},
		{"ada@example.com", true},
		{"ou_ada", true},
		{"grace", false},
	}
	for _, tt := range tests {
		f := &domain.SearchFilters{Sender: tt.filter}
		assert.Equal(t, tt.want, matchSender(sender, f), "filter %q", tt.filter)
	}

	assert.True(t, matchSender(sender, nil))
}

func TestExtractText(t *testing.T) {
	t.Run("image has no text", func(t *testing.T) {
		msg := messageInfo{MsgType: "image"}
		text, msgType := extractText(&msg)
		assert.Empty(t, text)
		assert.Equal(t, domain.MessageTypeImage, msgType)
	})

	t.Run("unknown type falls back to raw content", func(t *testing.T) {
		msg := messageInfo{MsgType: "todo"}
		msg.Body.Content = `{"task":"ship it"}`
		text, msgType := extractText(&msg)
		assert.Equal(t, `{"task":"ship it"}`, text)
		assert.Equal(t, domain.MessageTypeOther, msgType)
	})
}

func TestMakeSnippet(t *testing.T) {
	t.Run("short text returned whole", func(t *testing.T) {
		assert.Equal(t, "deploy done", makeSnippet("deploy done", "deploy"))
	})

	t.Run("long text centred on match", func(t *testing.T) {
		text := strings.Repeat("a", 200) + " deploy " + strings.Repeat("b", 200)
		snippet := makeSnippet(text, "deploy")
		assert.Contains(t, snippet, "deploy")
		assert.LessOrEqual(t, len(snippet), snippetLength+6)
		assert.True(t, strings.HasPrefix(snippet, "..."))
		assert.True(t, strings.HasSuffix(snippet, "..."))
	})

	t.Run("multibyte text never split mid-rune", func(t *testing.T) {
		text := strings.Repeat("发", 100) + "部署完成" + strings.Repeat("布", 100)
		snippet := makeSnippet(text, "部署")
		assert.True(t, utf8.ValidString(snippet))
		assert.Contains(t, snippet, "部署")
		assert.LessOrEqual(t, len([]rune(snippet)), snippetLength+6)
	})
}

func TestParseLarkTime(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	got := parseLarkTime(strconv.FormatInt(ts.UnixMilli(), 10))
	assert.True(t, got.Equal(ts))

	assert.True(t, parseLarkTime("not-a-number").IsZero())
}
