package lark

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/parley-cli/internal/core/domain"
)

// snippetLength bounds the excerpt attached to each result.
const snippetLength = 120

// systemMsgTypes are message types excluded from search results.
// System notices and card templates carry no user content worth matching.
var systemMsgTypes = map[string]bool{
	"system":           true,
	"share_chat":       true,
	"share_user":       true,
	"interactive":      true, // card templates
	"merge_forward":    true,
	"calendar":         true,
	"general_calendar": true,
}

// matchMessage applies the local predicate: keyword (case-insensitive),
// date range and message-type filters, and exclusion of system/template
// messages. Returns the extracted text and canonical type on a match.
func matchMessage(msg *messageInfo, req *domain.SearchRequest) (string, domain.MessageType, bool) {
	if msg.Sender.SenderType != "" && msg.Sender.SenderType != "user" {
		return "", "", false
	}
	if systemMsgTypes[msg.MsgType] {
		return "", "", false
	}

	text, msgType := extractText(msg)
	if text == "" {
		return "", "", false
	}
	if !strings.Contains(strings.ToLower(text), strings.ToLower(req.Query)) {
		return "", "", false
	}

	if f := req.Filters; f != nil {
		if f.Type != "" && f.Type != msgType {
			return "", "", false
		}
		ts := parseLarkTime(msg.CreateTime)
		if f.Start != nil && ts.Before(*f.Start) {
			return "", "", false
		}
		if f.End != nil && ts.After(*f.End) {
			return "", "", false
		}
	}
	return text, msgType, true
}

// matchSender applies the sender filter against a resolved identity.
func matchSender(sender domain.Sender, f *domain.SearchFilters) bool {
	if f == nil || f.Sender == "" {
		return true
	}
	needle := strings.ToLower(f.Sender)
	return strings.Contains(strings.ToLower(sender.Name), needle) ||
		strings.Contains(strings.ToLower(sender.Email), needle) ||
		strings.EqualFold(sender.UserID, f.Sender)
}

// extractText pulls searchable text out of a Lark message body and maps the
// provider message type to the canonical one.
func extractText(msg *messageInfo) (string, domain.MessageType) {
	switch msg.MsgType {
	case "text":
		var body struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(msg.Body.Content), &body); err != nil {
			return "", domain.MessageTypeText
		}
		return body.Text, domain.MessageTypeText
	case "post":
		// Rich posts keep their raw content; the keyword match still works
		// against the embedded text runs.
		return msg.Body.Content, domain.MessageTypeText
	case "file", "audio", "media":
		var body struct {
			FileName string `json:"file_name"`
		}
		_ = json.Unmarshal([]byte(msg.Body.Content), &body)
		return body.FileName, domain.MessageTypeFile
	case "image", "sticker":
		return "", domain.MessageTypeImage
	default:
		return msg.Body.Content, domain.MessageTypeOther
	}
}

// makeSnippet returns a short excerpt centred on the first query match.
// Offsets are in runes so multibyte text never gets split mid-character.
func makeSnippet(text, query string) string {
	runes := []rune(text)
	if len(runes) <= snippetLength {
		return text
	}
	idx := 0
	if i := strings.Index(strings.ToLower(text), strings.ToLower(query)); i > 0 {
		idx = utf8.RuneCountInString(text[:i])
	}
	start := idx - snippetLength/4
	if start < 0 {
		start = 0
	}
	end := start + snippetLength
	if end > len(runes) {
		end = len(runes)
		start = end - snippetLength
	}
	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet += "..."
	}
	return snippet
}
