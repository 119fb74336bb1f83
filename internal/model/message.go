package model

import (
	"encoding/json"
	"strings"
	"time"
)

// ContentKind tags the shape of a message's content.
type ContentKind int

const (
	// ContentPlainText is a bare string content field.
	ContentPlainText ContentKind = iota
	// ContentStructuredParts is a list of typed parts; only "text" parts
	// contribute to the flattened question.
	ContentStructuredParts
	// ContentOpaque is any other JSON value, kept verbatim.
	ContentOpaque
)

// ContentPart is one element of a structured message content.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// MessageContent is the tagged union over the content shapes a client may
// send: a plain string, a list of typed parts, or an opaque object.
// Flatten is total over all three shapes and never fails.
type MessageContent struct {
	Kind  ContentKind
	Text  string
	Parts []ContentPart
	Raw   json.RawMessage
}

// PlainContent wraps a plain string as message content.
func PlainContent(text string) MessageContent {
	return MessageContent{Kind: ContentPlainText, Text: text}
}

// UnmarshalJSON accepts a string, an array of parts, or any other JSON
// value. Unknown shapes are preserved as opaque raw JSON rather than
// rejected.
func (m *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = MessageContent{Kind: ContentPlainText, Text: s}
		return nil
	}

	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err == nil {
		*m = MessageContent{Kind: ContentStructuredParts, Parts: parts}
		return nil
	}

	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	*m = MessageContent{Kind: ContentOpaque, Raw: raw}
	return nil
}

// MarshalJSON writes the content back in its original shape.
func (m MessageContent) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case ContentStructuredParts:
		return json.Marshal(m.Parts)
	case ContentOpaque:
		if len(m.Raw) == 0 {
			return []byte("null"), nil
		}
		return m.Raw, nil
	default:
		return json.Marshal(m.Text)
	}
}

// Flatten reduces the content to a single text string. Plain text is
// returned as-is, structured parts concatenate their "text"-typed parts,
// and opaque content is serialized. Empty content yields "".
func (m MessageContent) Flatten() string {
	switch m.Kind {
	case ContentPlainText:
		return m.Text
	case ContentStructuredParts:
		var b strings.Builder
		for _, p := range m.Parts {
			if p.Type != "text" || p.Text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString(" ")
			}
			b.WriteString(p.Text)
		}
		return b.String()
	default:
		return string(m.Raw)
	}
}

// ChatMessage is a single message in a conversation.
type ChatMessage struct {
	Role      string         `json:"role"` // "user", "assistant" or "system"
	Content   MessageContent `json:"content"`
	Timestamp time.Time      `json:"timestamp,omitempty"`
}

// LatestQuestion extracts the flattened text of the most recent message
// in the conversation. An empty history yields "".
func LatestQuestion(messages []ChatMessage) string {
	if len(messages) == 0 {
		return ""
	}
	return strings.TrimSpace(messages[len(messages)-1].Content.Flatten())
}
