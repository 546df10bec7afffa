// Package notify builds chat webhook messages and delivers them.
package notify

import "strings"

// Broadcast markers placed in Message.Content.
const (
	MentionEveryone = "@everyone"
	MentionHere     = "@here"
)

// Embed colors.
const (
	ColorRed    = 0xFF0000
	ColorGreen  = 0x00FF00
	ColorGray   = 0x808080
	ColorOrange = 0xFFA500
	ColorBlue   = 0x0099FF
)

// Message is the webhook JSON payload.
type Message struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds"`
}

// Embed is a rich message card.
type Embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	URL         string  `json:"url,omitempty"`
	Color       int     `json:"color"`
	Timestamp   string  `json:"timestamp"`
	Footer      Footer  `json:"footer"`
	Fields      []Field `json:"fields,omitempty"`
}

// Footer is the small line under an embed.
type Footer struct {
	Text    string `json:"text"`
	IconURL string `json:"icon_url,omitempty"`
}

// Field is one labeled value inside an embed.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Broadcast reports whether the message alerts the whole channel.
func (m Message) Broadcast() bool {
	return strings.HasPrefix(m.Content, MentionEveryone) || strings.HasPrefix(m.Content, MentionHere)
}
