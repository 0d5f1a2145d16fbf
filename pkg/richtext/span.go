package richtext

import (
	"encoding/json"
)

// Kind identifies the variant carried by a Span.
type Kind string

const (
	KindText      Kind = "text"
	KindLink      Kind = "link"
	KindEmoji     Kind = "emoji"
	KindBroadcast Kind = "broadcast"
)

// Style flags applied to text spans.
type Style struct {
	Bold   bool `json:"bold,omitempty"`
	Italic bool `json:"italic,omitempty"`
	Strike bool `json:"strike,omitempty"`
	Code   bool `json:"code,omitempty"`
}

// IsZero reports whether no style flag is set.
func (s Style) IsZero() bool {
	return s == Style{}
}

// Broadcast scopes accepted by @-mentions that notify a whole channel.
const (
	BroadcastHere     = "here"
	BroadcastChannel  = "channel"
	BroadcastEveryone = "everyone"
)

// Span is one typed fragment of a parsed message.
//
// Only the fields relevant to Kind are populated: Text and Style for text,
// URL and Text (label) for links, Name for emoji, Range for broadcasts.
// Generic @user mentions are text spans with Bold set.
type Span struct {
	Kind  Kind
	Text  string
	Style Style
	URL   string
	Name  string
	Range string
}

// Plain returns an unstyled text span.
func Plain(text string) Span {
	return Span{Kind: KindText, Text: text}
}

// Styled returns a text span with the given style.
func Styled(text string, style Style) Span {
	return Span{Kind: KindText, Text: text, Style: style}
}

// Link returns a link span with a display label.
func Link(url, label string) Span {
	return Span{Kind: KindLink, URL: url, Text: label}
}

// Emoji returns an emoji span; name carries no colons.
func Emoji(name string) Span {
	return Span{Kind: KindEmoji, Name: name}
}

// Broadcast returns a channel-wide mention span.
func Broadcast(scope string) Span {
	return Span{Kind: KindBroadcast, Range: scope}
}

// Newline is the explicit separator emitted between lines.
func Newline() Span {
	return Plain("\n")
}

// MarshalJSON encodes the span as a rich_text section element.
func (s Span) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case KindLink:
		return json.Marshal(struct {
			Type string `json:"type"`
			URL  string `json:"url"`
			Text string `json:"text"`
		}{Type: string(KindLink), URL: s.URL, Text: s.Text})
	case KindEmoji:
		return json.Marshal(struct {
			Type string `json:"type"`
			Name string `json:"name"`
		}{Type: string(KindEmoji), Name: s.Name})
	case KindBroadcast:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Range string `json:"range"`
		}{Type: string(KindBroadcast), Range: s.Range})
	default:
		element := struct {
			Type  string `json:"type"`
			Text  string `json:"text"`
			Style *Style `json:"style,omitempty"`
		}{Type: string(KindText), Text: s.Text}
		if !s.Style.IsZero() {
			style := s.Style
			element.Style = &style
		}
		return json.Marshal(element)
	}
}

// Blocks wraps spans into the single rich_text block the chat API expects.
func Blocks(spans []Span) ([]byte, error) {
	type section struct {
		Type     string `json:"type"`
		Elements []Span `json:"elements"`
	}
	type block struct {
		Type     string    `json:"type"`
		Elements []section `json:"elements"`
	}

	return json.Marshal([]block{{
		Type:     "rich_text",
		Elements: []section{{Type: "rich_text_section", Elements: spans}},
	}})
}

// FirstEmoji returns the name of the first emoji span, if any.
func FirstEmoji(spans []Span) (string, bool) {
	for _, span := range spans {
		if span.Kind == KindEmoji {
			return span.Name, true
		}
	}
	return "", false
}
