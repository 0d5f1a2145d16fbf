package conversation

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"yap/pkg/channel"
)

// BuiltinSource names the embedded fallback conversation.
const BuiltinSource = "built-in"

//go:embed defaults.yaml
var defaultsYAML []byte

// Reply is one threaded answer to a message.
type Reply struct {
	Text string `json:"text" yaml:"text"`
	User string `json:"user,omitempty" yaml:"user,omitempty"`
}

// UnmarshalYAML accepts either a bare string or a {text, user} mapping.
func (r *Reply) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		r.Text = node.Value
		r.User = ""
		return nil
	}

	type rawReply Reply
	var raw rawReply
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*r = Reply(raw)
	return nil
}

// MarshalJSON writes a reply without an author as a bare string.
func (r Reply) MarshalJSON() ([]byte, error) {
	if r.User == "" {
		return json.Marshal(r.Text)
	}
	type rawReply Reply
	return json.Marshal(rawReply(r))
}

// Message is one top-level post with its thread and reactions.
type Message struct {
	Text      string   `json:"text" yaml:"text"`
	User      string   `json:"user,omitempty" yaml:"user,omitempty"`
	Replies   []Reply  `json:"replies,omitempty" yaml:"replies,omitempty"`
	Reactions []string `json:"reactions,omitempty" yaml:"reactions,omitempty"`
}

// Script is a loaded conversation and where it came from.
type Script struct {
	Source   string
	Messages []Message
}

// Posts returns the number of posts a full run attempts: every message
// plus every reply.
func (s Script) Posts() int {
	return Posts(s.Messages)
}

// Posts counts messages plus all their replies.
func Posts(messages []Message) int {
	total := len(messages)
	for _, msg := range messages {
		total += len(msg.Replies)
	}
	return total
}

// Load reads a JSON or YAML message list from path. A missing file yields
// the built-in conversation; an unreadable or invalid file is an error.
// YAML text ending in an emoji code must be quoted.
func Load(path string) (Script, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default()
		}
		return Script{}, fmt.Errorf("read messages file: %w", err)
	}

	messages, err := Parse(data)
	if err != nil {
		return Script{}, fmt.Errorf("parse messages file %s: %w", path, err)
	}
	return Script{Source: path, Messages: messages}, nil
}

// Default returns the embedded fallback conversation.
func Default() (Script, error) {
	messages, err := Parse(defaultsYAML)
	if err != nil {
		return Script{}, fmt.Errorf("parse built-in messages: %w", err)
	}
	return Script{Source: BuiltinSource, Messages: messages}, nil
}

// Parse decodes a message list. JSON is accepted as a subset of YAML.
func Parse(data []byte) ([]Message, error) {
	var messages []Message
	if err := yaml.Unmarshal(data, &messages); err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, errors.New("no messages defined")
	}
	if err := Validate(messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// Validate rejects messages or replies that have no text to post.
func Validate(messages []Message) error {
	for i, msg := range messages {
		if strings.TrimSpace(msg.Text) == "" {
			return channel.FormatError("compose", fmt.Sprintf("message %d has no text", i+1))
		}
		for j, reply := range msg.Replies {
			if strings.TrimSpace(reply.Text) == "" {
				return channel.FormatError("compose", fmt.Sprintf("message %d reply %d has no text", i+1, j+1))
			}
		}
	}
	return nil
}

// ReactionNames trims surrounding whitespace, then surrounding colons, and
// drops names left empty. Case is kept as written.
func ReactionNames(reactions []string) []string {
	names := make([]string, 0, len(reactions))
	for _, reaction := range reactions {
		name := strings.Trim(strings.TrimSpace(reaction), ":")
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}
