package session

import (
	"yap/pkg/conversation"
	"yap/pkg/identity"
)

// Assignment previews who would author one post.
type Assignment struct {
	Message   int      `json:"message"`
	Reply     int      `json:"reply,omitempty"`
	User      string   `json:"user,omitempty"`
	Text      string   `json:"text"`
	Reactions []string `json:"reactions,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Plan assigns identities to every post as a run would if every message
// succeeded, without sending anything. Counters start fresh, so the
// preview matches a new run.
func Plan(selector *identity.Selector, messages []conversation.Message, forceUser string) []Assignment {
	counters := newCounters()
	plan := make([]Assignment, 0, conversation.Posts(messages))

	for i, msg := range messages {
		name := msg.User
		if forceUser != "" {
			name = forceUser
		}

		entry := Assignment{Message: i + 1, Text: msg.Text}
		spans, err := compose(msg.Text)
		if err == nil {
			entry.Reactions = reactionsFor(msg, spans)
			var author identity.Identity
			author, err = selector.Select(name, counters.nextMessage())
			entry.User = author.Name
		} else {
			counters.nextMessage()
		}
		if err != nil {
			entry.Error = err.Error()
		}
		plan = append(plan, entry)

		for j, reply := range msg.Replies {
			replyEntry := Assignment{Message: i + 1, Reply: j + 1, Text: reply.Text}
			author, err := selector.Select(reply.User, counters.nextReply())
			if err != nil {
				replyEntry.Error = err.Error()
			} else {
				replyEntry.User = author.Name
			}
			plan = append(plan, replyEntry)
		}
	}

	return plan
}
