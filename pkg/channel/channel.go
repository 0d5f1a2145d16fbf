package channel

import (
	"context"

	"yap/pkg/identity"
	"yap/pkg/richtext"
)

// Post is one composed message bound for a channel, optionally inside a thread.
type Post struct {
	Channel string
	Spans   []richtext.Span
	// ThreadTS attaches the post as a reply; empty posts at top level.
	ThreadTS string
}

// Result reports a delivery outcome that did not raise an error.
//
// OK posts carry the server timestamp that anchors replies. Soft failures
// have OK false and a Reason naming the server error code.
type Result struct {
	OK        bool
	Timestamp string
	Reason    string
}

// Deliverer sends composed posts and reactions through one remote workspace.
type Deliverer interface {
	Deliver(ctx context.Context, post Post, author identity.Identity) (Result, error)
	AddReaction(ctx context.Context, channelID string, threadTS string, name string, author identity.Identity) (bool, error)
}
