package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"yap/pkg/bus"
	"yap/pkg/channel"
	"yap/pkg/conversation"
	"yap/pkg/identity"
	"yap/pkg/richtext"
)

type call struct {
	kind     string
	user     string
	thread   string
	reaction string
	text     string
}

// fakeDeliverer records calls and answers from per-text scripts.
type fakeDeliverer struct {
	calls     []call
	failPost  map[string]error
	softPost  map[string]string
	noAnchor  map[string]bool
	reactions map[string]bool
	nextTS    int
}

func (f *fakeDeliverer) Deliver(_ context.Context, post channel.Post, author identity.Identity) (channel.Result, error) {
	text := plainText(post.Spans)
	f.calls = append(f.calls, call{kind: "post", user: author.Name, thread: post.ThreadTS, text: text})
	if err := f.failPost[text]; err != nil {
		return channel.Result{}, err
	}
	if reason, ok := f.softPost[text]; ok {
		return channel.Result{Reason: reason}, nil
	}
	if f.noAnchor[text] {
		return channel.Result{OK: true}, nil
	}
	f.nextTS++
	return channel.Result{OK: true, Timestamp: fmt.Sprintf("%d.000", f.nextTS)}, nil
}

func (f *fakeDeliverer) AddReaction(_ context.Context, _ string, threadTS string, name string, author identity.Identity) (bool, error) {
	f.calls = append(f.calls, call{kind: "reaction", user: author.Name, thread: threadTS, reaction: name})
	if ok, scripted := f.reactions[name]; scripted {
		return ok, nil
	}
	return true, nil
}

func (f *fakeDeliverer) posts() []call {
	var out []call
	for _, c := range f.calls {
		if c.kind == "post" {
			out = append(out, c)
		}
	}
	return out
}

func plainText(spans []richtext.Span) string {
	var text string
	for _, span := range spans {
		switch span.Kind {
		case richtext.KindEmoji:
			text += ":" + span.Name + ":"
		default:
			text += span.Text
		}
	}
	return text
}

func newSelector(t *testing.T, names ...string) *identity.Selector {
	t.Helper()
	ids := make([]identity.Identity, 0, len(names))
	for _, name := range names {
		ids = append(ids, identity.Identity{Name: name, Token: "xoxc-" + name, SessionToken: "xoxd-" + name})
	}
	selector, err := identity.NewSelector(ids, identity.RoundRobin)
	require.NoError(t, err)
	return selector
}

type recordedWaits struct {
	waits []time.Duration
}

func (r *recordedWaits) wait(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func newOrchestrator(t *testing.T, deliverer channel.Deliverer, selector *identity.Selector, opts Options) *Orchestrator {
	t.Helper()
	if opts.ChannelID == "" {
		opts.ChannelID = "C42"
	}
	if opts.Wait == nil {
		opts.Wait = func(context.Context, time.Duration) error { return nil }
	}
	o, err := New(deliverer, selector, opts, nil)
	require.NoError(t, err)
	return o
}

func TestRunRoundRobinMessagesFollowPosition(t *testing.T) {
	deliverer := &fakeDeliverer{}
	o := newOrchestrator(t, deliverer, newSelector(t, "alice", "bob"), Options{})

	summary, err := o.Run(context.Background(), []conversation.Message{{Text: "one"}, {Text: "two"}, {Text: "three"}})

	require.NoError(t, err)
	require.Equal(t, Summary{Success: 3, Total: 3}, summary)
	var users []string
	for _, c := range deliverer.posts() {
		users = append(users, c.user)
	}
	require.Equal(t, []string{"alice", "bob", "alice"}, users)
}

// Replies rotate on a counter shared by the whole run, not on their parent
// message position. With three voices the second message's first reply is
// not the voice after its own author.
func TestRunReplyCounterSpansWholeRun(t *testing.T) {
	deliverer := &fakeDeliverer{}
	o := newOrchestrator(t, deliverer, newSelector(t, "alice", "bob", "carol"), Options{})

	messages := []conversation.Message{
		{Text: "m1", Replies: []conversation.Reply{{Text: "r1"}, {Text: "r2"}}},
		{Text: "m2", Replies: []conversation.Reply{{Text: "r3"}, {Text: "r4", User: "alice"}, {Text: "r5"}}},
	}
	summary, err := o.Run(context.Background(), messages)
	require.NoError(t, err)
	require.Equal(t, Summary{Success: 7, Total: 7}, summary)

	got := map[string]string{}
	for _, c := range deliverer.posts() {
		got[c.text] = c.user
	}
	want := map[string]string{
		"m1": "alice",
		"r1": "bob",
		"r2": "carol",
		"m2": "bob",
		"r3": "alice",
		"r4": "alice",
		"r5": "carol",
	}
	require.Equal(t, want, got)
}

func TestRunReplyThreadsUnderParent(t *testing.T) {
	deliverer := &fakeDeliverer{}
	o := newOrchestrator(t, deliverer, newSelector(t, "alice"), Options{})

	_, err := o.Run(context.Background(), []conversation.Message{{Text: "parent", Replies: []conversation.Reply{{Text: "child"}}}})
	require.NoError(t, err)

	posts := deliverer.posts()
	require.Len(t, posts, 2)
	require.Empty(t, posts[0].thread)
	require.Equal(t, "1.000", posts[1].thread)

	entries := o.Transcript().List()
	require.Len(t, entries, 2)
	require.Equal(t, 1, entries[1].Reply)
	require.Equal(t, "1.000", entries[1].ThreadTS)
}

func TestRunFailuresAreCountedAndRunContinues(t *testing.T) {
	deliverer := &fakeDeliverer{
		failPost: map[string]error{
			"down":   channel.TransportError("chat.postMessage", errors.New("timeout")),
			"reply2": channel.APIError("chat.postMessage", "authentication error: invalid_auth"),
		},
		softPost: map[string]string{"soft": "msg_too_long"},
	}
	o := newOrchestrator(t, deliverer, newSelector(t, "alice", "bob"), Options{})

	messages := []conversation.Message{
		{Text: "down", Replies: []conversation.Reply{{Text: "never sent"}, {Text: "also never"}}},
		{Text: "up", Replies: []conversation.Reply{{Text: "reply1"}, {Text: "reply2"}, {Text: "   "}, {Text: "reply4"}}},
		{Text: "soft"},
	}
	summary, err := o.Run(context.Background(), messages)

	require.NoError(t, err)
	// Replies of the failed message are never attempted but still count
	// toward the total.
	require.Equal(t, Summary{Success: 3, Failed: 4, Total: 9}, summary)
	for _, c := range deliverer.posts() {
		require.NotEqual(t, "never sent", c.text)
	}
}

func TestRunMessageWithoutAnchorSkipsReplies(t *testing.T) {
	deliverer := &fakeDeliverer{noAnchor: map[string]bool{"lost": true}}
	o := newOrchestrator(t, deliverer, newSelector(t, "alice", "bob"), Options{})

	messages := []conversation.Message{
		{Text: "lost", Replies: []conversation.Reply{{Text: "orphan"}}},
		{Text: "kept", Replies: []conversation.Reply{{Text: "threaded"}}},
	}
	summary, err := o.Run(context.Background(), messages)

	require.NoError(t, err)
	require.Equal(t, Summary{Success: 2, Failed: 1, Total: 4}, summary)
	for _, c := range deliverer.posts() {
		require.NotEqual(t, "orphan", c.text)
		if c.text == "threaded" {
			require.Equal(t, "1.000", c.thread)
		}
	}
	for _, c := range deliverer.calls {
		require.NotEqual(t, "reaction", c.kind)
	}
}

func TestRunHonorsDelays(t *testing.T) {
	deliverer := &fakeDeliverer{}
	recorder := &recordedWaits{}
	o := newOrchestrator(t, deliverer, newSelector(t, "alice"), Options{
		MessageDelay:  2 * time.Second,
		ReplyDelay:    time.Second,
		ReactionDelay: 500 * time.Millisecond,
		Wait:          recorder.wait,
	})

	messages := []conversation.Message{
		{Text: "first :wave:", Reactions: []string{":eyes:", "rocket"}, Replies: []conversation.Reply{{Text: "a"}, {Text: "b"}}},
		{Text: "last"},
	}
	_, err := o.Run(context.Background(), messages)
	require.NoError(t, err)

	want := []time.Duration{
		500 * time.Millisecond, 500 * time.Millisecond,
		time.Second, time.Second,
		2 * time.Second,
	}
	require.Equal(t, want, recorder.waits)
}

func TestRunReactionsUseAuthorAndFallback(t *testing.T) {
	deliverer := &fakeDeliverer{reactions: map[string]bool{"not_an_emoji": false}}
	o := newOrchestrator(t, deliverer, newSelector(t, "alice", "bob"), Options{})

	messages := []conversation.Message{
		{Text: "ship it :rocket: :tada:"},
		{Text: "explicit", Reactions: []string{":Eyes:", ":not_an_emoji:"}},
		{Text: "no emoji here"},
	}
	summary, err := o.Run(context.Background(), messages)
	require.NoError(t, err)
	require.Equal(t, 3, summary.Success)

	var reactions []call
	for _, c := range deliverer.calls {
		if c.kind == "reaction" {
			reactions = append(reactions, c)
		}
	}
	require.Equal(t, []call{
		{kind: "reaction", user: "alice", thread: "1.000", reaction: "rocket"},
		{kind: "reaction", user: "bob", thread: "2.000", reaction: "Eyes"},
		{kind: "reaction", user: "bob", thread: "2.000", reaction: "not_an_emoji"},
	}, reactions)
}

func TestRunForceUserAppliesToMessagesOnly(t *testing.T) {
	deliverer := &fakeDeliverer{}
	o := newOrchestrator(t, deliverer, newSelector(t, "alice", "bob"), Options{ForceUser: "bob"})

	_, err := o.Run(context.Background(), []conversation.Message{
		{Text: "m1", User: "alice", Replies: []conversation.Reply{{Text: "r1"}}},
		{Text: "m2"},
	})
	require.NoError(t, err)

	posts := deliverer.posts()
	require.Equal(t, "bob", posts[0].user)
	require.Equal(t, "bob", posts[1].user)
	require.Equal(t, "bob", posts[2].user)
}

func TestRunUnknownIdentityFailsPost(t *testing.T) {
	deliverer := &fakeDeliverer{}
	o := newOrchestrator(t, deliverer, newSelector(t, "alice"), Options{})

	summary, err := o.Run(context.Background(), []conversation.Message{{Text: "hi", User: "mallory"}, {Text: "ok"}})

	require.NoError(t, err)
	require.Equal(t, Summary{Success: 1, Failed: 1, Total: 2}, summary)
	require.Len(t, deliverer.posts(), 1)
}

func TestRunStopsBetweenItemsOnCancel(t *testing.T) {
	deliverer := &fakeDeliverer{}
	ctx, cancel := context.WithCancel(context.Background())
	o := newOrchestrator(t, deliverer, newSelector(t, "alice"), Options{
		MessageDelay: time.Second,
		Wait: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	})

	summary, err := o.Run(ctx, []conversation.Message{{Text: "one"}, {Text: "two"}})

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, Summary{Success: 1, Total: 2}, summary)
	require.Len(t, deliverer.posts(), 1)
}

func TestRunPublishesEvents(t *testing.T) {
	b := bus.New()
	t.Cleanup(b.Close)
	events, unsubscribe := b.SubscribeEvents(context.Background(), 32)
	defer unsubscribe()

	deliverer := &fakeDeliverer{failPost: map[string]error{"bad": channel.APIError("chat.postMessage", "channel error: channel_not_found")}}
	o := newOrchestrator(t, deliverer, newSelector(t, "alice"), Options{Bus: b})

	_, err := o.Run(context.Background(), []conversation.Message{
		{Text: "good :wave:", Replies: []conversation.Reply{{Text: "reply"}}},
		{Text: "bad"},
	})
	require.NoError(t, err)

	var types []bus.EventType
	var last bus.Event
	for len(events) > 0 {
		last = <-events
		types = append(types, last.Type)
	}
	require.Equal(t, []bus.EventType{
		bus.EventRunStarted,
		bus.EventMessagePosted,
		bus.EventReactionAdded,
		bus.EventReplyPosted,
		bus.EventMessageFailed,
		bus.EventRunCompleted,
	}, types)
	require.Equal(t, 2, last.Success)
	require.Equal(t, 1, last.Failed)
	require.Equal(t, 3, last.Total)
	require.Equal(t, "C42", last.Channel)
}

func TestNewValidation(t *testing.T) {
	selector := newSelector(t, "alice")
	if _, err := New(nil, selector, Options{ChannelID: "C1"}, nil); err == nil {
		t.Fatal("expected error for nil deliverer")
	}
	if _, err := New(&fakeDeliverer{}, nil, Options{ChannelID: "C1"}, nil); err == nil {
		t.Fatal("expected error for nil selector")
	}
	if _, err := New(&fakeDeliverer{}, selector, Options{}, nil); err == nil {
		t.Fatal("expected error for missing channel")
	}
}

func TestPlanMatchesRunAssignment(t *testing.T) {
	selector := newSelector(t, "alice", "bob", "carol")
	messages := []conversation.Message{
		{Text: "m1 :wave:", Replies: []conversation.Reply{{Text: "r1"}, {Text: "r2"}}},
		{Text: "m2", User: "carol", Replies: []conversation.Reply{{Text: "r3", User: "ghost"}}},
	}

	plan := Plan(selector, messages, "")

	require.Equal(t, []Assignment{
		{Message: 1, User: "alice", Text: "m1 :wave:", Reactions: []string{"wave"}},
		{Message: 1, Reply: 1, User: "bob", Text: "r1"},
		{Message: 1, Reply: 2, User: "carol", Text: "r2"},
		{Message: 2, User: "carol", Text: "m2"},
		{Message: 2, Reply: 1, Text: "r3", Error: plan[4].Error},
	}, plan)
	require.Contains(t, plan[4].Error, "ghost")
}
