package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"yap/pkg/bus"
	"yap/pkg/channel"
	"yap/pkg/conversation"
	"yap/pkg/identity"
	"yap/pkg/richtext"
)

// Options configures a delivery run.
type Options struct {
	ChannelID string
	// ForceUser posts every top-level message as this identity. Replies
	// keep their own assignment.
	ForceUser string

	MessageDelay  time.Duration
	ReplyDelay    time.Duration
	ReactionDelay time.Duration

	// Wait blocks between items; defaults to a context-aware timer.
	Wait func(ctx context.Context, d time.Duration) error
	// Bus receives progress events when set.
	Bus *bus.Bus
}

// Summary tallies a run. Total counts every message and every reply,
// including replies never attempted because their parent failed.
type Summary struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}

// counters are the two round-robin positions of a run. The message index
// follows top-level message position; the reply counter advances once per
// attempted reply across the whole run, whichever message owns it.
type counters struct {
	message int
	reply   int
}

func newCounters() counters {
	// Replies start one voice after the opener.
	return counters{reply: 1}
}

func (c *counters) nextMessage() int {
	index := c.message
	c.message++
	return index
}

func (c *counters) nextReply() int {
	index := c.reply
	c.reply++
	return index
}

// Orchestrator turns a message list into an ordered sequence of posts,
// reactions and replies. One call is in flight at a time.
type Orchestrator struct {
	deliverer  channel.Deliverer
	selector   *identity.Selector
	opts       Options
	log        *slog.Logger
	transcript *Transcript

	counters counters
	summary  Summary
}

func New(deliverer channel.Deliverer, selector *identity.Selector, opts Options, log *slog.Logger) (*Orchestrator, error) {
	if deliverer == nil {
		return nil, errors.New("deliverer is required")
	}
	if selector == nil {
		return nil, errors.New("identity selector is required")
	}
	if strings.TrimSpace(opts.ChannelID) == "" {
		return nil, errors.New("channel id is required")
	}
	if opts.Wait == nil {
		opts.Wait = waitContext
	}
	if log == nil {
		log = slog.Default()
	}

	return &Orchestrator{
		deliverer:  deliverer,
		selector:   selector,
		opts:       opts,
		log:        log.With("component", "session.orchestrator"),
		transcript: NewTranscript(),
		counters:   newCounters(),
	}, nil
}

// Transcript returns the posts delivered so far.
func (o *Orchestrator) Transcript() *Transcript {
	return o.transcript
}

// Run delivers messages in order. Individual post failures are counted and
// the run continues; only context cancellation between items stops it
// early, returning the partial summary with the context error.
func (o *Orchestrator) Run(ctx context.Context, messages []conversation.Message) (Summary, error) {
	o.summary = Summary{Total: conversation.Posts(messages)}
	o.publish(ctx, bus.Event{Type: bus.EventRunStarted})
	o.log.Info("Starting delivery run", "channel", o.opts.ChannelID, "messages", len(messages), "posts", o.summary.Total, "identities", o.selector.Len(), "strategy", o.selector.Strategy())

	for i, msg := range messages {
		if err := ctx.Err(); err != nil {
			return o.finish(ctx), err
		}

		o.deliverMessage(ctx, i+1, msg)

		if i < len(messages)-1 {
			if err := o.wait(ctx, o.opts.MessageDelay); err != nil {
				return o.finish(ctx), err
			}
		}
	}

	return o.finish(ctx), ctx.Err()
}

func (o *Orchestrator) finish(ctx context.Context) Summary {
	o.log.Info("Delivery run finished", "success", o.summary.Success, "failed", o.summary.Failed, "total", o.summary.Total)
	// Publish even when ctx is done so subscribers see the final tally.
	o.publish(context.WithoutCancel(ctx), bus.Event{Type: bus.EventRunCompleted})
	return o.summary
}

func (o *Orchestrator) deliverMessage(ctx context.Context, number int, msg conversation.Message) {
	log := o.log.With("message", number)
	index := o.counters.nextMessage()

	name := msg.User
	if o.opts.ForceUser != "" {
		name = o.opts.ForceUser
	}

	spans, err := compose(msg.Text)
	if err != nil {
		o.fail(ctx, log, bus.Event{Type: bus.EventMessageFailed, Message: number, Text: msg.Text}, err)
		return
	}

	author, err := o.selector.Select(name, index)
	if err != nil {
		o.fail(ctx, log, bus.Event{Type: bus.EventMessageFailed, Message: number, Text: msg.Text}, err)
		return
	}
	log = log.With("user", author.Name)

	result, err := o.deliverer.Deliver(ctx, channel.Post{Channel: o.opts.ChannelID, Spans: spans}, author)
	if err == nil && !result.OK {
		err = fmt.Errorf("post rejected: %s", result.Reason)
	}
	if err == nil && result.Timestamp == "" {
		// Replies would land at the channel top level without an anchor.
		err = errors.New("post accepted without a timestamp")
	}
	if err != nil {
		o.fail(ctx, log, bus.Event{Type: bus.EventMessageFailed, Message: number, User: author.Name, Text: msg.Text}, err)
		return
	}

	o.summary.Success++
	o.transcript.Append(Entry{Message: number, User: author.Name, TS: result.Timestamp, Text: msg.Text})
	o.publish(ctx, bus.Event{Type: bus.EventMessagePosted, Message: number, User: author.Name, ThreadTS: result.Timestamp, Text: msg.Text})
	log.Info("Posted message", "ts", result.Timestamp)

	if err := o.addReactions(ctx, log, number, msg, spans, author, result.Timestamp); err != nil {
		return
	}

	for j, reply := range msg.Replies {
		if err := o.wait(ctx, o.opts.ReplyDelay); err != nil {
			return
		}
		o.deliverReply(ctx, log, number, j+1, reply, result.Timestamp)
	}
}

// reactionsFor falls back to the first emoji in the message when none are
// listed.
func reactionsFor(msg conversation.Message, spans []richtext.Span) []string {
	names := conversation.ReactionNames(msg.Reactions)
	if len(names) > 0 {
		return names
	}
	if name, ok := richtext.FirstEmoji(spans); ok {
		return []string{name}
	}
	return nil
}

func (o *Orchestrator) addReactions(ctx context.Context, log *slog.Logger, number int, msg conversation.Message, spans []richtext.Span, author identity.Identity, threadTS string) error {
	for _, name := range reactionsFor(msg, spans) {
		if err := o.wait(ctx, o.opts.ReactionDelay); err != nil {
			return err
		}

		event := bus.Event{Message: number, User: author.Name, ThreadTS: threadTS, Reaction: name}
		added, err := o.deliverer.AddReaction(ctx, o.opts.ChannelID, threadTS, name, author)
		switch {
		case err != nil:
			log.Warn("Failed to add reaction", "reaction", name, "error", err)
			event.Type = bus.EventReactionFailed
			event.Error = err.Error()
		case !added:
			log.Warn("Reaction not added", "reaction", name)
			event.Type = bus.EventReactionFailed
		default:
			event.Type = bus.EventReactionAdded
		}
		o.publish(ctx, event)
	}
	return nil
}

func (o *Orchestrator) deliverReply(ctx context.Context, log *slog.Logger, number int, replyNumber int, reply conversation.Reply, threadTS string) {
	log = log.With("reply", replyNumber)
	index := o.counters.nextReply()
	event := bus.Event{Type: bus.EventReplyFailed, Message: number, Reply: replyNumber, ThreadTS: threadTS, Text: reply.Text}

	spans, err := compose(reply.Text)
	if err != nil {
		o.fail(ctx, log, event, err)
		return
	}

	author, err := o.selector.Select(reply.User, index)
	if err != nil {
		o.fail(ctx, log, event, err)
		return
	}
	event.User = author.Name

	result, err := o.deliverer.Deliver(ctx, channel.Post{Channel: o.opts.ChannelID, Spans: spans, ThreadTS: threadTS}, author)
	if err == nil && !result.OK {
		err = fmt.Errorf("reply rejected: %s", result.Reason)
	}
	if err != nil {
		o.fail(ctx, log.With("user", author.Name), event, err)
		return
	}

	o.summary.Success++
	o.transcript.Append(Entry{Message: number, Reply: replyNumber, User: author.Name, TS: result.Timestamp, ThreadTS: threadTS, Text: reply.Text})
	event.Type = bus.EventReplyPosted
	o.publish(ctx, event)
	log.Info("Posted reply", "user", author.Name, "ts", result.Timestamp)
}

func (o *Orchestrator) fail(ctx context.Context, log *slog.Logger, event bus.Event, err error) {
	o.summary.Failed++
	event.Error = err.Error()
	o.publish(ctx, event)

	attrs := []any{"error", err}
	if kind := channel.KindOf(err); kind != "" {
		attrs = append(attrs, "kind", kind)
	}
	if after, ok := channel.RetryAfterOf(err); ok {
		attrs = append(attrs, "retry_after", after)
	}
	log.Error("Delivery failed", attrs...)
}

func (o *Orchestrator) publish(ctx context.Context, event bus.Event) {
	if o.opts.Bus == nil {
		return
	}
	event.Channel = o.opts.ChannelID
	event.Success = o.summary.Success
	event.Failed = o.summary.Failed
	event.Total = o.summary.Total
	o.opts.Bus.PublishEvent(ctx, event)
}

func (o *Orchestrator) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return o.opts.Wait(ctx, d)
}

// compose tokenizes post text. Blank text cannot be posted.
func compose(text string) ([]richtext.Span, error) {
	if strings.TrimSpace(text) == "" {
		return nil, channel.FormatError("compose", "text cannot be empty")
	}
	return richtext.Parse(text), nil
}

func waitContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
