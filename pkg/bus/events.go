package bus

import (
	"context"
	"sync"
	"time"
)

type EventType string

const (
	EventRunStarted     EventType = "run_started"
	EventMessagePosted  EventType = "message_posted"
	EventMessageFailed  EventType = "message_failed"
	EventReactionAdded  EventType = "reaction_added"
	EventReactionFailed EventType = "reaction_failed"
	EventReplyPosted    EventType = "reply_posted"
	EventReplyFailed    EventType = "reply_failed"
	EventRunCompleted   EventType = "run_completed"
)

// Event describes one step of a delivery run. Message and Reply are
// 1-based; Reply is zero for top-level posts.
type Event struct {
	Type     EventType `json:"type"`
	At       time.Time `json:"at"`
	Channel  string    `json:"channel,omitempty"`
	Message  int       `json:"message,omitempty"`
	Reply    int       `json:"reply,omitempty"`
	User     string    `json:"user,omitempty"`
	ThreadTS string    `json:"thread_ts,omitempty"`
	Reaction string    `json:"reaction,omitempty"`
	Text     string    `json:"text,omitempty"`
	Success  int       `json:"success"`
	Failed   int       `json:"failed"`
	Total    int       `json:"total"`
	Error    string    `json:"error,omitempty"`
}

// Terminal reports whether the event ends a run.
func (e Event) Terminal() bool {
	return e.Type == EventRunCompleted
}

func (b *Bus) PublishEvent(ctx context.Context, event Event) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-b.done:
		return false
	default:
	}

	// Sends are non-blocking, so holding the read lock keeps unsubscribe
	// from closing a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Drop instead of blocking the publisher on slow subscribers.
		}
	}

	return true
}

func (b *Bus) SubscribeEvents(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Event, buffer)

	b.mu.Lock()
	select {
	case <-b.done:
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := b.nextSubscriberID
	b.nextSubscriberID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			if eventCh, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(eventCh)
			}
			b.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-b.done:
			unsubscribe()
		}
	}()

	return ch, unsubscribe
}
