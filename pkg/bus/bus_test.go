package bus

import (
	"context"
	"testing"
	"time"
)

func TestEventFanout(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	ctx := context.Background()
	eventsA, unsubA := b.SubscribeEvents(ctx, 1)
	defer unsubA()
	eventsB, unsubB := b.SubscribeEvents(ctx, 1)
	defer unsubB()

	event := Event{Type: EventMessagePosted, Message: 1, User: "alice"}
	if ok := b.PublishEvent(ctx, event); !ok {
		t.Fatal("expected event publish to succeed")
	}

	for name, events := range map[string]<-chan Event{"A": eventsA, "B": eventsB} {
		select {
		case got := <-events:
			if got.Type != EventMessagePosted {
				t.Fatalf("subscriber %s event type = %q, want %q", name, got.Type, EventMessagePosted)
			}
			if got.At.IsZero() {
				t.Fatalf("subscriber %s event has no timestamp", name)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("subscriber %s did not receive event", name)
		}
	}
}

func TestSlowSubscriberDoesNotBlockPublishEvent(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	ctx := context.Background()
	events, unsubscribe := b.SubscribeEvents(ctx, 1)
	defer unsubscribe()

	if ok := b.PublishEvent(ctx, Event{Type: EventRunStarted}); !ok {
		t.Fatal("expected first event publish to succeed")
	}

	start := time.Now()
	if ok := b.PublishEvent(ctx, Event{Type: EventRunCompleted}); !ok {
		t.Fatal("expected second event publish to succeed")
	}

	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("publish event blocked on slow subscriber")
	}

	got := <-events
	if got.Type != EventRunStarted {
		t.Fatalf("event type = %q, want %q", got.Type, EventRunStarted)
	}
}

func TestUnsubscribeStopsEvents(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	ctx := context.Background()
	events, unsubscribe := b.SubscribeEvents(ctx, 1)
	unsubscribe()

	if ok := b.PublishEvent(ctx, Event{Type: EventReplyPosted}); !ok {
		t.Fatal("expected event publish to succeed")
	}

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected closed event channel")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected event channel close after unsubscribe")
	}
	if n := b.Subscribers(); n != 0 {
		t.Fatalf("subscribers = %d, want 0", n)
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	ctx, cancel := context.WithCancel(context.Background())
	events, _ := b.SubscribeEvents(ctx, 1)
	cancel()

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected event channel to be closed")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("subscription did not end with its context")
	}
}

func TestCloseStopsBus(t *testing.T) {
	b := New()

	events, _ := b.SubscribeEvents(context.Background(), 1)
	b.Close()

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected event channel to be closed")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("event subscription did not unblock after close")
	}

	if ok := b.PublishEvent(context.Background(), Event{Type: EventRunCompleted}); ok {
		t.Fatal("expected publish to fail after close")
	}

	late, _ := b.SubscribeEvents(context.Background(), 1)
	if _, ok := <-late; ok {
		t.Fatal("expected subscription after close to be closed")
	}
}

func TestPublishFailsOnCanceledContext(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if ok := b.PublishEvent(ctx, Event{Type: EventRunStarted}); ok {
		t.Fatal("expected publish to fail on canceled context")
	}
}

func TestTerminal(t *testing.T) {
	if !(Event{Type: EventRunCompleted}).Terminal() {
		t.Fatal("run_completed should be terminal")
	}
	if (Event{Type: EventReplyFailed}).Terminal() {
		t.Fatal("reply_failed should not be terminal")
	}
}
