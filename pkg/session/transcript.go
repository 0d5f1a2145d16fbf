package session

import (
	"sync"
	"time"
)

// Entry is one delivered post. Reply is zero for top-level messages.
type Entry struct {
	Message  int       `json:"message"`
	Reply    int       `json:"reply,omitempty"`
	User     string    `json:"user"`
	TS       string    `json:"ts"`
	ThreadTS string    `json:"thread_ts,omitempty"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
}

// Transcript records delivered posts in order. Safe for concurrent readers
// such as a progress view.
type Transcript struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

func (t *Transcript) Append(entry Entry) {
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, entry)
}

func (t *Transcript) List() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.entries) == 0 {
		return nil
	}

	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
