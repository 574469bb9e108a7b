// Package events fans session notifications out to subscribers.
package events

import (
	"sync"
	"time"

	"github.com/agusx1211/contextpack/internal/metrics"
)

// Kind identifies what an event reports.
type Kind string

const (
	KindSelection Kind = "selection"
	KindProgress  Kind = "progress"
	KindToast     Kind = "toast"
	KindBusy      Kind = "busy"
	KindStale     Kind = "stale"
	KindPrompt    Kind = "prompt"
)

// Event is one session notification. Only the fields relevant to Kind are
// set.
type Event struct {
	Kind      Kind
	Message   string
	IsError   bool
	Paths     []string
	Processed int
	Total     int
	Busy      bool
	Prompt    string
	Timestamp time.Time
}

// Toast builds a user-facing notification.
func Toast(msg string, isError bool) Event {
	return Event{Kind: KindToast, Message: msg, IsError: isError}
}

// Bus manages subscribers and publishes events.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[chan Event]struct{})}
}

// Subscribe adds a subscriber and returns its channel. The caller must call
// Unsubscribe when done.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	n := len(b.subscribers)
	b.mu.Unlock()
	metrics.SetEventSubscribers(n)
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
	n := len(b.subscribers)
	b.mu.Unlock()
	metrics.SetEventSubscribers(n)
}

// Publish sends an event to every subscriber. Slow consumers miss events
// rather than block the publisher.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
	metrics.RecordEvent(string(e.Kind))
}

// Count returns the number of subscribers.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
