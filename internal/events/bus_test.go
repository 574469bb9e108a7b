package events

import (
	"testing"
	"time"
)

func TestBusSubscribeUnsubscribe(t *testing.T) {
	b := NewBus()
	ch1 := b.Subscribe()
	ch2 := b.Subscribe()
	if b.Count() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", b.Count())
	}

	b.Unsubscribe(ch1)
	b.Unsubscribe(ch1)
	if b.Count() != 1 {
		t.Fatalf("expected 1 subscriber after unsubscribe, got %d", b.Count())
	}
	if _, ok := <-ch1; ok {
		t.Fatalf("unsubscribed channel should be closed")
	}

	b.Unsubscribe(ch2)
	if b.Count() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.Count())
	}
}

func TestBusPublish(t *testing.T) {
	b := NewBus()
	ch1 := b.Subscribe()
	ch2 := b.Subscribe()
	defer b.Unsubscribe(ch1)
	defer b.Unsubscribe(ch2)

	b.Publish(Toast("File summarized: a.go", false))

	for _, ch := range []chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			if got.Kind != KindToast || got.Message != "File summarized: a.go" || got.IsError {
				t.Fatalf("unexpected event %+v", got)
			}
			if got.Timestamp.IsZero() {
				t.Fatalf("expected a timestamp")
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestBusDropsForSlowConsumer(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < 100; i++ {
		b.Publish(Event{Kind: KindProgress, Processed: i, Total: 100})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("expected a full buffer, got %d/%d", len(ch), cap(ch))
	}
	if first := <-ch; first.Processed != 0 {
		t.Fatalf("oldest events should be kept, got %d", first.Processed)
	}
}
