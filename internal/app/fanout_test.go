package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/domain"
)

func TestHubAudience(t *testing.T) {
	t.Parallel()
	h := NewHub("c", 4, nil)
	a := h.subscribe("a")
	b := h.subscribe("b")

	h.Publish(
		domain.Event{Seq: 1, Type: domain.EventParticipantJoined},
		domain.Event{Seq: 2, Type: domain.EventSignalRelayed, Audience: []domain.ParticipantID{"b"}},
	)

	if got := len(drain(a)); got != 1 {
		t.Fatalf("a received %d events, want 1", got)
	}
	if got := len(drain(b)); got != 2 {
		t.Fatalf("b received %d events, want 2", got)
	}
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	t.Parallel()
	h := NewHub("c", 1, nil)
	slow := h.subscribe("slow")
	fast := h.subscribe("fast")

	h.Publish(domain.Event{Seq: 1})
	drain(fast)
	h.Publish(domain.Event{Seq: 2})

	events := drain(slow)
	if len(events) != 1 || events[0].Seq != 1 {
		t.Fatalf("slow subscriber got %v, want only seq 1", events)
	}
	if _, ok := <-slow.C; ok {
		t.Fatal("slow subscription still open")
	}
	if got := h.Count(); got != 1 {
		t.Fatalf("open subscriptions = %d, want 1", got)
	}
}

func TestHubCloseDirectives(t *testing.T) {
	t.Parallel()
	h := NewHub("c", 4, nil)
	a := h.subscribe("a")
	b := h.subscribe("b")

	h.Publish(domain.Event{Seq: 1, Close: []domain.ParticipantID{"a"}})
	drain(a)
	if _, ok := <-a.C; ok {
		t.Fatal("a should be closed")
	}
	if h.Count() != 1 {
		t.Fatalf("open subscriptions = %d, want 1", h.Count())
	}

	h.Publish(domain.Event{Seq: 2, CloseAll: true})
	if got := drain(b); len(got) != 2 {
		t.Fatalf("b received %d events before close, want 2", len(got))
	}
	h.Unsubscribe(b)
	if h.Count() != 0 {
		t.Fatalf("open subscriptions = %d, want 0", h.Count())
	}
}

type collectSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *collectSink) Publish(_ context.Context, ev domain.Event) error {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	return nil
}

func (c *collectSink) seqs() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint64, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Seq
	}
	return out
}

func TestAsyncSinkKeepsOrderAndSkipsRelays(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &collectSink{}
	h := NewHub("c", 4, nil, newAsyncSink(ctx, sink, 16, time.Second))

	h.Publish(
		domain.Event{Seq: 1},
		domain.Event{Seq: 2, Type: domain.EventSignalRelayed},
		domain.Event{Seq: 3},
	)

	deadline := time.Now().Add(time.Second)
	for len(sink.seqs()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("sink received %v", sink.seqs())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := sink.seqs(); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("sink seqs = %v, want [1 3]", got)
	}
}
