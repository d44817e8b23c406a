package app

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	// DropSubscriber closes the lagging subscription. The client reconnects
	// and resumes from a fresh snapshot, so it never observes a gap.
	DropSubscriber
)

// Policy decides what to do with a subscriber whose buffer is full.
// Skipping or coalescing an event is not an option: per-conference
// order is strict.
type Policy interface {
	OnBackPressure(conf domain.ConferenceID, sub *Subscription) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.ConferenceID, *Subscription) BackpressureAction {
	return DropSubscriber
}

// Subscription is one client's ordered view of a conference event stream.
// C is closed when the subscription ends.
type Subscription struct {
	ID          uint64
	Participant domain.ParticipantID
	C           <-chan domain.Event

	ch     chan domain.Event
	closed bool
}

// PublishResult reports delivery stats for one event.
type PublishResult struct {
	SentTo  int
	Dropped []*Subscription
}

// Hub fans committed events out to subscribers of one conference. Publish is
// only called by the owning session actor, which fixes the delivery order.
type Hub struct {
	conf   domain.ConferenceID
	buffer int
	policy Policy
	sinks  []core.EventSink

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*Subscription
}

func NewHub(conf domain.ConferenceID, buffer int, policy Policy, sinks ...core.EventSink) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Hub{
		conf:   conf,
		buffer: buffer,
		policy: policy,
		sinks:  sinks,
		subs:   make(map[uint64]*Subscription),
	}
}

func (h *Hub) subscribe(pid domain.ParticipantID) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	ch := make(chan domain.Event, h.buffer)
	sub := &Subscription{ID: h.nextID, Participant: pid, C: ch, ch: ch}
	h.subs[sub.ID] = sub
	log.Info().Str("module", "app.fanout").Str("conference", string(h.conf)).Str("participant", string(pid)).Uint64("sub", sub.ID).Msg("subscribed")
	return sub
}

// Unsubscribe ends sub. Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeLocked(sub)
}

func (h *Hub) closeLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
	delete(h.subs, sub.ID)
	log.Info().Str("module", "app.fanout").Str("conference", string(h.conf)).Uint64("sub", sub.ID).Msg("unsubscribed")
}

// Count returns the number of open subscriptions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish delivers events in order, then forwards them to sinks.
func (h *Hub) Publish(events ...domain.Event) {
	for _, ev := range events {
		res := h.publishOne(ev)
		log.Debug().Str("module", "app.fanout").Str("conference", string(h.conf)).Str("event", string(ev.Type)).Uint64("seq", ev.Seq).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("publish result")
	}
	for _, sink := range h.sinks {
		for _, ev := range events {
			if ev.Type == domain.EventSignalRelayed {
				continue
			}
			if err := sink.Publish(context.Background(), ev); err != nil {
				log.Warn().Err(err).Str("module", "app.fanout").Str("conference", string(h.conf)).Msg("sink publish failed")
			}
		}
	}
}

func (h *Hub) publishOne(ev domain.Event) PublishResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	res := PublishResult{}
	for _, sub := range h.orderedLocked() {
		if ev.Audience != nil && !slices.Contains(ev.Audience, sub.Participant) {
			continue
		}
		select {
		case sub.ch <- ev:
			res.SentTo++
		default:
			res.Dropped = append(res.Dropped, sub)
		}
	}
	for _, slow := range res.Dropped {
		switch h.policy.OnBackPressure(h.conf, slow) {
		case DropSubscriber:
			log.Warn().Str("module", "app.fanout").Str("conference", string(h.conf)).Uint64("sub", slow.ID).Msg("dropping slow subscriber")
			h.closeLocked(slow)
		case NoAction:
		}
	}

	switch {
	case ev.CloseAll:
		for _, sub := range h.orderedLocked() {
			h.closeLocked(sub)
		}
	case len(ev.Close) > 0:
		for _, sub := range h.orderedLocked() {
			if slices.Contains(ev.Close, sub.Participant) {
				h.closeLocked(sub)
			}
		}
	}
	return res
}

func (h *Hub) orderedLocked() []*Subscription {
	out := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *Subscription) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// CloseAll ends every subscription.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.orderedLocked() {
		h.closeLocked(sub)
	}
}

// asyncSink forwards events to a slow sink from its own goroutine so the
// actor never waits on the network. Order is preserved; overflow is logged
// and dropped.
type asyncSink struct {
	sink    core.EventSink
	timeout time.Duration
	queue   chan domain.Event
}

func newAsyncSink(ctx context.Context, sink core.EventSink, size int, timeout time.Duration) *asyncSink {
	a := &asyncSink{sink: sink, timeout: timeout, queue: make(chan domain.Event, size)}
	go a.loop(ctx)
	return a
}

func (a *asyncSink) Publish(_ context.Context, ev domain.Event) error {
	select {
	case a.queue <- ev:
		return nil
	default:
		return domain.Errorf(domain.CodeCapacityExceeded, "sink queue full")
	}
}

func (a *asyncSink) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.queue:
			pctx, cancel := context.WithTimeout(ctx, a.timeout)
			if err := a.sink.Publish(pctx, ev); err != nil {
				log.Warn().Err(err).Str("module", "app.fanout").Str("conference", string(ev.ConferenceID)).Msg("mirror publish failed")
			}
			cancel()
		}
	}
}
