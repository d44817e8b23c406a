package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

var testNow = time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

func newFakeClock() *fakeClock {
	return &fakeClock{now: testNow}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memStore is an in-memory core.Store whose failures can be switched on.
type memStore struct {
	mu    sync.Mutex
	confs map[domain.ConferenceID]*domain.Conference
	fail  error
	block bool
	saves int
}

var _ core.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{confs: make(map[domain.ConferenceID]*domain.Conference)}
}

func (m *memStore) setFail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

func (m *memStore) setBlock(b bool) {
	m.mu.Lock()
	m.block = b
	m.mu.Unlock()
}

func (m *memStore) Save(ctx context.Context, conf *domain.Conference) error {
	m.mu.Lock()
	block, fail := m.block, m.fail
	m.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if fail != nil {
		return fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confs[conf.ID] = conf.Clone()
	m.saves++
	return nil
}

func (m *memStore) Load(_ context.Context, id domain.ConferenceID) (*domain.Conference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.confs[id]
	if !ok {
		return nil, core.ErrRecordNotFound
	}
	return c.Clone(), nil
}

func (m *memStore) LoadActive(context.Context) ([]*domain.Conference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Conference
	for _, c := range m.confs {
		if !c.Status.Terminal() {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

func (m *memStore) Delete(_ context.Context, id domain.ConferenceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.confs[id]; !ok {
		return core.ErrRecordNotFound
	}
	delete(m.confs, id)
	return nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	cancelled []domain.ConferenceID
	done      chan struct{}
}

func (n *recordingNotifier) ConferenceCancelled(_ context.Context, conf *domain.Conference) error {
	n.mu.Lock()
	n.cancelled = append(n.cancelled, conf.ID)
	n.mu.Unlock()
	close(n.done)
	return nil
}

var errStoreDown = errors.New("store down")

func ident(user string) domain.Identity {
	return domain.Identity{UserID: domain.UserID(user), DisplayName: user}
}

type fixture struct {
	t     *testing.T
	sess  *Session
	store *memStore
	clock *fakeClock
	host  domain.Identity
}

func newFixture(t *testing.T, features domain.Features, tweak ...func(*SessionConfig)) *fixture {
	t.Helper()
	clock := newFakeClock()
	store := newMemStore()
	cfg := SessionConfig{Clock: clock.Now, DegradedRetry: 10 * time.Millisecond, StorageTimeout: 50 * time.Millisecond}
	for _, fn := range tweak {
		fn(&cfg)
	}
	host := ident("host")
	conf := domain.NewConference("conf-1", host.UserID, features, clock.Now())
	s := NewSession(context.Background(), conf, store, nil, nil, cfg)
	t.Cleanup(s.Close)
	return &fixture{t: t, sess: s, store: store, clock: clock, host: host}
}

// started joins the host and starts the conference.
func (f *fixture) started() *fixture {
	f.t.Helper()
	f.must(f.sess.Join(context.Background(), f.host))
	f.must(f.sess.Start(context.Background(), f.host))
	return f
}

func (f *fixture) must(conf *domain.Conference, err error) *domain.Conference {
	f.t.Helper()
	if err != nil {
		f.t.Fatalf("unexpected error: %v", err)
	}
	return conf
}

// join adds user and returns its participant.
func (f *fixture) join(user string) *domain.Participant {
	f.t.Helper()
	conf := f.must(f.sess.Join(context.Background(), ident(user)))
	p, ok := conf.LiveParticipantOf(domain.UserID(user))
	if !ok {
		f.t.Fatalf("user %s has no live participant after join", user)
	}
	return p
}

func (f *fixture) participant(user string) *domain.Participant {
	f.t.Helper()
	p, ok := f.sess.Snapshot().LiveParticipantOf(domain.UserID(user))
	if !ok {
		f.t.Fatalf("user %s has no live participant", user)
	}
	return p
}

func (f *fixture) subscribe(user string) *Subscription {
	f.t.Helper()
	sub, _, err := f.sess.Subscribe(context.Background(), ident(user))
	if err != nil {
		f.t.Fatalf("subscribe %s: %v", user, err)
	}
	return sub
}

// drain returns every event already queued on sub.
func drain(sub *Subscription) []domain.Event {
	var out []domain.Event
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func types(events []domain.Event) []domain.EventType {
	out := make([]domain.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func wantCode(t *testing.T, err error, code domain.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if got := domain.CodeOf(err); got != code {
		t.Fatalf("error code = %s, want %s (%v)", got, code, err)
	}
}
