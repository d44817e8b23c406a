package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RegistryConfig tunes the registry and every session it starts.
type RegistryConfig struct {
	Session         SessionConfig
	Retention       time.Duration
	JanitorInterval time.Duration
	SinkQueue       int
	SinkTimeout     time.Duration
}

type Option func(*Registry)

func WithCalendar(c core.Calendar) Option { return func(r *Registry) { r.calendar = c } }

func WithNotifier(n core.Notifier) Option { return func(r *Registry) { r.notifier = n } }

// WithSink mirrors every committed event to sink from a background queue.
func WithSink(sink core.EventSink) Option {
	return func(r *Registry) { r.rawSinks = append(r.rawSinks, sink) }
}

func WithPolicy(p Policy) Option { return func(r *Registry) { r.policy = p } }

// ScheduleRequest creates a conference. With CalendarEventID set, window,
// title, invitees and features come from the calendar.
type ScheduleRequest struct {
	Host            domain.Identity
	Title           string
	Features        domain.Features
	Start           time.Time
	End             time.Time
	Invitees        []domain.UserID
	CalendarEventID string
	AdHoc           bool
}

// Registry maps conference ids and join codes to running session actors.
type Registry struct {
	cfg      RegistryConfig
	store    core.Store
	calendar core.Calendar
	notifier core.Notifier
	policy   Policy
	rawSinks []core.EventSink
	sinks    []core.EventSink

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[domain.ConferenceID]*Session
	codes    map[string]domain.ConferenceID
}

func NewRegistry(ctx context.Context, store core.Store, cfg RegistryConfig, opts ...Option) *Registry {
	if cfg.Retention <= 0 {
		cfg.Retention = 10 * time.Minute
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = time.Minute
	}
	if cfg.SinkQueue <= 0 {
		cfg.SinkQueue = 1024
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 2 * time.Second
	}
	cfg.Session = cfg.Session.withDefaults()
	ctx, cancel := context.WithCancel(ctx)
	r := &Registry{
		cfg:      cfg,
		store:    store,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[domain.ConferenceID]*Session),
		codes:    make(map[string]domain.ConferenceID),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, s := range r.rawSinks {
		r.sinks = append(r.sinks, newAsyncSink(ctx, s, cfg.SinkQueue, cfg.SinkTimeout))
	}
	return r
}

func (r *Registry) now() time.Time { return r.cfg.Session.Clock() }

// Schedule persists a new Scheduled conference and starts its actor.
func (r *Registry) Schedule(ctx context.Context, req ScheduleRequest) (*Session, error) {
	if req.CalendarEventID != "" {
		if r.calendar == nil {
			return nil, domain.Errorf(domain.CodeUnavailable, "no calendar configured")
		}
		ev, err := r.calendar.Event(ctx, req.CalendarEventID)
		if err != nil {
			return nil, err
		}
		if ev.Host != "" && ev.Host != req.Host.UserID {
			return nil, domain.Errorf(domain.CodePermissionDenied, "calendar event %s belongs to %s", ev.ID, ev.Host)
		}
		req.Title = ev.Title
		req.Start, req.End = ev.Start, ev.End
		req.Invitees = ev.Invitees
		req.Features = ev.Features
	}
	if req.Host.UserID == "" {
		return nil, domain.Errorf(domain.CodeInvalidArgument, "host is required")
	}
	if !req.Start.IsZero() && !req.End.IsZero() && !req.End.After(req.Start) {
		return nil, domain.Errorf(domain.CodeInvalidArgument, "scheduled end must be after start")
	}

	conf := domain.NewConference(domain.ConferenceID(uuid.NewString()), req.Host.UserID, req.Features, r.now())
	conf.Title = strings.TrimSpace(req.Title)
	conf.ScheduledStart, conf.ScheduledEnd = req.Start, req.End
	conf.Invitees = req.Invitees
	conf.CalendarEventID = req.CalendarEventID
	conf.AdHoc = req.AdHoc && req.CalendarEventID == ""

	if err := r.persist(conf); err != nil {
		return nil, err
	}
	s := r.start(conf)
	log.Info().Str("module", "app.registry").Str("conference", string(conf.ID)).Str("code", conf.JoinCode).Str("host", string(conf.HostUserID)).Msg("conference scheduled")
	return s, nil
}

// CreateAdHoc creates a conference owned by who that starts the moment who
// joins it.
func (r *Registry) CreateAdHoc(ctx context.Context, who domain.Identity, title string, features domain.Features) (*Session, error) {
	return r.Schedule(ctx, ScheduleRequest{Host: who, Title: title, Features: features, AdHoc: true})
}

func (r *Registry) persist(conf *domain.Conference) error {
	if r.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.Session.StorageTimeout)
	defer cancel()
	if err := r.store.Save(ctx, conf); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.Errorf(domain.CodeTimeout, "storage write exceeded %s", r.cfg.Session.StorageTimeout)
		}
		return domain.Errorf(domain.CodeUnavailable, "storage write failed: %v", err)
	}
	return nil
}

func (r *Registry) start(conf *domain.Conference) *Session {
	hub := NewHub(conf.ID, r.cfg.Session.SubscriberBuffer, r.policy, r.sinks...)
	s := NewSession(r.ctx, conf, r.store, r.notifier, hub, r.cfg.Session)
	r.mu.Lock()
	r.sessions[conf.ID] = s
	r.codes[conf.JoinCode] = conf.ID
	r.mu.Unlock()
	return s
}

// Get returns the running actor for id.
func (r *Registry) Get(id domain.ConferenceID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.Errorf(domain.CodeNotFound, "conference %s not found", id)
	}
	return s, nil
}

// ByCode resolves an external join code.
func (r *Registry) ByCode(code string) (*Session, error) {
	r.mu.RLock()
	id, ok := r.codes[strings.ToLower(strings.TrimSpace(code))]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.Errorf(domain.CodeNotFound, "join code %q not found", code)
	}
	return r.Get(id)
}

// List returns committed snapshots ordered by creation time.
func (r *Registry) List() []*domain.Conference {
	r.mu.RLock()
	out := make([]*domain.Conference, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Snapshot())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Restore starts an actor for every non-terminal conference in the store.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}
	confs, err := r.store.LoadActive(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, conf := range confs {
		if conf.Status.Terminal() {
			continue
		}
		if _, err := r.Get(conf.ID); err == nil {
			continue
		}
		r.start(conf)
		n++
	}
	log.Info().Str("module", "app.registry").Int("restored", n).Msg("conferences restored")
	return n, nil
}

// Evict stops and forgets conferences that have been Ended or Cancelled for
// longer than the retention window. It returns the evicted ids.
func (r *Registry) Evict(now time.Time) []domain.ConferenceID {
	var stale []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		conf := s.Snapshot()
		if !conf.Status.Terminal() || now.Sub(conf.EndedAt) < r.cfg.Retention {
			continue
		}
		delete(r.sessions, id)
		delete(r.codes, conf.JoinCode)
		stale = append(stale, s)
	}
	r.mu.Unlock()

	ids := make([]domain.ConferenceID, 0, len(stale))
	for _, s := range stale {
		s.Close()
		ids = append(ids, s.ID())
		if r.store != nil {
			ctx, cancel := context.WithTimeout(r.ctx, r.cfg.Session.StorageTimeout)
			if err := r.store.Delete(ctx, s.ID()); err != nil && !errors.Is(err, core.ErrRecordNotFound) {
				log.Warn().Err(err).Str("module", "app.registry").Str("conference", string(s.ID())).Msg("delete evicted conference")
			}
			cancel()
		}
		log.Info().Str("module", "app.registry").Str("conference", string(s.ID())).Msg("conference evicted")
	}
	return ids
}

// Run evicts stale conferences until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	t := time.NewTicker(r.cfg.JanitorInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			r.Evict(r.now())
		}
	}
}

// Close stops every actor.
func (r *Registry) Close() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
	r.cancel()
}
