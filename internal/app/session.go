package app

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type HostLeavePolicy string

const (
	HostLeaveEnd     HostLeavePolicy = "end"
	HostLeavePromote HostLeavePolicy = "promote"
)

// SessionConfig tunes one session actor.
type SessionConfig struct {
	QueueSize        int
	SubscriberBuffer int
	StorageTimeout   time.Duration
	DegradedRetry    time.Duration
	MaxParticipants  int
	MaxRooms         int
	MaxChatLength    int
	HostLeave        HostLeavePolicy
	Clock            func() time.Time
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = 128
	}
	if c.StorageTimeout <= 0 {
		c.StorageTimeout = 2 * time.Second
	}
	if c.DegradedRetry <= 0 {
		c.DegradedRetry = 5 * time.Second
	}
	if c.MaxChatLength <= 0 {
		c.MaxChatLength = 4096
	}
	if c.HostLeave == "" {
		c.HostLeave = HostLeaveEnd
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

const (
	cmdQueued int32 = iota
	cmdRunning
	cmdCancelled
)

type command struct {
	ctx   context.Context
	name  string
	who   domain.Identity
	gated bool
	fn    func(tx *txn) error
	state atomic.Int32
	reply chan result
}

type result struct {
	conf *domain.Conference
	err  error
}

// txn is the working copy a command mutates. Nothing in it is visible until
// the actor commits.
type txn struct {
	conf    *domain.Conference
	actor   Actor
	now     time.Time
	events  []domain.Event
	after   []func(committed *domain.Conference)
	persist bool
	sub     *Subscription
}

func (tx *txn) emit(typ domain.EventType, payload any, audience ...domain.ParticipantID) *domain.Event {
	tx.events = append(tx.events, domain.Event{
		ConferenceID: tx.conf.ID,
		Type:         typ,
		At:           tx.now,
		Payload:      payload,
		Audience:     audience,
	})
	return &tx.events[len(tx.events)-1]
}

func (tx *txn) can(action Action) error {
	return CanPerform(tx.actor, action, tx.conf)
}

// self returns the actor's live participant or PermissionDenied.
func (tx *txn) self() (*domain.Participant, error) {
	if tx.actor.Participant == nil {
		return nil, domain.Errorf(domain.CodePermissionDenied, "caller has not joined")
	}
	return tx.actor.Participant, nil
}

// Session is the single writer for one conference. All mutations go through
// its command queue; reads use the last committed snapshot.
type Session struct {
	id       domain.ConferenceID
	cfg      SessionConfig
	store    core.Store
	notifier core.Notifier
	hub      *Hub
	logger   zerolog.Logger

	cmds     chan *command
	done     chan struct{}
	cancel   context.CancelFunc
	snap     atomic.Pointer[domain.Conference]
	degraded atomic.Bool

	// state is touched only by run.
	state *domain.Conference
}

// NewSession starts the actor for conf. It stops when ctx is done or Close is called.
func NewSession(ctx context.Context, conf *domain.Conference, store core.Store, notifier core.Notifier, hub *Hub, cfg SessionConfig) *Session {
	cfg = cfg.withDefaults()
	if hub == nil {
		hub = NewHub(conf.ID, cfg.SubscriberBuffer, nil)
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:       conf.ID,
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		hub:      hub,
		logger:   log.With().Str("module", "app.session").Str("conference", string(conf.ID)).Logger(),
		cmds:     make(chan *command, cfg.QueueSize),
		done:     make(chan struct{}),
		cancel:   cancel,
		state:    conf,
	}
	s.snap.Store(conf)
	go s.run(ctx)
	return s
}

func (s *Session) ID() domain.ConferenceID { return s.id }

// Snapshot returns the last committed state. Callers must not modify it.
func (s *Session) Snapshot() *domain.Conference { return s.snap.Load() }

// Degraded reports whether the last durable write failed.
func (s *Session) Degraded() bool { return s.degraded.Load() }

// Hub exposes the event fan-out.
func (s *Session) Hub() *Hub { return s.hub }

// Done is closed once the actor has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close stops the actor and ends every subscription.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

func (s *Session) run(ctx context.Context) {
	defer func() {
		s.hub.CloseAll()
		close(s.done)
		s.logger.Info().Msg("session stopped")
	}()
	retry := time.NewTicker(s.cfg.DegradedRetry)
	defer retry.Stop()

	s.logger.Info().Str("status", string(s.state.Status)).Msg("session started")
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.cmds:
			s.process(cmd)
		case <-retry.C:
			if s.degraded.Load() {
				s.retrySave()
			}
		}
	}
}

// do enqueues a command and waits for its outcome. A command still queued
// when ctx ends is withdrawn and leaves no trace.
func (s *Session) do(ctx context.Context, name string, who domain.Identity, gated bool, fn func(tx *txn) error) (*domain.Conference, error) {
	cmd := &command{ctx: ctx, name: name, who: who, gated: gated, fn: fn, reply: make(chan result, 1)}

	if gated && s.degraded.Load() {
		return nil, domain.Errorf(domain.CodeUnavailable, "conference %s is degraded", s.id)
	}

	select {
	case s.cmds <- cmd:
	case <-ctx.Done():
		return nil, ctxErr(ctx)
	case <-s.done:
		return nil, domain.Errorf(domain.CodeUnavailable, "conference %s is closed", s.id)
	}

	select {
	case r := <-cmd.reply:
		return r.conf, r.err
	case <-ctx.Done():
		if cmd.state.CompareAndSwap(cmdQueued, cmdCancelled) {
			return nil, ctxErr(ctx)
		}
		r := <-cmd.reply
		return r.conf, r.err
	case <-s.done:
		if cmd.state.CompareAndSwap(cmdQueued, cmdCancelled) {
			return nil, domain.Errorf(domain.CodeUnavailable, "conference %s is closed", s.id)
		}
		r := <-cmd.reply
		return r.conf, r.err
	}
}

func ctxErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.Errorf(domain.CodeTimeout, "command deadline exceeded")
	}
	return ctx.Err()
}

func (s *Session) process(cmd *command) {
	if !cmd.state.CompareAndSwap(cmdQueued, cmdRunning) {
		s.logger.Debug().Str("command", cmd.name).Msg("skipping cancelled command")
		return
	}
	if cmd.ctx.Err() != nil {
		cmd.reply <- result{err: ctxErr(cmd.ctx)}
		return
	}
	conf, err := s.apply(cmd)
	cmd.reply <- result{conf: conf, err: err}
}

func (s *Session) apply(cmd *command) (*domain.Conference, error) {
	if cmd.gated && s.degraded.Load() {
		return nil, domain.Errorf(domain.CodeUnavailable, "conference %s is degraded", s.id)
	}

	tx := &txn{conf: s.state.Clone(), now: s.cfg.Clock(), persist: true}
	tx.actor = Actor{Identity: cmd.who}
	if p, ok := tx.conf.LiveParticipantOf(cmd.who.UserID); ok {
		tx.actor.Participant = p
	}

	if err := cmd.fn(tx); err != nil {
		s.logger.Debug().Err(err).Str("command", cmd.name).Str("user", string(cmd.who.UserID)).Msg("command rejected")
		if tx.sub != nil {
			s.hub.Unsubscribe(tx.sub)
		}
		return nil, err
	}
	if len(tx.events) == 0 {
		// Every state change emits an event, so this was a no-op.
		return s.state, nil
	}
	if err := tx.conf.Validate(); err != nil {
		s.logger.Error().Err(err).Str("command", cmd.name).Msg("command would break an invariant")
		return nil, err
	}

	for i := range tx.events {
		tx.conf.Seq++
		tx.events[i].Seq = tx.conf.Seq
	}
	tx.conf.UpdatedAt = tx.now

	if tx.persist {
		if err := s.save(tx.conf); err != nil {
			s.degrade(err)
			if tx.sub != nil {
				s.hub.Unsubscribe(tx.sub)
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, domain.Errorf(domain.CodeTimeout, "storage write exceeded %s", s.cfg.StorageTimeout)
			}
			return nil, domain.Errorf(domain.CodeUnavailable, "storage write failed: %v", err)
		}
	}

	s.state = tx.conf
	s.snap.Store(tx.conf)
	s.hub.Publish(tx.events...)
	for _, fn := range tx.after {
		go fn(tx.conf)
	}
	s.logger.Debug().Str("command", cmd.name).Int("events", len(tx.events)).Uint64("seq", tx.conf.Seq).Msg("committed")
	return tx.conf, nil
}

func (s *Session) save(conf *domain.Conference) error {
	if s.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StorageTimeout)
	defer cancel()
	return s.store.Save(ctx, conf)
}

func (s *Session) degrade(err error) {
	if s.degraded.CompareAndSwap(false, true) {
		s.logger.Error().Err(err).Msg("storage failure, conference degraded")
	}
}

func (s *Session) retrySave() {
	if err := s.save(s.state); err != nil {
		s.logger.Warn().Err(err).Msg("storage still unavailable")
		return
	}
	s.degraded.Store(false)
	s.logger.Info().Msg("storage recovered")
}

// Subscribe registers a subscription for the caller's participant at a
// well-defined point in the command order and returns it with the snapshot
// it starts from. Every later event reaches the subscription.
func (s *Session) Subscribe(ctx context.Context, who domain.Identity) (*Subscription, *domain.Conference, error) {
	var sub *Subscription
	conf, err := s.do(ctx, "subscribe", who, false, func(tx *txn) error {
		p, err := tx.self()
		if err != nil {
			return err
		}
		tx.persist = false
		sub = s.hub.subscribe(p.ID)
		tx.sub = sub
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return sub, conf, nil
}
