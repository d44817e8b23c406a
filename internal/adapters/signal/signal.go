// Package signal is the websocket transport: one connection per joined
// participant, carrying command envelopes in and results plus conference
// events out.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrBackpressure = errors.New("backpressure")

type Options struct {
	ReadLimit         int64
	PingPeriod        time.Duration
	SendBuffer        int
	CommandsPerSecond float64
	CommandBurst      int
	CommandTimeout    time.Duration
	ICEServers        []webrtc.ICEServer
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.CommandsPerSecond <= 0 {
		o.CommandsPerSecond = 20
	}
	if o.CommandBurst <= 0 {
		o.CommandBurst = 40
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 5 * time.Second
	}
	return o
}

type SignalWSController struct {
	opts Options
}

func NewSignalWSController(opts Options) *SignalWSController {
	return &SignalWSController{opts: opts.withDefaults()}
}

// WsSignalConn queues frames for the write pump. Close stops accepting
// frames; the write pump flushes what is queued and then closes the socket.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

var _ core.SignalConnection = (*WsSignalConn)(nil)

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// client is one participant's connection to one conference.
type client struct {
	sess    *app.Session
	who     domain.Identity
	pid     domain.ParticipantID
	peer    domain.PeerID
	conn    *WsSignalConn
	sub     *app.Subscription
	limiter *commandLimiter
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type welcome struct {
	Type        string               `json:"type"`
	Participant domain.ParticipantID `json:"participant_id"`
	Conference  *domain.Conference   `json:"conference"`
	ICEServers  []webrtc.ICEServer   `json:"ice_servers,omitempty"`
}

// HandleSignal upgrades the request, joins who to sess and streams events
// until the participant leaves, is removed, or the socket drops. Dropping the
// socket counts as leaving.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, sess *app.Session, who domain.Identity) {
	logger := log.With().Str("module", "signal").Str("conference", string(sess.ID())).Str("user", string(who.UserID)).Logger()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}

	jctx, cancel := context.WithTimeout(ctx, ctl.opts.CommandTimeout)
	sub, snap, err := join(jctx, sess, who)
	cancel()
	if err != nil {
		logger.Info().Err(err).Msg("join refused")
		_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
		_ = ws.WriteJSON(failure("join", "", err))
		_ = ws.Close()
		return
	}
	p, _ := snap.LiveParticipantOf(who.UserID)

	conn := &WsSignalConn{conn: ws, send: make(chan core.Frame, ctl.opts.SendBuffer)}
	cl := &client{
		sess:    sess,
		who:     who,
		pid:     p.ID,
		peer:    p.PeerID,
		conn:    conn,
		sub:     sub,
		limiter: newCommandLimiter(ctl.opts.CommandsPerSecond, ctl.opts.CommandBurst),
	}
	logger.Info().Str("participant", string(p.ID)).Str("state", string(p.State)).Msg("new WS connection")

	ctl.sendJSON(conn, welcome{Type: "welcome", Participant: p.ID, Conference: snap, ICEServers: ctl.opts.ICEServers})

	ctx, cancelConn := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.pumpEvents(ctx, cl)
	go ctl.readPump(ctx, cancelConn, cl)
}

func join(ctx context.Context, sess *app.Session, who domain.Identity) (*app.Subscription, *domain.Conference, error) {
	if _, err := sess.Join(ctx, who); err != nil {
		return nil, nil, err
	}
	sub, snap, err := sess.Subscribe(ctx, who)
	if err != nil {
		lctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = sess.Leave(lctx, who)
		return nil, nil, err
	}
	return sub, snap, nil
}
