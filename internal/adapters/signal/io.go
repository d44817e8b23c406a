package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, cl *client) {
	logger := log.With().Str("module", "signal").Str("conference", string(cl.sess.ID())).Str("participant", string(cl.pid)).Logger()
	defer func() {
		logger.Info().Msg("readPump closing")
		cl.conn.Close()
		cl.sess.Hub().Unsubscribe(cl.sub)
		ctl.disconnect(cl)
		cancel()
	}()

	c := cl.conn.conn
	c.SetReadLimit(ctl.opts.ReadLimit)
	pongWait := ctl.opts.PingPeriod * 10 / 9
	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("readPump read error")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		ctl.handleSignal(ctx, cl, data)
	}
}

// disconnect makes a dropped socket equivalent to Leave. It is a no-op when
// the participant already left, was removed, resumed on another socket, or
// the conference is over.
func (ctl *SignalWSController) disconnect(cl *client) {
	snap := cl.sess.Snapshot()
	p, ok := snap.Participants[cl.pid]
	if !ok || !p.Live() || p.PeerID != cl.peer || snap.Status.Terminal() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), ctl.opts.CommandTimeout)
	defer cancel()
	if _, err := cl.sess.Disconnect(ctx, cl.who, cl.peer); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("participant", string(cl.pid)).Msg("leave on disconnect")
	}
}

type eventFrame struct {
	Type  string       `json:"type"`
	Event domain.Event `json:"event"`
}

// pumpEvents forwards the participant's event stream. When the stream ends
// (removal, conference end, or a slow consumer) the socket is closed after
// the queued frames are flushed.
func (ctl *SignalWSController) pumpEvents(ctx context.Context, cl *client) {
	defer cl.conn.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-cl.sub.C:
			if !ok {
				log.Info().Str("module", "signal").Str("participant", string(cl.pid)).Msg("event stream closed")
				return
			}
			if err := ctl.trySendJSON(cl.conn, eventFrame{Type: "event", Event: ev}); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("participant", string(cl.pid)).Msg("client too slow, closing")
				return
			}
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, cl *client, data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendJSON(cl.conn, failure("", "", domain.Errorf(domain.CodeInvalidArgument, "bad json")))
		return
	}
	if !cl.limiter.Allow() {
		ctl.sendJSON(cl.conn, failure(req.Type, req.ID, domain.Errorf(domain.CodeCapacityExceeded, "too many commands")))
		return
	}
	h, ok := commands[req.Type]
	if !ok {
		log.Warn().Str("module", "signal").Str("type", req.Type).Msg("unknown signal")
		ctl.sendJSON(cl.conn, failure(req.Type, req.ID, domain.Errorf(domain.CodeInvalidArgument, "unknown command %q", req.Type)))
		return
	}

	cctx, cancel := context.WithTimeout(ctx, ctl.opts.CommandTimeout)
	defer cancel()
	conf, err := h(cctx, cl, req)
	if err != nil {
		ctl.sendJSON(cl.conn, failure(req.Type, req.ID, err))
		return
	}
	ctl.sendJSON(cl.conn, result{Type: "result", Command: req.Type, ID: req.ID, OK: true, Conference: conf})
}

func (ctl *SignalWSController) trySendJSON(c *WsSignalConn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return nil
	}
	return c.TrySend(b)
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	_ = ctl.trySendJSON(c, v)
}
