package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type followFrame struct {
	Type       string              `json:"type"`
	Conference domain.ConferenceID `json:"conference_id"`
	LastSeq    uint64              `json:"last_seq"`
}

type mirroredFrame struct {
	Type  string          `json:"type"`
	Event json.RawMessage `json:"event"`
}

// HandleFollow streams the mirrored events of conference id to a read-only
// observer. Messages from the observer are read and discarded.
func (ctl *SignalWSController) HandleFollow(ctx context.Context, c *gin.Context, feed core.EventFeed, id domain.ConferenceID) {
	logger := log.With().Str("module", "signal").Str("conference", string(id)).Logger()
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("follow upgrade failed")
		return
	}

	fctx, cancel := context.WithCancel(ctx)
	defer cancel()
	seq, err := feed.LastSeq(fctx, id)
	var events <-chan json.RawMessage
	if err == nil {
		events, err = feed.Follow(fctx, id)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("follow refused")
		_ = ws.WriteJSON(failure("follow", "", domain.Errorf(domain.CodeUnavailable, "event feed: %v", err)))
		_ = ws.Close()
		return
	}

	conn := &WsSignalConn{conn: ws, send: make(chan core.Frame, ctl.opts.SendBuffer)}
	defer conn.Close()
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ws.SetReadLimit(ctl.opts.ReadLimit)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger.Info().Uint64("last_seq", seq).Msg("follower attached")
	ctl.sendJSON(conn, followFrame{Type: "follow", Conference: id, LastSeq: seq})
	for {
		select {
		case <-fctx.Done():
			return
		case raw, ok := <-events:
			if !ok {
				logger.Info().Msg("follow stream ended")
				return
			}
			if err := ctl.trySendJSON(conn, mirroredFrame{Type: "event", Event: raw}); err != nil {
				logger.Warn().Err(err).Msg("follower too slow, closing")
				return
			}
		}
	}
}
