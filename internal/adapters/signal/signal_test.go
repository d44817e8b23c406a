package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type frame struct {
	Type        string               `json:"type"`
	Command     string               `json:"command"`
	ID          string               `json:"id"`
	OK          bool                 `json:"ok"`
	Participant domain.ParticipantID `json:"participant_id"`
	LastSeq     uint64               `json:"last_seq"`
	Error       *errorBody           `json:"error"`
	Event       *domain.Event        `json:"event"`
}

func newServer(t *testing.T, sess *app.Session, opts Options) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctl := NewSignalWSController(opts)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		user := c.Query("user")
		ctl.HandleSignal(context.Background(), c, sess, domain.Identity{UserID: domain.UserID(user), DisplayName: user})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user=" + user
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// readUntil returns the first frame matching keep.
func readUntil(t *testing.T, ws *websocket.Conn, keep func(frame) bool) frame {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			t.Fatalf("read: %v", err)
		}
		if keep(f) {
			return f
		}
	}
}

func send(t *testing.T, ws *websocket.Conn, v map[string]any) frame {
	t.Helper()
	if err := ws.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
	id := fmt.Sprint(v["id"])
	return readUntil(t, ws, func(f frame) bool { return f.Type == "result" && f.ID == id })
}

func newSession(t *testing.T, features domain.Features) *app.Session {
	t.Helper()
	conf := domain.NewConference("conf-ws", "host", features, time.Now())
	sess := app.NewSession(context.Background(), conf, nil, nil, nil, app.SessionConfig{})
	t.Cleanup(sess.Close)
	return sess
}

func TestCommandRoundTrip(t *testing.T) {
	t.Parallel()
	sess := newSession(t, domain.Features{})
	srv := newServer(t, sess, Options{})
	ws := dial(t, srv, "host")

	hello := readUntil(t, ws, func(f frame) bool { return f.Type == "welcome" })
	if hello.Participant == "" {
		t.Fatal("welcome frame has no participant id")
	}

	if res := send(t, ws, map[string]any{"type": "start", "id": "1"}); !res.OK {
		t.Fatalf("start failed: %+v", res.Error)
	}
	if res := send(t, ws, map[string]any{"type": "raise_hand", "id": "2"}); !res.OK {
		t.Fatalf("raise_hand failed: %+v", res.Error)
	}
	ev := readUntil(t, ws, func(f frame) bool {
		return f.Type == "event" && f.Event.Type == domain.EventHandRaiseQueueChanged
	})
	if ev.Event.Seq == 0 {
		t.Fatal("event carries no sequence number")
	}

	res := send(t, ws, map[string]any{"type": "dance", "id": "3"})
	if res.OK || res.Error == nil || res.Error.Code != domain.CodeInvalidArgument {
		t.Fatalf("unknown command result = %+v", res)
	}
	res = send(t, ws, map[string]any{"type": "admit", "id": "4", "target": "ghost"})
	if res.OK || res.Error.Code != domain.CodeNotFound {
		t.Fatalf("admit ghost result = %+v", res)
	}
}

func TestDisconnectLeaves(t *testing.T) {
	t.Parallel()
	sess := newSession(t, domain.Features{})
	srv := newServer(t, sess, Options{})

	host := dial(t, srv, "host")
	readUntil(t, host, func(f frame) bool { return f.Type == "welcome" })
	send(t, host, map[string]any{"type": "start", "id": "1"})

	guest := dial(t, srv, "guest")
	hello := readUntil(t, guest, func(f frame) bool { return f.Type == "welcome" })
	_ = guest.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		p := sess.Snapshot().Participants[hello.Participant]
		if p != nil && p.State == domain.StateLeft {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("guest state after disconnect = %v", p)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestJoinRefused(t *testing.T) {
	t.Parallel()
	sess := newSession(t, domain.Features{})
	srv := newServer(t, sess, Options{})

	host := dial(t, srv, "host")
	readUntil(t, host, func(f frame) bool { return f.Type == "welcome" })
	send(t, host, map[string]any{"type": "start", "id": "1"})
	if res := send(t, host, map[string]any{"type": "lock", "id": "2"}); !res.OK {
		t.Fatalf("lock failed: %+v", res.Error)
	}

	late := dial(t, srv, "late")
	res := readUntil(t, late, func(f frame) bool { return f.Type == "result" })
	if res.OK || res.Command != "join" || res.Error.Code != domain.CodeStateConflict {
		t.Fatalf("join while locked = %+v", res)
	}
}

func TestReconnectResumes(t *testing.T) {
	t.Parallel()
	sess := newSession(t, domain.Features{})
	srv := newServer(t, sess, Options{})

	first := dial(t, srv, "host")
	hello := readUntil(t, first, func(f frame) bool { return f.Type == "welcome" })
	oldPeer := sess.Snapshot().Participants[hello.Participant].PeerID

	second := dial(t, srv, "host")
	again := readUntil(t, second, func(f frame) bool { return f.Type == "welcome" })
	if again.Participant != hello.Participant {
		t.Fatalf("reconnect participant = %s, want %s", again.Participant, hello.Participant)
	}

	// The replaced socket is closed by the server.
	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var f frame
		if err := first.ReadJSON(&f); err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				t.Fatal("replaced socket was not closed")
			}
			break
		}
	}

	time.Sleep(100 * time.Millisecond)
	p := sess.Snapshot().Participants[hello.Participant]
	if p == nil || !p.Live() {
		t.Fatalf("participant after old socket dropped = %+v", p)
	}
	if p.PeerID == oldPeer {
		t.Fatal("peer id was not renewed")
	}
	if res := send(t, second, map[string]any{"type": "start", "id": "1"}); !res.OK {
		t.Fatalf("start on resumed socket: %+v", res.Error)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	sess := newSession(t, domain.Features{})
	srv := newServer(t, sess, Options{CommandsPerSecond: 0.001, CommandBurst: 1})
	ws := dial(t, srv, "host")
	readUntil(t, ws, func(f frame) bool { return f.Type == "welcome" })

	if res := send(t, ws, map[string]any{"type": "ping", "id": "1"}); !res.OK {
		t.Fatalf("first ping = %+v", res)
	}
	res := send(t, ws, map[string]any{"type": "ping", "id": "2"})
	if res.OK || res.Error.Code != domain.CodeCapacityExceeded {
		t.Fatalf("second ping = %+v", res)
	}
}

func TestFailure(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		err     error
		code    domain.Code
		message string
	}{
		{"typed", domain.Errorf(domain.CodeResourceBusy, "scope held"), domain.CodeResourceBusy, "scope held"},
		{"wrapped", fmt.Errorf("ctx: %w", domain.Errorf(domain.CodeTimeout, "slow")), domain.CodeTimeout, "slow"},
		{"plain", errors.New("boom"), domain.CodeUnknown, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := failure("cmd", "7", tt.err)
			if res.OK || res.Error.Code != tt.code || res.Error.Message != tt.message {
				t.Fatalf("failure = %+v / %+v", res, res.Error)
			}
			b, err := json.Marshal(res)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(b), `"type":"result"`) {
				t.Fatalf("encoded failure = %s", b)
			}
		})
	}
}

func TestEveryCommandHasAHandler(t *testing.T) {
	t.Parallel()
	for _, name := range []string{
		"start", "lock", "unlock", "end", "cancel", "transfer_host",
		"admit", "admit_all", "deny", "remove", "leave", "make_cohost", "revoke_cohost", "rename",
		"set_mute", "set_video", "mute_other", "mute_all", "raise_hand", "lower_hand", "lower_all_hands",
		"start_share", "stop_share", "create_rooms", "assign_room", "broadcast_rooms", "close_room", "close_all_rooms",
		"start_recording", "pause_recording", "resume_recording", "stop_recording", "grant_recording", "revoke_recording",
		"post_chat", "delete_chat", "draw", "clear_whiteboard", "offer", "answer", "candidate",
	} {
		if _, ok := commands[name]; !ok {
			t.Errorf("no handler for %q", name)
		}
	}
}

type chanFeed struct {
	seq    uint64
	events chan json.RawMessage
	err    error
}

func (f *chanFeed) LastSeq(context.Context, domain.ConferenceID) (uint64, error) {
	return f.seq, f.err
}

func (f *chanFeed) Follow(context.Context, domain.ConferenceID) (<-chan json.RawMessage, error) {
	return f.events, f.err
}

func followServer(t *testing.T, feed *chanFeed) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctl := NewSignalWSController(Options{})
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		ctl.HandleFollow(context.Background(), c, feed, "conf-ws")
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestFollowStreamsMirroredEvents(t *testing.T) {
	t.Parallel()
	feed := &chanFeed{seq: 7, events: make(chan json.RawMessage, 1)}
	ws := dial(t, followServer(t, feed), "observer")

	hello := readUntil(t, ws, func(f frame) bool { return f.Type == "follow" })
	if hello.LastSeq != 7 {
		t.Fatalf("last_seq = %d, want 7", hello.LastSeq)
	}

	raw, _ := json.Marshal(domain.Event{ConferenceID: "conf-ws", Seq: 8, Type: domain.EventHandRaiseQueueChanged})
	feed.events <- raw
	ev := readUntil(t, ws, func(f frame) bool { return f.Type == "event" })
	if ev.Event.Seq != 8 || ev.Event.Type != domain.EventHandRaiseQueueChanged {
		t.Fatalf("mirrored event = %+v", ev.Event)
	}

	close(feed.events)
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f frame
	err := ws.ReadJSON(&f)
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("read after stream end = %v, want normal close", err)
	}
}

func TestFollowFeedDown(t *testing.T) {
	t.Parallel()
	ws := dial(t, followServer(t, &chanFeed{err: errors.New("redis down")}), "observer")
	res := readUntil(t, ws, func(f frame) bool { return f.Type == "result" })
	if res.OK || res.Command != "follow" || res.Error.Code != domain.CodeUnavailable {
		t.Fatalf("follow with feed down = %+v", res)
	}
}
