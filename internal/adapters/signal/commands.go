package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/domain"
)

// request is the inbound envelope. Fields a command does not use are ignored.
type request struct {
	Type string `json:"type"`
	ID   string `json:"id"`

	Target      domain.ParticipantID    `json:"target"`
	Room        domain.RoomID           `json:"room"`
	Scope       domain.Scope            `json:"scope"`
	Muted       bool                    `json:"muted"`
	Off         bool                    `json:"off"`
	Name        string                  `json:"name"`
	Message     string                  `json:"message"`
	MessageID   domain.MessageID        `json:"message_id"`
	Payload     string                  `json:"payload"`
	Count       int                     `json:"count"`
	Strategy    domain.BreakoutStrategy `json:"strategy"`
	Names       []string                `json:"names"`
	ExcludeHost bool                    `json:"exclude_host"`
	Data        json.RawMessage         `json:"data"`
}

type errorBody struct {
	Code    domain.Code `json:"code"`
	Message string      `json:"message"`
}

type result struct {
	Type       string             `json:"type"`
	Command    string             `json:"command,omitempty"`
	ID         string             `json:"id,omitempty"`
	OK         bool               `json:"ok"`
	Conference *domain.Conference `json:"conference,omitempty"`
	Error      *errorBody         `json:"error,omitempty"`
}

func failure(command, id string, err error) result {
	body := &errorBody{Code: domain.CodeOf(err), Message: err.Error()}
	var e *domain.Error
	if errors.As(err, &e) {
		body.Message = e.Message
	}
	return result{Type: "result", Command: command, ID: id, Error: body}
}

type handler func(ctx context.Context, cl *client, req request) (*domain.Conference, error)

// noTarget wraps session commands that take only the caller.
func noTarget(fn func(*app.Session, context.Context, domain.Identity) (*domain.Conference, error)) handler {
	return func(ctx context.Context, cl *client, _ request) (*domain.Conference, error) {
		return fn(cl.sess, ctx, cl.who)
	}
}

// onTarget wraps session commands that act on another participant.
func onTarget(fn func(*app.Session, context.Context, domain.Identity, domain.ParticipantID) (*domain.Conference, error)) handler {
	return func(ctx context.Context, cl *client, req request) (*domain.Conference, error) {
		return fn(cl.sess, ctx, cl.who, req.Target)
	}
}

func relay(ctx context.Context, cl *client, req request) (*domain.Conference, error) {
	if err := cl.sess.Relay(ctx, cl.who, req.Target, req.Type, req.Data); err != nil {
		return nil, err
	}
	return nil, nil
}

var commands map[string]handler

func init() {
	commands = map[string]handler{
		"ping": func(context.Context, *client, request) (*domain.Conference, error) { return nil, nil },
		"state": func(_ context.Context, cl *client, _ request) (*domain.Conference, error) {
			return cl.sess.Snapshot(), nil
		},

		"start":         noTarget((*app.Session).Start),
		"lock":          noTarget((*app.Session).Lock),
		"unlock":        noTarget((*app.Session).Unlock),
		"end":           noTarget((*app.Session).End),
		"cancel":        noTarget((*app.Session).Cancel),
		"transfer_host": onTarget((*app.Session).TransferHost),

		"admit":         onTarget((*app.Session).AdmitFromWaitingRoom),
		"admit_all":     noTarget((*app.Session).AdmitAll),
		"deny":          onTarget((*app.Session).DenyFromWaitingRoom),
		"remove":        onTarget((*app.Session).Remove),
		"leave":         noTarget((*app.Session).Leave),
		"make_cohost":   onTarget((*app.Session).MakeCoHost),
		"revoke_cohost": onTarget((*app.Session).RevokeCoHost),
		"rename": func(ctx context.Context, cl *client, req request) (*domain.Conference, error) {
			return cl.sess.Rename(ctx, cl.who, req.Name)
		},

		"set_mute": func(ctx context.Context, cl *client, req request) (*domain.Conference, error) {
			return cl.sess.SetMute(ctx, cl.who, req.Muted)
		},
		"set_video": func(ctx context.Context, cl *client, req request) (*domain.Conference, error) {
			return cl.sess.SetVideo(ctx, cl.who, req.Off)
		},
		"mute_other":      onTarget((*app.Session).MuteOther),
		"mute_all":        noTarget((*app.Session).MuteAll),
		"raise_hand":      noTarget((*app.Session).RaiseHand),
		"lower_hand":      onTarget((*app.Session).LowerHand),
		"lower_all_hands": noTarget((*app.Session).LowerAllHands),

		"start_share": func(ctx context.Context, cl *client, req request) (*domain.Conference, error) {
			return cl.sess.StartScreenShare(ctx, cl.who, req.Scope)
		},
		"stop_share": onTarget((*app.Session).StopScreenShare),

		"create_rooms": func(ctx context.Context, cl *client, req request) (*domain.Conference, error) {
			return cl.sess.CreateRooms(ctx, cl.who, app.CreateRoomsRequest{
				Count:       req.Count,
				Strategy:    req.Strategy,
				Names:       req.Names,
				ExcludeHost: req.ExcludeHost,
			})
		},
		"assign_room": func(ctx context.Context, cl *client, req request) (*domain.Conference, error) {
			return cl.sess.AssignToRoom(ctx, cl.who, req.Target, req.Room)
		},
		"broadcast_rooms": func(ctx context.Context, cl *client, req request) (*domain.Conference, error) {
			return cl.sess.BroadcastToRooms(ctx, cl.who, req.Message)
		},
		"close_room": func(ctx context.Context, cl *client, req request) (*domain.Conference, error) {
			return cl.sess.CloseRoom(ctx, cl.who, req.Room)
		},
		"close_all_rooms": noTarget((*app.Session).CloseAll),

		"start_recording":  noTarget((*app.Session).StartRecording),
		"pause_recording":  noTarget((*app.Session).PauseRecording),
		"resume_recording": noTarget((*app.Session).ResumeRecording),
		"stop_recording":   noTarget((*app.Session).StopRecording),
		"grant_recording":  onTarget((*app.Session).GrantRecording),
		"revoke_recording": onTarget((*app.Session).RevokeRecording),

		"post_chat": func(ctx context.Context, cl *client, req request) (*domain.Conference, error) {
			return cl.sess.PostChat(ctx, cl.who, req.Message, req.Room)
		},
		"delete_chat": func(ctx context.Context, cl *client, req request) (*domain.Conference, error) {
			return cl.sess.DeleteChat(ctx, cl.who, req.MessageID)
		},
		"draw": func(ctx context.Context, cl *client, req request) (*domain.Conference, error) {
			return cl.sess.DrawWhiteboard(ctx, cl.who, req.Payload)
		},
		"clear_whiteboard": noTarget((*app.Session).ClearWhiteboard),

		app.SignalOffer:     relay,
		app.SignalAnswer:    relay,
		app.SignalCandidate: relay,
	}
}
