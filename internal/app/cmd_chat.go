package app

import (
	"context"
	"strings"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/google/uuid"
)

const maxStrokeLen = 64 << 10

func (s *Session) chatContent(raw string) (string, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return "", domain.Errorf(domain.CodeInvalidArgument, "empty message")
	}
	if len(content) > s.cfg.MaxChatLength {
		return "", domain.Errorf(domain.CodeInvalidArgument, "message longer than %d bytes", s.cfg.MaxChatLength)
	}
	return content, nil
}

// roomAudience is the room's members plus every active Host/CoHost.
func (tx *txn) roomAudience(r *domain.BreakoutRoom) []domain.ParticipantID {
	out := append([]domain.ParticipantID{}, r.Members...)
	for _, p := range tx.conf.Sorted(func(p *domain.Participant) bool { return p.Active() && p.Elevated() }) {
		if !r.Has(p.ID) {
			out = append(out, p.ID)
		}
	}
	return out
}

func (tx *txn) postChat(sender *domain.Participant, content string, room *domain.BreakoutRoom) {
	msg := domain.ChatMessage{
		ID:           domain.MessageID(uuid.NewString()),
		ConferenceID: tx.conf.ID,
		SenderID:     sender.ID,
		Content:      content,
		SentAt:       tx.now,
	}
	var audience []domain.ParticipantID
	if room != nil {
		msg.TargetRoom = room.ID
		audience = tx.roomAudience(room)
	}
	tx.conf.Chat = append(tx.conf.Chat, msg)
	tx.emit(domain.EventChatMessagePosted, domain.ChatPayload{Message: msg}, audience...)
}

// PostChat appends a message to the conference chat, or to one breakout
// room when room is set.
func (s *Session) PostChat(ctx context.Context, who domain.Identity, message string, room domain.RoomID) (*domain.Conference, error) {
	return s.do(ctx, "post_chat", who, false, func(tx *txn) error {
		if err := tx.can(ActParticipate); err != nil {
			return err
		}
		if !tx.conf.Features.Chat {
			return domain.Errorf(domain.CodeStateConflict, "chat is disabled for this conference")
		}
		content, err := s.chatContent(message)
		if err != nil {
			return err
		}
		p := tx.actor.Participant
		var r *domain.BreakoutRoom
		if room != "" {
			if r, err = tx.conf.Room(room); err != nil {
				return err
			}
			if !r.Open() {
				return domain.Errorf(domain.CodeStateConflict, "breakout room %s is closed", r.ID)
			}
			if !r.Has(p.ID) && !p.Elevated() {
				return domain.Errorf(domain.CodePermissionDenied, "participant %s is not in room %s", p.ID, r.ID)
			}
		}
		tx.postChat(p, content, r)
		return nil
	})
}

// DeleteChat soft-deletes a message: the content goes, the id and its
// position stay.
func (s *Session) DeleteChat(ctx context.Context, who domain.Identity, id domain.MessageID) (*domain.Conference, error) {
	return s.do(ctx, "delete_chat", who, false, func(tx *txn) error {
		if err := tx.can(ActParticipate); err != nil {
			return err
		}
		msg, err := tx.conf.ChatMessage(id)
		if err != nil {
			return err
		}
		if msg.SenderID != tx.actor.Participant.ID {
			if err := tx.can(ActModerate); err != nil {
				return err
			}
		}
		if msg.Deleted {
			return nil
		}
		msg.Deleted = true
		msg.Content = ""
		var audience []domain.ParticipantID
		if msg.TargetRoom != "" {
			if r, ok := tx.conf.Rooms[msg.TargetRoom]; ok {
				audience = tx.roomAudience(r)
			}
		}
		tx.emit(domain.EventChatMessageDeleted, domain.ChatPayload{Message: *msg}, audience...)
		return nil
	})
}

// DrawWhiteboard appends an opaque stroke and bumps the board version.
func (s *Session) DrawWhiteboard(ctx context.Context, who domain.Identity, payload string) (*domain.Conference, error) {
	return s.do(ctx, "draw", who, false, func(tx *txn) error {
		if err := tx.can(ActParticipate); err != nil {
			return err
		}
		if !tx.conf.Features.Whiteboard {
			return domain.Errorf(domain.CodeStateConflict, "whiteboard is disabled for this conference")
		}
		if payload == "" || len(payload) > maxStrokeLen {
			return domain.Errorf(domain.CodeInvalidArgument, "stroke must be 1..%d bytes", maxStrokeLen)
		}
		wb := &tx.conf.Whiteboard
		stroke := domain.Stroke{SenderID: tx.actor.Participant.ID, Payload: payload, At: tx.now}
		wb.Strokes = append(wb.Strokes, stroke)
		wb.Version++
		tx.emit(domain.EventWhiteboardUpdated, domain.WhiteboardPayload{Version: wb.Version, Stroke: &stroke})
		return nil
	})
}

func (s *Session) ClearWhiteboard(ctx context.Context, who domain.Identity) (*domain.Conference, error) {
	return s.do(ctx, "clear_whiteboard", who, false, func(tx *txn) error {
		if err := tx.can(ActModerate); err != nil {
			return err
		}
		if !tx.conf.Features.Whiteboard {
			return domain.Errorf(domain.CodeStateConflict, "whiteboard is disabled for this conference")
		}
		wb := &tx.conf.Whiteboard
		wb.Strokes = nil
		wb.Version++
		tx.emit(domain.EventWhiteboardUpdated, domain.WhiteboardPayload{Version: wb.Version, Cleared: true})
		return nil
	})
}
