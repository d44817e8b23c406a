package app

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/google/uuid"
)

// CreateRoomsRequest describes a batch of breakout rooms.
type CreateRoomsRequest struct {
	Count       int
	Strategy    domain.BreakoutStrategy
	Names       []string
	ExcludeHost bool
}

func (tx *txn) emitRooms() {
	rooms := make([]domain.BreakoutRoom, 0, len(tx.conf.Rooms))
	for _, r := range tx.conf.Rooms {
		cr := *r
		rooms = append(rooms, cr)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Number < rooms[j].Number })
	tx.emit(domain.EventBreakoutAssignmentChanged, domain.AssignmentPayload{Rooms: rooms})
}

// moveTo puts p into room (nil means the main room). A presenter moving
// out of its scope loses the share.
func (tx *txn) moveTo(p *domain.Participant, room *domain.BreakoutRoom) {
	to := domain.RoomID("")
	if room != nil {
		to = room.ID
	}
	if p.RoomID == to {
		return
	}
	tx.releaseShare(p)
	if room == nil {
		tx.conf.Unassign(p)
		return
	}
	tx.conf.Assign(p, room)
}

func (tx *txn) closeRoom(r *domain.BreakoutRoom) {
	if holder, ok := tx.conf.Presenter(domain.Scope(r.ID)); ok {
		tx.releaseShare(holder)
	}
	tx.conf.CloseRoom(r, tx.now)
}

// CreateRooms opens count new rooms. AutomaticEven deals every unassigned
// Active participant round-robin over the new rooms.
func (s *Session) CreateRooms(ctx context.Context, who domain.Identity, req CreateRoomsRequest) (*domain.Conference, error) {
	return s.do(ctx, "create_rooms", who, true, func(tx *txn) error {
		if err := tx.can(ActBreakout); err != nil {
			return err
		}
		if req.Count < 1 {
			return domain.Errorf(domain.CodeInvalidArgument, "room count must be at least 1, got %d", req.Count)
		}
		switch req.Strategy {
		case "", domain.StrategyManual, domain.StrategyAutomaticEven:
		default:
			return domain.Errorf(domain.CodeInvalidArgument, "unknown strategy %q", req.Strategy)
		}
		c := tx.conf
		if s.cfg.MaxRooms > 0 && len(c.OpenRooms())+req.Count > s.cfg.MaxRooms {
			return domain.Errorf(domain.CodeCapacityExceeded, "at most %d open breakout rooms", s.cfg.MaxRooms)
		}

		created := make([]*domain.BreakoutRoom, 0, req.Count)
		base := len(c.Rooms)
		for i := 0; i < req.Count; i++ {
			name := fmt.Sprintf("Room %d", base+i+1)
			if i < len(req.Names) && strings.TrimSpace(req.Names[i]) != "" {
				name = strings.TrimSpace(req.Names[i])
			}
			r := &domain.BreakoutRoom{
				ID:           domain.RoomID(uuid.NewString()),
				ConferenceID: c.ID,
				Number:       base + i + 1,
				Name:         name,
				Status:       domain.RoomOpen,
				CreatedAt:    tx.now,
			}
			c.Rooms[r.ID] = r
			created = append(created, r)
		}

		if req.Strategy == domain.StrategyAutomaticEven {
			pool := make([]*domain.Participant, 0, len(c.Participants))
			for _, p := range c.Participants {
				if !p.Active() || p.RoomID != "" {
					continue
				}
				if req.ExcludeHost && p.Role == domain.RoleHost {
					continue
				}
				pool = append(pool, p)
			}
			sort.Slice(pool, func(i, j int) bool {
				if !pool[i].ActiveAt.Equal(pool[j].ActiveAt) {
					return pool[i].ActiveAt.Before(pool[j].ActiveAt)
				}
				return pool[i].ID < pool[j].ID
			})
			ids := make([]domain.ParticipantID, len(pool))
			for i, p := range pool {
				ids[i] = p.ID
			}
			for i, bucket := range domain.EvenSplit(ids, len(created)) {
				for _, pid := range bucket {
					tx.moveTo(c.Participants[pid], created[i])
				}
			}
		}
		tx.emitRooms()
		s.logger.Info().Int("rooms", req.Count).Str("strategy", string(req.Strategy)).Msg("breakout rooms created")
		return nil
	})
}

// AssignToRoom moves target into room, leaving any prior room first. An
// empty room id sends the participant back to the main room.
func (s *Session) AssignToRoom(ctx context.Context, who domain.Identity, target domain.ParticipantID, room domain.RoomID) (*domain.Conference, error) {
	return s.do(ctx, "assign_room", who, true, func(tx *txn) error {
		if err := tx.can(ActBreakout); err != nil {
			return err
		}
		c := tx.conf
		p, err := c.Participant(target)
		if err != nil {
			return err
		}
		if !p.Active() {
			return domain.Errorf(domain.CodeStateConflict, "participant %s is %s", p.ID, p.State)
		}
		var r *domain.BreakoutRoom
		if room != "" {
			if r, err = c.Room(room); err != nil {
				return err
			}
			if !r.Open() {
				return domain.Errorf(domain.CodeStateConflict, "breakout room %s is closed", r.ID)
			}
		}
		from := p.RoomID
		if from == room {
			return nil
		}
		tx.moveTo(p, r)
		tx.emit(domain.EventBreakoutAssignmentChanged, domain.AssignmentPayload{ParticipantID: p.ID, From: from, To: room})
		return nil
	})
}

// BroadcastToRooms posts message into every open room.
func (s *Session) BroadcastToRooms(ctx context.Context, who domain.Identity, message string) (*domain.Conference, error) {
	return s.do(ctx, "broadcast_rooms", who, true, func(tx *txn) error {
		if err := tx.can(ActBroadcast); err != nil {
			return err
		}
		content, err := s.chatContent(message)
		if err != nil {
			return err
		}
		rooms := tx.conf.OpenRooms()
		if len(rooms) == 0 {
			return domain.Errorf(domain.CodeStateConflict, "no open breakout rooms")
		}
		for _, r := range rooms {
			tx.postChat(tx.actor.Participant, content, r)
		}
		return nil
	})
}

// CloseRoom sends the room's members back to the main room. Closed rooms
// are never reopened.
func (s *Session) CloseRoom(ctx context.Context, who domain.Identity, room domain.RoomID) (*domain.Conference, error) {
	return s.do(ctx, "close_room", who, true, func(tx *txn) error {
		if err := tx.can(ActBreakout); err != nil {
			return err
		}
		r, err := tx.conf.Room(room)
		if err != nil {
			return err
		}
		if !r.Open() {
			return domain.Errorf(domain.CodeStateConflict, "breakout room %s is already closed", r.ID)
		}
		tx.closeRoom(r)
		tx.emitRooms()
		return nil
	})
}

// CloseAll closes every open room.
func (s *Session) CloseAll(ctx context.Context, who domain.Identity) (*domain.Conference, error) {
	return s.do(ctx, "close_all_rooms", who, true, func(tx *txn) error {
		if err := tx.can(ActBreakout); err != nil {
			return err
		}
		rooms := tx.conf.OpenRooms()
		if len(rooms) == 0 {
			return nil
		}
		for _, r := range rooms {
			tx.closeRoom(r)
		}
		tx.emitRooms()
		return nil
	})
}
