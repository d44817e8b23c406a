package domain

import (
	"slices"
	"time"
)

type RoomID string

// Scope identifies where the single-presenter rule applies: MainScope or an
// open breakout room id.
type Scope string

const MainScope Scope = ""

type RoomStatus string

const (
	RoomOpen   RoomStatus = "open"
	RoomClosed RoomStatus = "closed"
)

type BreakoutStrategy string

const (
	StrategyManual        BreakoutStrategy = "manual"
	StrategyAutomaticEven BreakoutStrategy = "automatic_even"
)

type BreakoutRoom struct {
	ID           RoomID          `json:"id"`
	ConferenceID ConferenceID    `json:"conference_id"`
	Number       int             `json:"number"`
	Name         string          `json:"name"`
	Status       RoomStatus      `json:"status"`
	Members      []ParticipantID `json:"members"`
	CreatedAt    time.Time       `json:"created_at"`
	ClosedAt     time.Time       `json:"closed_at,omitzero"`
}

func (r *BreakoutRoom) Open() bool { return r.Status == RoomOpen }

func (r *BreakoutRoom) Has(pid ParticipantID) bool { return slices.Contains(r.Members, pid) }

func (r *BreakoutRoom) add(pid ParticipantID) {
	if !r.Has(pid) {
		r.Members = append(r.Members, pid)
	}
}

func (r *BreakoutRoom) remove(pid ParticipantID) {
	r.Members = slices.DeleteFunc(r.Members, func(m ParticipantID) bool { return m == pid })
}

// EvenSplit deals ids round-robin over n buckets; bucket sizes differ by at most one.
func EvenSplit(ids []ParticipantID, n int) [][]ParticipantID {
	if n <= 0 {
		return nil
	}
	out := make([][]ParticipantID, n)
	for i, id := range ids {
		out[i%n] = append(out[i%n], id)
	}
	return out
}
