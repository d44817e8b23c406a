package domain

import (
	"crypto/rand"
	"math/big"
	"slices"
	"sort"
	"time"
)

type ConferenceID string

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusStarted   Status = "started"
	StatusLocked    Status = "locked"
	StatusEnded     Status = "ended"
	StatusCancelled Status = "cancelled"
)

// Terminal reports Ended or Cancelled.
func (s Status) Terminal() bool { return s == StatusEnded || s == StatusCancelled }

// Live reports Started or Locked.
func (s Status) Live() bool { return s == StatusStarted || s == StatusLocked }

type Features struct {
	WaitingRoom bool `json:"waiting_room" yaml:"waiting_room" mapstructure:"waiting_room"`
	Chat        bool `json:"chat" yaml:"chat" mapstructure:"chat"`
	Whiteboard  bool `json:"whiteboard" yaml:"whiteboard" mapstructure:"whiteboard"`
	Recording   bool `json:"recording" yaml:"recording" mapstructure:"recording"`
}

// Conference is the aggregate owned by one session actor. Everything it
// references is keyed by id.
type Conference struct {
	ID              ConferenceID `json:"id"`
	JoinCode        string       `json:"join_code"`
	Title           string       `json:"title"`
	HostUserID      UserID       `json:"host_user_id"`
	Status          Status       `json:"status"`
	Features        Features     `json:"features"`
	CalendarEventID string       `json:"calendar_event_id,omitempty"`
	Invitees        []UserID     `json:"invitees,omitempty"`
	// AdHoc conferences start as soon as the host joins.
	AdHoc bool `json:"ad_hoc,omitempty"`

	ScheduledStart time.Time `json:"scheduled_start,omitzero"`
	ScheduledEnd   time.Time `json:"scheduled_end,omitzero"`
	StartedAt      time.Time `json:"started_at,omitzero"`
	EndedAt        time.Time `json:"ended_at,omitzero"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	Participants    map[ParticipantID]*Participant `json:"participants"`
	Rooms           map[RoomID]*BreakoutRoom       `json:"breakout_rooms"`
	Recording       Recording                      `json:"recording"`
	RecordingGrants []ParticipantID                `json:"recording_grants,omitempty"`
	Chat            []ChatMessage                  `json:"chat"`
	Whiteboard      Whiteboard                     `json:"whiteboard"`
	Hands           []ParticipantID                `json:"hand_queue"`

	// OthersActivated is set once anyone other than the host reached Active.
	OthersActivated bool   `json:"others_activated"`
	Seq             uint64 `json:"seq"`
}

// NewConference builds a Scheduled conference.
func NewConference(id ConferenceID, host UserID, features Features, at time.Time) *Conference {
	return &Conference{
		ID:           id,
		JoinCode:     NewJoinCode(),
		HostUserID:   host,
		Status:       StatusScheduled,
		Features:     features,
		CreatedAt:    at,
		UpdatedAt:    at,
		Participants: make(map[ParticipantID]*Participant),
		Rooms:        make(map[RoomID]*BreakoutRoom),
		Recording: Recording{
			ID:           RecordingID(string(id) + "-rec"),
			ConferenceID: id,
			Status:       RecordingNotStarted,
		},
	}
}

const joinCodeAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

// NewJoinCode returns an external-facing code shaped xxx-xxxx-xxx.
func NewJoinCode() string {
	const n = 10
	buf := make([]byte, 0, n+2)
	max := big.NewInt(int64(len(joinCodeAlphabet)))
	for i := 0; i < n; i++ {
		if i == 3 || i == 7 {
			buf = append(buf, '-')
		}
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("domain: crypto/rand unavailable: " + err.Error())
		}
		buf = append(buf, joinCodeAlphabet[v.Int64()])
	}
	return string(buf)
}

// Clone returns a deep copy. Published snapshots are clones and never mutated.
func (c *Conference) Clone() *Conference {
	out := *c
	out.Invitees = slices.Clone(c.Invitees)
	out.Participants = make(map[ParticipantID]*Participant, len(c.Participants))
	for id, p := range c.Participants {
		cp := *p
		out.Participants[id] = &cp
	}
	out.Rooms = make(map[RoomID]*BreakoutRoom, len(c.Rooms))
	for id, r := range c.Rooms {
		cr := *r
		cr.Members = slices.Clone(r.Members)
		out.Rooms[id] = &cr
	}
	out.Recording.Boundaries = slices.Clone(c.Recording.Boundaries)
	out.RecordingGrants = slices.Clone(c.RecordingGrants)
	out.Chat = slices.Clone(c.Chat)
	out.Whiteboard.Strokes = slices.Clone(c.Whiteboard.Strokes)
	out.Hands = slices.Clone(c.Hands)
	return &out
}

// Participant looks up a participant by id.
func (c *Conference) Participant(id ParticipantID) (*Participant, error) {
	p, ok := c.Participants[id]
	if !ok {
		return nil, Errorf(CodeNotFound, "participant %s", id)
	}
	return p, nil
}

// LiveParticipantOf returns the non-terminal participant for a user.
func (c *Conference) LiveParticipantOf(user UserID) (*Participant, bool) {
	for _, p := range c.Participants {
		if p.UserID == user && p.Live() {
			return p, true
		}
	}
	return nil, false
}

// WasRemoved reports whether the user has been removed from this conference.
func (c *Conference) WasRemoved(user UserID) bool {
	for _, p := range c.Participants {
		if p.UserID == user && p.State == StateRemoved {
			return true
		}
	}
	return false
}

// Host returns the current Host participant.
func (c *Conference) Host() (*Participant, bool) {
	for _, p := range c.Participants {
		if p.Role == RoleHost && p.Live() {
			return p, true
		}
	}
	return nil, false
}

// LiveCount counts non-terminal participants.
func (c *Conference) LiveCount() int {
	n := 0
	for _, p := range c.Participants {
		if p.Live() {
			n++
		}
	}
	return n
}

// Sorted returns participants matching keep ordered by join time then id.
func (c *Conference) Sorted(keep func(*Participant) bool) []*Participant {
	out := make([]*Participant, 0, len(c.Participants))
	for _, p := range c.Participants {
		if keep == nil || keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Room looks up a breakout room by id.
func (c *Conference) Room(id RoomID) (*BreakoutRoom, error) {
	r, ok := c.Rooms[id]
	if !ok {
		return nil, Errorf(CodeNotFound, "breakout room %s", id)
	}
	return r, nil
}

// OpenRooms returns open rooms ordered by creation.
func (c *Conference) OpenRooms() []*BreakoutRoom {
	out := make([]*BreakoutRoom, 0, len(c.Rooms))
	for _, r := range c.Rooms {
		if r.Open() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Presenter returns the participant holding scope.
func (c *Conference) Presenter(scope Scope) (*Participant, bool) {
	for _, p := range c.Participants {
		if p.Sharing && p.ShareScope == scope {
			return p, true
		}
	}
	return nil, false
}

// ReleaseShare stops p's screen share. It reports the released scope.
func (c *Conference) ReleaseShare(p *Participant) (Scope, bool) {
	if !p.Sharing {
		return MainScope, false
	}
	scope := p.ShareScope
	p.Sharing = false
	p.ShareScope = MainScope
	return scope, true
}

// Unassign takes p out of its breakout room, if any, and returns that room id.
func (c *Conference) Unassign(p *Participant) RoomID {
	prev := p.RoomID
	if prev == "" {
		return ""
	}
	if r, ok := c.Rooms[prev]; ok {
		r.remove(p.ID)
	}
	p.RoomID = ""
	return prev
}

// Assign moves p into room, leaving any prior room first.
func (c *Conference) Assign(p *Participant, room *BreakoutRoom) {
	c.Unassign(p)
	room.add(p.ID)
	p.RoomID = room.ID
}

// CloseRoom returns the room's members to the main room and closes it.
func (c *Conference) CloseRoom(r *BreakoutRoom, at time.Time) []ParticipantID {
	moved := slices.Clone(r.Members)
	for _, pid := range moved {
		if p, ok := c.Participants[pid]; ok {
			p.RoomID = ""
		}
	}
	r.Members = nil
	r.Status = RoomClosed
	r.ClosedAt = at
	return moved
}

// RaiseHand appends p to the queue when absent.
func (c *Conference) RaiseHand(p *Participant) bool {
	if slices.Contains(c.Hands, p.ID) {
		return false
	}
	c.Hands = append(c.Hands, p.ID)
	p.HandRaised = true
	return true
}

// LowerHand removes p from the queue.
func (c *Conference) LowerHand(p *Participant) bool {
	if !slices.Contains(c.Hands, p.ID) {
		return false
	}
	c.Hands = slices.DeleteFunc(c.Hands, func(id ParticipantID) bool { return id == p.ID })
	p.HandRaised = false
	return true
}

// Activate moves p to Active and tracks whether a non-host ever got in.
func (c *Conference) Activate(p *Participant, at time.Time) {
	p.activate(at)
	if p.UserID != c.HostUserID {
		c.OthersActivated = true
	}
}

// Detach performs the bookkeeping common to leaving and removal: share,
// room membership and hand are released, and the terminal state is set.
func (c *Conference) Detach(p *Participant, state ParticipantState, at time.Time) (releasedScope Scope, released bool, room RoomID) {
	releasedScope, released = c.ReleaseShare(p)
	room = c.Unassign(p)
	c.LowerHand(p)
	c.RevokeRecording(p.ID)
	p.State = state
	p.LeftAt = at
	return releasedScope, released, room
}

// MayRecord reports an explicit recording grant.
func (c *Conference) MayRecord(pid ParticipantID) bool {
	return slices.Contains(c.RecordingGrants, pid)
}

func (c *Conference) GrantRecording(pid ParticipantID) {
	if !c.MayRecord(pid) {
		c.RecordingGrants = append(c.RecordingGrants, pid)
	}
}

func (c *Conference) RevokeRecording(pid ParticipantID) {
	c.RecordingGrants = slices.DeleteFunc(c.RecordingGrants, func(id ParticipantID) bool { return id == pid })
}

// ChatMessage looks up a message by id.
func (c *Conference) ChatMessage(id MessageID) (*ChatMessage, error) {
	for i := range c.Chat {
		if c.Chat[i].ID == id {
			return &c.Chat[i], nil
		}
	}
	return nil, Errorf(CodeNotFound, "chat message %s", id)
}

// Validate checks the cross-cutting invariants that must hold after every
// committed command.
func (c *Conference) Validate() error {
	presenters := make(map[Scope]ParticipantID)
	hosts := 0
	for id, p := range c.Participants {
		if p.Role == RoleHost && p.Live() {
			hosts++
		}
		if !p.Sharing {
			continue
		}
		if !p.Active() {
			return Errorf(CodeUnknown, "invariant: inactive participant %s is sharing", id)
		}
		if other, ok := presenters[p.ShareScope]; ok {
			return Errorf(CodeUnknown, "invariant: scope %q shared by %s and %s", p.ShareScope, other, id)
		}
		presenters[p.ShareScope] = id
	}

	seen := make(map[ParticipantID]RoomID)
	for rid, r := range c.Rooms {
		if !r.Open() {
			if len(r.Members) > 0 {
				return Errorf(CodeUnknown, "invariant: closed room %s has members", rid)
			}
			continue
		}
		for _, pid := range r.Members {
			if prev, dup := seen[pid]; dup {
				return Errorf(CodeUnknown, "invariant: %s in rooms %s and %s", pid, prev, rid)
			}
			seen[pid] = rid
			p, ok := c.Participants[pid]
			if !ok || !p.Active() {
				return Errorf(CodeUnknown, "invariant: room %s holds non-active %s", rid, pid)
			}
			if p.RoomID != rid {
				return Errorf(CodeUnknown, "invariant: %s room mismatch", pid)
			}
		}
	}

	if c.Status.Live() && hosts != 1 {
		return Errorf(CodeUnknown, "invariant: %d hosts while %s", hosts, c.Status)
	}
	return nil
}
