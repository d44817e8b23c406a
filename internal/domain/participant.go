package domain

import (
	"time"

	"github.com/google/uuid"
)

type (
	ParticipantID string
	PeerID        string
)

type Role string

const (
	RoleHost     Role = "host"
	RoleCoHost   Role = "cohost"
	RoleAttendee Role = "attendee"
)

type ParticipantState string

const (
	StateWaiting  ParticipantState = "waiting"
	StateAdmitted ParticipantState = "admitted"
	StateActive   ParticipantState = "active"
	StateLeft     ParticipantState = "left"
	StateRemoved  ParticipantState = "removed"
)

// Terminal reports whether no further state change is possible.
func (s ParticipantState) Terminal() bool {
	return s == StateLeft || s == StateRemoved
}

// Participant is one connection of a user to a conference.
// Cross references (conference, room) are ids only.
type Participant struct {
	ID           ParticipantID    `json:"id"`
	ConferenceID ConferenceID     `json:"conference_id"`
	UserID       UserID           `json:"user_id"`
	DisplayName  string           `json:"display_name"`
	Guest        bool             `json:"guest"`
	PeerID       PeerID           `json:"peer_id"`
	Role         Role             `json:"role"`
	State        ParticipantState `json:"state"`
	AudioMuted   bool             `json:"audio_muted"`
	VideoOff     bool             `json:"video_off"`
	HandRaised   bool             `json:"hand_raised"`
	Sharing      bool             `json:"is_screen_sharing"`
	ShareScope   Scope            `json:"share_scope,omitempty"`
	RoomID       RoomID           `json:"breakout_room_id,omitempty"`
	JoinedAt     time.Time        `json:"joined_at"`
	ActiveAt     time.Time        `json:"active_at,omitzero"`
	CoHostSince  time.Time        `json:"cohost_since,omitzero"`
	LeftAt       time.Time        `json:"left_at,omitzero"`
}

// NewParticipant builds a participant with fresh participant and peer ids.
func NewParticipant(conf ConferenceID, who Identity, role Role, at time.Time) *Participant {
	return &Participant{
		ID:           ParticipantID(uuid.NewString()),
		ConferenceID: conf,
		UserID:       who.UserID,
		DisplayName:  who.DisplayName,
		Guest:        who.Guest,
		PeerID:       NewPeerID(),
		Role:         role,
		JoinedAt:     at,
	}
}

// NewPeerID returns a fresh media session id.
func NewPeerID() PeerID { return PeerID(uuid.NewString()) }

// Live reports whether the participant still belongs to the conference.
func (p *Participant) Live() bool { return !p.State.Terminal() }

// Active reports whether the participant is in the meeting proper.
func (p *Participant) Active() bool { return p.State == StateActive }

// Elevated reports Host or CoHost.
func (p *Participant) Elevated() bool { return p.Role == RoleHost || p.Role == RoleCoHost }

// Scope returns the screen-share scope the participant currently sits in.
func (p *Participant) Scope() Scope { return Scope(p.RoomID) }

func (p *Participant) activate(at time.Time) {
	p.State = StateActive
	p.ActiveAt = at
}
