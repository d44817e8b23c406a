package domain

import "time"

type MessageID string

type ChatMessage struct {
	ID           MessageID     `json:"id"`
	ConferenceID ConferenceID  `json:"conference_id"`
	SenderID     ParticipantID `json:"sender_id"`
	Content      string        `json:"content"`
	SentAt       time.Time     `json:"sent_at"`
	TargetRoom   RoomID        `json:"target_room,omitempty"`
	Deleted      bool          `json:"deleted"`
}

// Stroke is an opaque whiteboard operation; the engine only orders them.
type Stroke struct {
	SenderID ParticipantID `json:"sender_id"`
	Payload  string        `json:"payload"`
	At       time.Time     `json:"at"`
}

type Whiteboard struct {
	Version uint64   `json:"version"`
	Strokes []Stroke `json:"strokes"`
}
