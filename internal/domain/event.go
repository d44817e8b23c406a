package domain

import "time"

type EventType string

const (
	EventConferenceStateChanged    EventType = "ConferenceStateChanged"
	EventParticipantJoined         EventType = "ParticipantJoined"
	EventParticipantLeft           EventType = "ParticipantLeft"
	EventParticipantAdmitted       EventType = "ParticipantAdmitted"
	EventParticipantRemoved        EventType = "ParticipantRemoved"
	EventParticipantUpdated        EventType = "ParticipantUpdated"
	EventScreenShareStarted        EventType = "ScreenShareStarted"
	EventScreenShareStopped        EventType = "ScreenShareStopped"
	EventRecordingStateChanged     EventType = "RecordingStateChanged"
	EventBreakoutAssignmentChanged EventType = "BreakoutAssignmentChanged"
	EventChatMessagePosted         EventType = "ChatMessagePosted"
	EventChatMessageDeleted        EventType = "ChatMessageDeleted"
	EventWhiteboardUpdated         EventType = "WhiteboardUpdated"
	EventHandRaiseQueueChanged     EventType = "HandRaiseQueueChanged"
	EventSignalRelayed             EventType = "SignalRelayed"
)

// Event is one committed change pushed to subscribers of a conference.
// Audience nil means every subscriber.
type Event struct {
	Seq          uint64          `json:"seq"`
	ConferenceID ConferenceID    `json:"conference_id"`
	Type         EventType       `json:"type"`
	At           time.Time       `json:"at"`
	Payload      any             `json:"payload,omitempty"`
	Audience     []ParticipantID `json:"-"`
	// Close lists participants whose subscriptions end after delivery;
	// CloseAll ends every subscription and tells clients to disconnect.
	Close    []ParticipantID `json:"-"`
	CloseAll bool            `json:"close_all,omitempty"`
}

type StatePayload struct {
	Status   Status `json:"status"`
	Previous Status `json:"previous"`
	Actor    UserID `json:"actor,omitempty"`
}

type ParticipantPayload struct {
	Participant Participant `json:"participant"`
	Reason      string      `json:"reason,omitempty"`
}

type SharePayload struct {
	ParticipantID ParticipantID `json:"participant_id"`
	Scope         Scope         `json:"scope"`
}

type RecordingPayload struct {
	Status   RecordingStatus `json:"status"`
	Duration time.Duration   `json:"duration_ns"`
}

type AssignmentPayload struct {
	ParticipantID ParticipantID  `json:"participant_id,omitempty"`
	From          RoomID         `json:"from,omitempty"`
	To            RoomID         `json:"to,omitempty"`
	Rooms         []BreakoutRoom `json:"rooms,omitempty"`
}

type ChatPayload struct {
	Message ChatMessage `json:"message"`
}

type WhiteboardPayload struct {
	Version uint64  `json:"version"`
	Stroke  *Stroke `json:"stroke,omitempty"`
	Cleared bool    `json:"cleared,omitempty"`
}

type HandsPayload struct {
	Queue []ParticipantID `json:"queue"`
}

type SignalPayload struct {
	From ParticipantID `json:"from"`
	Kind string        `json:"kind"`
	Data any           `json:"data"`
}
