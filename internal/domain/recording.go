package domain

import "time"

type RecordingID string

type RecordingStatus string

const (
	RecordingNotStarted RecordingStatus = "not_started"
	RecordingActive     RecordingStatus = "recording"
	RecordingPaused     RecordingStatus = "paused"
	RecordingStopped    RecordingStatus = "stopped"
)

// Boundary marks entry into Status at At.
type Boundary struct {
	At     time.Time       `json:"at"`
	Status RecordingStatus `json:"status"`
}

type Recording struct {
	ID           RecordingID     `json:"id"`
	ConferenceID ConferenceID    `json:"conference_id"`
	Status       RecordingStatus `json:"status"`
	Boundaries   []Boundary      `json:"boundaries"`
}

var recordingTransitions = map[RecordingStatus][]RecordingStatus{
	RecordingNotStarted: {RecordingActive},
	RecordingActive:     {RecordingPaused, RecordingStopped},
	RecordingPaused:     {RecordingActive, RecordingStopped},
}

// CanTransition reports whether from→to is a legal recorder move.
// Stopped has no outgoing edges.
func CanTransition(from, to RecordingStatus) bool {
	for _, next := range recordingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the recorder to `to` and appends the boundary.
func (r *Recording) Transition(to RecordingStatus, at time.Time) error {
	if !CanTransition(r.Status, to) {
		return Errorf(CodeStateConflict, "recording cannot move from %s to %s", r.Status, to)
	}
	r.Status = to
	r.Boundaries = append(r.Boundaries, Boundary{At: at, Status: to})
	return nil
}

// Duration sums the intervals spent in RecordingActive. An interval still open
// is measured up to now.
func (r *Recording) Duration(now time.Time) time.Duration {
	var total time.Duration
	var since time.Time
	recording := false
	for _, b := range r.Boundaries {
		if recording {
			total += b.At.Sub(since)
			recording = false
		}
		if b.Status == RecordingActive {
			recording = true
			since = b.At
		}
	}
	if recording && now.After(since) {
		total += now.Sub(since)
	}
	return total
}

// Terminal reports whether the recording is Stopped.
func (r *Recording) Terminal() bool { return r.Status == RecordingStopped }
