// Package core declares the collaborators the engine consumes or produces.
// Implementations live in adapters and storage packages.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Meet/internal/domain"
)

// Frame is a raw encoded payload for a client transport.
type Frame []byte

// SessionID identifies one browser/client across reconnects.
type SessionID string

// SignalConnection abstracts a client messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

var ErrRecordNotFound = errors.New("record not found")

// Store is the durable-storage collaborator. Save must be atomic per conference.
type Store interface {
	Save(ctx context.Context, conf *domain.Conference) error
	Load(ctx context.Context, id domain.ConferenceID) (*domain.Conference, error)
	// LoadActive returns every conference that must survive a restart.
	LoadActive(ctx context.Context) ([]*domain.Conference, error)
	Delete(ctx context.Context, id domain.ConferenceID) error
}

// Directory resolves the caller's identity and static entitlements.
type Directory interface {
	Resolve(ctx context.Context, sid SessionID, displayName string) (domain.Identity, error)
}

// CalendarEvent is the read-only view of a scheduled meeting.
type CalendarEvent struct {
	ID       string          `yaml:"id" json:"id"`
	Title    string          `yaml:"title" json:"title"`
	Host     domain.UserID   `yaml:"host" json:"host"`
	Start    time.Time       `yaml:"start" json:"start"`
	End      time.Time       `yaml:"end" json:"end"`
	Invitees []domain.UserID `yaml:"invitees" json:"invitees"`
	Features domain.Features `yaml:"features" json:"features"`
}

// Calendar supplies time windows and invitee lists.
type Calendar interface {
	Event(ctx context.Context, id string) (CalendarEvent, error)
}

// Notifier tells calendar invitees about a cancelled conference.
type Notifier interface {
	ConferenceCancelled(ctx context.Context, conf *domain.Conference) error
}

// EventSink receives every committed event after local fan-out.
type EventSink interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// EventFeed replays the mirrored event stream of a conference to observers
// that never join it.
type EventFeed interface {
	// LastSeq is the sequence number of the last mirrored event, 0 when none.
	LastSeq(ctx context.Context, id domain.ConferenceID) (uint64, error)
	// Follow delivers events published from now on until ctx is done.
	Follow(ctx context.Context, id domain.ConferenceID) (<-chan json.RawMessage, error)
}
