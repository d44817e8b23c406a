// Package calendar is the read-only calendar collaborator. Events come from a
// YAML fixture file or are registered in memory.
package calendar

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type file struct {
	Events []core.CalendarEvent `yaml:"events"`
}

// Static serves a fixed set of events by id.
type Static struct {
	mu     sync.RWMutex
	events map[string]core.CalendarEvent
}

var _ core.Calendar = (*Static)(nil)

func NewStatic(events ...core.CalendarEvent) *Static {
	s := &Static{events: make(map[string]core.CalendarEvent, len(events))}
	for _, ev := range events {
		s.events[ev.ID] = ev
	}
	return s
}

// Parse decodes a calendar document:
//
//	events:
//	  - id: weekly-sync
//	    title: Weekly sync
//	    host: alice
//	    start: 2026-03-02T10:00:00Z
//	    end: 2026-03-02T11:00:00Z
//	    invitees: [bob, carol]
//	    features: {waiting_room: true, chat: true}
func Parse(data []byte) (*Static, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}
	seen := make(map[string]bool, len(f.Events))
	for i, ev := range f.Events {
		if ev.ID == "" {
			return nil, fmt.Errorf("calendar event #%d has no id", i)
		}
		if seen[ev.ID] {
			return nil, fmt.Errorf("duplicate calendar event %q", ev.ID)
		}
		seen[ev.ID] = true
		if !ev.Start.IsZero() && !ev.End.IsZero() && !ev.End.After(ev.Start) {
			return nil, fmt.Errorf("calendar event %q ends before it starts", ev.ID)
		}
	}
	return NewStatic(f.Events...), nil
}

// Load reads a calendar document from path.
func Load(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calendar: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "calendar").Str("path", path).Int("events", len(s.events)).Msg("calendar loaded")
	return s, nil
}

func (s *Static) Event(ctx context.Context, id string) (core.CalendarEvent, error) {
	if err := ctx.Err(); err != nil {
		return core.CalendarEvent{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return core.CalendarEvent{}, domain.Errorf(domain.CodeNotFound, "calendar event %q not found", id)
	}
	return ev, nil
}

// Add registers or replaces an event.
func (s *Static) Add(ev core.CalendarEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ID] = ev
}
