package app

import (
	"context"
	"slices"
	"strings"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// StaticDirectory treats the client token as the user id. Users listed in
// Recorders carry the recording entitlement.
type StaticDirectory struct {
	Recorders []string
}

func (d StaticDirectory) Resolve(_ context.Context, sid core.SessionID, displayName string) (domain.Identity, error) {
	if strings.TrimSpace(string(sid)) == "" {
		return domain.Identity{}, domain.Errorf(domain.CodePermissionDenied, "missing client token")
	}
	name := "guest"
	if displayName != "" {
		n, err := domain.NormalizeDisplayName(displayName)
		if err != nil {
			return domain.Identity{}, domain.Errorf(domain.CodeInvalidArgument, "%v", err)
		}
		name = n
	}
	return domain.Identity{
		UserID:      domain.UserID(sid),
		DisplayName: name,
		Guest:       displayName == "",
		CanRecord:   slices.Contains(d.Recorders, string(sid)),
	}, nil
}

// LogNotifier records cancellations in the log. Real delivery belongs to
// whatever owns the calendar.
type LogNotifier struct{}

func (LogNotifier) ConferenceCancelled(_ context.Context, conf *domain.Conference) error {
	log.Info().
		Str("module", "app.notifier").
		Str("conference", string(conf.ID)).
		Str("calendar_event", conf.CalendarEventID).
		Int("invitees", len(conf.Invitees)).
		Msg("conference cancelled, notifying invitees")
	return nil
}
