package app

import (
	"context"

	"github.com/dkeye/Meet/internal/domain"
)

// StartScreenShare grants scope to the caller. Each scope (main room or one
// open breakout room) has at most one presenter; scopes are independent.
func (s *Session) StartScreenShare(ctx context.Context, who domain.Identity, scope domain.Scope) (*domain.Conference, error) {
	return s.do(ctx, "start_share", who, false, func(tx *txn) error {
		if err := tx.can(ActParticipate); err != nil {
			return err
		}
		c := tx.conf
		p := tx.actor.Participant
		if scope != domain.MainScope {
			r, err := c.Room(domain.RoomID(scope))
			if err != nil {
				return err
			}
			if !r.Open() {
				return domain.Errorf(domain.CodeStateConflict, "breakout room %s is closed", r.ID)
			}
		}
		if p.Scope() != scope {
			return domain.Errorf(domain.CodePermissionDenied, "participant %s is not in scope %q", p.ID, scope)
		}
		if holder, ok := c.Presenter(scope); ok {
			if holder.ID == p.ID {
				return nil
			}
			return domain.Errorf(domain.CodeResourceBusy, "scope %q is held by %s", scope, holder.ID)
		}
		tx.releaseShare(p)
		p.Sharing = true
		p.ShareScope = scope
		tx.emit(domain.EventScreenShareStarted, domain.SharePayload{ParticipantID: p.ID, Scope: scope})
		return nil
	})
}

// StopScreenShare releases target's scope. An empty target means the
// caller; stopping someone else needs Host or CoHost.
func (s *Session) StopScreenShare(ctx context.Context, who domain.Identity, target domain.ParticipantID) (*domain.Conference, error) {
	return s.do(ctx, "stop_share", who, false, func(tx *txn) error {
		if err := tx.can(ActParticipate); err != nil {
			return err
		}
		p := tx.actor.Participant
		if target != "" && target != p.ID {
			if err := tx.can(ActModerate); err != nil {
				return err
			}
			var err error
			if p, err = tx.conf.Participant(target); err != nil {
				return err
			}
		}
		tx.releaseShare(p)
		return nil
	})
}

func (tx *txn) releaseShare(p *domain.Participant) {
	if scope, ok := tx.conf.ReleaseShare(p); ok {
		tx.emit(domain.EventScreenShareStopped, domain.SharePayload{ParticipantID: p.ID, Scope: scope})
	}
}
