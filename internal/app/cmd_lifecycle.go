package app

import (
	"context"
	"time"

	"github.com/dkeye/Meet/internal/domain"
)

func (tx *txn) setStatus(to domain.Status) *domain.Event {
	prev := tx.conf.Status
	tx.conf.Status = to
	return tx.emit(domain.EventConferenceStateChanged, domain.StatePayload{
		Status:   to,
		Previous: prev,
		Actor:    tx.actor.Identity.UserID,
	})
}

// Start moves a Scheduled conference to Started. The host must have joined.
func (s *Session) Start(ctx context.Context, who domain.Identity) (*domain.Conference, error) {
	return s.do(ctx, "start", who, false, func(tx *txn) error {
		c := tx.conf
		if tx.actor.Participant == nil && who.UserID == c.HostUserID && c.Status == domain.StatusScheduled {
			return domain.Errorf(domain.CodeStateConflict, "host must join before starting")
		}
		if err := tx.can(ActStart); err != nil {
			return err
		}
		c.StartedAt = tx.now
		tx.setStatus(domain.StatusStarted)
		if !c.Features.WaitingRoom {
			for _, p := range c.Sorted(func(p *domain.Participant) bool { return p.State == domain.StateWaiting }) {
				tx.admit(p)
			}
		}
		return nil
	})
}

// Lock blocks new admissions without disconnecting anyone.
func (s *Session) Lock(ctx context.Context, who domain.Identity) (*domain.Conference, error) {
	return s.do(ctx, "lock", who, false, func(tx *txn) error {
		if err := tx.can(ActLock); err != nil {
			return err
		}
		tx.setStatus(domain.StatusLocked)
		return nil
	})
}

func (s *Session) Unlock(ctx context.Context, who domain.Identity) (*domain.Conference, error) {
	return s.do(ctx, "unlock", who, false, func(tx *txn) error {
		if err := tx.can(ActUnlock); err != nil {
			return err
		}
		tx.setStatus(domain.StatusStarted)
		return nil
	})
}

// End terminates a live conference. Rooms close, the recording stops,
// everyone leaves and then every client is told to disconnect.
func (s *Session) End(ctx context.Context, who domain.Identity) (*domain.Conference, error) {
	return s.do(ctx, "end", who, false, func(tx *txn) error {
		if err := tx.can(ActEnd); err != nil {
			return err
		}
		tx.end()
		return nil
	})
}

func (tx *txn) end() {
	tx.teardown("ended")
	tx.setStatus(domain.StatusEnded).CloseAll = true
}

// teardown closes rooms, stops the recording and lets every live participant
// go. Subscriptions stay open; the caller's final state change closes them.
func (tx *txn) teardown(reason string) {
	c := tx.conf
	if rooms := c.OpenRooms(); len(rooms) > 0 {
		for _, r := range rooms {
			tx.closeRoom(r)
		}
		tx.emitRooms()
	}
	if !c.Recording.Terminal() && c.Recording.Status != domain.RecordingNotStarted {
		_ = c.Recording.Transition(domain.RecordingStopped, tx.now)
		tx.emitRecording()
	}
	for _, p := range c.Sorted(func(p *domain.Participant) bool { return p.Live() }) {
		tx.detach(p, domain.StateLeft, reason).Close = nil
	}
	c.EndedAt = tx.now
}

// Cancel abandons a conference that never really happened.
func (s *Session) Cancel(ctx context.Context, who domain.Identity) (*domain.Conference, error) {
	return s.do(ctx, "cancel", who, false, func(tx *txn) error {
		c := tx.conf
		if tx.actor.Participant == nil && who.UserID == c.HostUserID {
			// The scheduling host may cancel without joining.
			tx.actor.Participant = &domain.Participant{UserID: who.UserID, Role: domain.RoleHost, State: domain.StateActive}
		}
		if err := tx.can(ActCancel); err != nil {
			return err
		}
		if c.Status == domain.StatusStarted && c.OthersActivated {
			return domain.Errorf(domain.CodeStateConflict, "participants already took part; end the conference instead")
		}
		tx.teardown("cancelled")
		tx.setStatus(domain.StatusCancelled).CloseAll = true
		if s.notifier != nil {
			tx.after = append(tx.after, func(committed *domain.Conference) {
				nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := s.notifier.ConferenceCancelled(nctx, committed); err != nil {
					s.logger.Warn().Err(err).Msg("cancel notification failed")
				}
			})
		}
		return nil
	})
}

// TransferHost hands the Host role to another active participant; the
// previous host stays on as CoHost.
func (s *Session) TransferHost(ctx context.Context, who domain.Identity, target domain.ParticipantID) (*domain.Conference, error) {
	return s.do(ctx, "transfer_host", who, false, func(tx *txn) error {
		if err := tx.can(ActTransferHost); err != nil {
			return err
		}
		t, err := tx.conf.Participant(target)
		if err != nil {
			return err
		}
		if t.ID == tx.actor.Participant.ID {
			return nil
		}
		if !t.Active() {
			return domain.Errorf(domain.CodeStateConflict, "participant %s is %s", t.ID, t.State)
		}
		old := tx.actor.Participant
		old.Role = domain.RoleCoHost
		old.CoHostSince = tx.now
		tx.promote(t)
		tx.emitParticipant(old, "demoted")
		return nil
	})
}

// promote makes p the Host.
func (tx *txn) promote(p *domain.Participant) {
	p.Role = domain.RoleHost
	p.CoHostSince = time.Time{}
	tx.conf.HostUserID = p.UserID
	tx.emitParticipant(p, "host")
}
