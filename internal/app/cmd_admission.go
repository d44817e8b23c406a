package app

import (
	"context"
	"time"

	"github.com/dkeye/Meet/internal/domain"
)

func (tx *txn) emitParticipant(p *domain.Participant, reason string) *domain.Event {
	return tx.emit(domain.EventParticipantUpdated, domain.ParticipantPayload{Participant: *p, Reason: reason})
}

func (tx *txn) admit(p *domain.Participant) {
	p.State = domain.StateAdmitted
	tx.conf.Activate(p, tx.now)
	tx.emit(domain.EventParticipantAdmitted, domain.ParticipantPayload{Participant: *p})
}

// Join adds the caller to the conference with a fresh peer id. Non-hosts wait
// when the waiting room is on or the conference has not started yet. A user
// who still holds a live participant, for instance after a restart or a
// dropped socket, resumes it on a new peer.
func (s *Session) Join(ctx context.Context, who domain.Identity) (*domain.Conference, error) {
	return s.do(ctx, "join", who, true, func(tx *txn) error {
		c := tx.conf
		if c.Status.Terminal() {
			return domain.Errorf(domain.CodeStateConflict, "conference is %s", c.Status)
		}
		if c.WasRemoved(who.UserID) {
			return domain.Errorf(domain.CodePermissionDenied, "user %s was removed from this conference", who.UserID)
		}
		if p, ok := c.LiveParticipantOf(who.UserID); ok {
			tx.resume(p)
			s.logger.Info().Str("participant", string(p.ID)).Str("user", string(who.UserID)).Msg("resumed")
			return nil
		}
		isHost := who.UserID == c.HostUserID
		if c.Status == domain.StatusLocked && !isHost {
			return domain.Errorf(domain.CodeStateConflict, "conference is locked")
		}
		if s.cfg.MaxParticipants > 0 && c.LiveCount() >= s.cfg.MaxParticipants {
			return domain.Errorf(domain.CodeCapacityExceeded, "conference is full (%d)", s.cfg.MaxParticipants)
		}
		if isHost {
			if h, ok := c.Host(); ok {
				return domain.Errorf(domain.CodeStateConflict, "host seat held by %s", h.ID)
			}
		}

		role := domain.RoleAttendee
		if isHost {
			role = domain.RoleHost
		}
		p := domain.NewParticipant(c.ID, who, role, tx.now)
		c.Participants[p.ID] = p

		wait := !isHost && (c.Features.WaitingRoom || c.Status == domain.StatusScheduled)
		if wait {
			p.State = domain.StateWaiting
		} else {
			p.State = domain.StateAdmitted
			c.Activate(p, tx.now)
		}
		tx.emit(domain.EventParticipantJoined, domain.ParticipantPayload{Participant: *p})
		if isHost && c.AdHoc && c.Status == domain.StatusScheduled {
			c.StartedAt = tx.now
			tx.setStatus(domain.StatusStarted)
		}
		s.logger.Info().Str("participant", string(p.ID)).Str("user", string(who.UserID)).Str("state", string(p.State)).Msg("joined")
		return nil
	})
}

// resume moves p to a new peer. Streams opened for the previous peer end.
func (tx *txn) resume(p *domain.Participant) {
	p.PeerID = domain.NewPeerID()
	tx.emitParticipant(p, "reconnected").Close = []domain.ParticipantID{p.ID}
}

// AdmitFromWaitingRoom moves one Waiting participant to Active.
func (s *Session) AdmitFromWaitingRoom(ctx context.Context, who domain.Identity, target domain.ParticipantID) (*domain.Conference, error) {
	return s.do(ctx, "admit", who, true, func(tx *txn) error {
		if err := tx.can(ActAdmit); err != nil {
			return err
		}
		p, err := tx.conf.Participant(target)
		if err != nil {
			return err
		}
		if p.State != domain.StateWaiting {
			return domain.Errorf(domain.CodeStateConflict, "participant %s is %s", p.ID, p.State)
		}
		tx.admit(p)
		return nil
	})
}

// AdmitAll moves every Waiting participant to Active in one commit.
func (s *Session) AdmitAll(ctx context.Context, who domain.Identity) (*domain.Conference, error) {
	return s.do(ctx, "admit_all", who, true, func(tx *txn) error {
		if err := tx.can(ActAdmit); err != nil {
			return err
		}
		for _, p := range tx.conf.Sorted(func(p *domain.Participant) bool { return p.State == domain.StateWaiting }) {
			tx.admit(p)
		}
		return nil
	})
}

// DenyFromWaitingRoom turns a Waiting participant away.
func (s *Session) DenyFromWaitingRoom(ctx context.Context, who domain.Identity, target domain.ParticipantID) (*domain.Conference, error) {
	return s.do(ctx, "deny", who, true, func(tx *txn) error {
		if err := tx.can(ActRemove); err != nil {
			return err
		}
		p, err := tx.conf.Participant(target)
		if err != nil {
			return err
		}
		if p.State != domain.StateWaiting {
			return domain.Errorf(domain.CodeStateConflict, "participant %s is %s", p.ID, p.State)
		}
		tx.detach(p, domain.StateRemoved, "denied")
		return nil
	})
}

// Remove expels a participant and forces its disconnection.
func (s *Session) Remove(ctx context.Context, who domain.Identity, target domain.ParticipantID) (*domain.Conference, error) {
	return s.do(ctx, "remove", who, false, func(tx *txn) error {
		if err := tx.can(ActRemove); err != nil {
			return err
		}
		p, err := tx.conf.Participant(target)
		if err != nil {
			return err
		}
		if p.Role == domain.RoleHost {
			return domain.Errorf(domain.CodePermissionDenied, "the host cannot be removed")
		}
		if !p.Live() {
			return domain.Errorf(domain.CodeStateConflict, "participant %s is %s", p.ID, p.State)
		}
		tx.detach(p, domain.StateRemoved, "removed")
		return nil
	})
}

// detach releases everything p holds, emitting the matching events, and
// closes p's subscriptions. It returns the final event.
func (tx *txn) detach(p *domain.Participant, state domain.ParticipantState, reason string) *domain.Event {
	c := tx.conf
	hadHand := p.HandRaised
	scope, released, room := c.Detach(p, state, tx.now)
	if released {
		tx.emit(domain.EventScreenShareStopped, domain.SharePayload{ParticipantID: p.ID, Scope: scope})
	}
	if room != "" {
		tx.emit(domain.EventBreakoutAssignmentChanged, domain.AssignmentPayload{ParticipantID: p.ID, From: room})
	}
	if hadHand {
		tx.emitHands()
	}
	typ := domain.EventParticipantLeft
	if state == domain.StateRemoved {
		typ = domain.EventParticipantRemoved
	}
	ev := tx.emit(typ, domain.ParticipantPayload{Participant: *p, Reason: reason})
	ev.Close = []domain.ParticipantID{p.ID}
	return ev
}

// Leave takes the caller out of the conference. A leaving host hands
// authority to the longest-tenured CoHost; without one the host-leave
// policy decides between ending and promoting an attendee.
func (s *Session) Leave(ctx context.Context, who domain.Identity) (*domain.Conference, error) {
	return s.do(ctx, "leave", who, false, func(tx *txn) error {
		if err := tx.can(ActSelf); err != nil {
			return err
		}
		p, err := tx.self()
		if err != nil {
			return err
		}
		tx.leave(p, s.cfg.HostLeave)
		return nil
	})
}

// Disconnect is Leave for a dropped connection on peer. It does nothing
// when the participant has resumed on another peer or is already gone.
func (s *Session) Disconnect(ctx context.Context, who domain.Identity, peer domain.PeerID) (*domain.Conference, error) {
	return s.do(ctx, "disconnect", who, false, func(tx *txn) error {
		p := tx.actor.Participant
		if p == nil || p.PeerID != peer || tx.conf.Status.Terminal() {
			return nil
		}
		tx.leave(p, s.cfg.HostLeave)
		return nil
	})
}

func (tx *txn) leave(p *domain.Participant, policy HostLeavePolicy) {
	wasHost := p.Role == domain.RoleHost
	tx.detach(p, domain.StateLeft, "left")
	if !wasHost || !tx.conf.Status.Live() {
		return
	}
	if next, ok := tx.successor(policy); ok {
		tx.promote(next)
		return
	}
	tx.end()
}

// successor picks the next host: the longest-tenured CoHost, or under the
// promote policy the longest-active attendee.
func (tx *txn) successor(policy HostLeavePolicy) (*domain.Participant, bool) {
	var best *domain.Participant
	for _, p := range tx.conf.Participants {
		if p.Role != domain.RoleCoHost || !p.Active() {
			continue
		}
		if best == nil || p.CoHostSince.Before(best.CoHostSince) ||
			(p.CoHostSince.Equal(best.CoHostSince) && p.ID < best.ID) {
			best = p
		}
	}
	if best != nil || policy != HostLeavePromote {
		return best, best != nil
	}
	for _, p := range tx.conf.Participants {
		if !p.Active() {
			continue
		}
		if best == nil || p.ActiveAt.Before(best.ActiveAt) ||
			(p.ActiveAt.Equal(best.ActiveAt) && p.ID < best.ID) {
			best = p
		}
	}
	return best, best != nil
}

// MakeCoHost delegates admission, mute-others and breakout authority.
func (s *Session) MakeCoHost(ctx context.Context, who domain.Identity, target domain.ParticipantID) (*domain.Conference, error) {
	return s.do(ctx, "make_cohost", who, false, func(tx *txn) error {
		if err := tx.can(ActManageCoHost); err != nil {
			return err
		}
		p, err := tx.conf.Participant(target)
		if err != nil {
			return err
		}
		if !p.Active() {
			return domain.Errorf(domain.CodeStateConflict, "participant %s is %s", p.ID, p.State)
		}
		switch p.Role {
		case domain.RoleHost:
			return domain.Errorf(domain.CodeStateConflict, "participant %s is the host", p.ID)
		case domain.RoleCoHost:
			return nil
		}
		p.Role = domain.RoleCoHost
		p.CoHostSince = tx.now
		tx.emitParticipant(p, "cohost")
		return nil
	})
}

func (s *Session) RevokeCoHost(ctx context.Context, who domain.Identity, target domain.ParticipantID) (*domain.Conference, error) {
	return s.do(ctx, "revoke_cohost", who, false, func(tx *txn) error {
		if err := tx.can(ActManageCoHost); err != nil {
			return err
		}
		p, err := tx.conf.Participant(target)
		if err != nil {
			return err
		}
		if p.Role != domain.RoleCoHost {
			return nil
		}
		p.Role = domain.RoleAttendee
		p.CoHostSince = time.Time{}
		tx.emitParticipant(p, "attendee")
		return nil
	})
}

// Rename changes the caller's display name.
func (s *Session) Rename(ctx context.Context, who domain.Identity, name string) (*domain.Conference, error) {
	return s.do(ctx, "rename", who, false, func(tx *txn) error {
		if err := tx.can(ActSelf); err != nil {
			return err
		}
		p, err := tx.self()
		if err != nil {
			return err
		}
		name, err := domain.NormalizeDisplayName(name)
		if err != nil {
			return domain.Errorf(domain.CodeInvalidArgument, "%v", err)
		}
		if p.DisplayName == name {
			return nil
		}
		p.DisplayName = name
		tx.emitParticipant(p, "renamed")
		return nil
	})
}
