package app

import (
	"context"
	"slices"

	"github.com/dkeye/Meet/internal/domain"
)

// SetMute toggles the caller's own microphone flag. Always permitted.
func (s *Session) SetMute(ctx context.Context, who domain.Identity, muted bool) (*domain.Conference, error) {
	return s.do(ctx, "set_mute", who, false, func(tx *txn) error {
		if err := tx.can(ActSelf); err != nil {
			return err
		}
		p, err := tx.self()
		if err != nil {
			return err
		}
		if p.AudioMuted == muted {
			return nil
		}
		p.AudioMuted = muted
		tx.emitParticipant(p, "audio")
		return nil
	})
}

// SetVideo toggles the caller's own camera flag. Always permitted.
func (s *Session) SetVideo(ctx context.Context, who domain.Identity, off bool) (*domain.Conference, error) {
	return s.do(ctx, "set_video", who, false, func(tx *txn) error {
		if err := tx.can(ActSelf); err != nil {
			return err
		}
		p, err := tx.self()
		if err != nil {
			return err
		}
		if p.VideoOff == off {
			return nil
		}
		p.VideoOff = off
		tx.emitParticipant(p, "video")
		return nil
	})
}

// MuteOther force-mutes one participant. The host is never force-muted.
func (s *Session) MuteOther(ctx context.Context, who domain.Identity, target domain.ParticipantID) (*domain.Conference, error) {
	return s.do(ctx, "mute_other", who, false, func(tx *txn) error {
		if err := tx.can(ActMuteOthers); err != nil {
			return err
		}
		p, err := tx.conf.Participant(target)
		if err != nil {
			return err
		}
		if p.Role == domain.RoleHost && p.ID != tx.actor.Participant.ID {
			return domain.Errorf(domain.CodePermissionDenied, "the host cannot be muted by others")
		}
		if !p.Active() {
			return domain.Errorf(domain.CodeStateConflict, "participant %s is %s", p.ID, p.State)
		}
		if p.AudioMuted {
			return nil
		}
		p.AudioMuted = true
		tx.emitParticipant(p, "muted")
		return nil
	})
}

// MuteAll force-mutes every Active participant except the host.
func (s *Session) MuteAll(ctx context.Context, who domain.Identity) (*domain.Conference, error) {
	return s.do(ctx, "mute_all", who, false, func(tx *txn) error {
		if err := tx.can(ActMuteOthers); err != nil {
			return err
		}
		for _, p := range tx.conf.Sorted(func(p *domain.Participant) bool {
			return p.Active() && p.Role != domain.RoleHost && !p.AudioMuted
		}) {
			p.AudioMuted = true
			tx.emitParticipant(p, "muted")
		}
		return nil
	})
}

func (tx *txn) emitHands() {
	tx.emit(domain.EventHandRaiseQueueChanged, domain.HandsPayload{Queue: slices.Clone(tx.conf.Hands)})
}

// RaiseHand appends the caller to the FIFO queue when absent.
func (s *Session) RaiseHand(ctx context.Context, who domain.Identity) (*domain.Conference, error) {
	return s.do(ctx, "raise_hand", who, false, func(tx *txn) error {
		if err := tx.can(ActParticipate); err != nil {
			return err
		}
		if tx.conf.RaiseHand(tx.actor.Participant) {
			tx.emitHands()
		}
		return nil
	})
}

// LowerHand takes target out of the queue. An empty target means the
// caller; lowering someone else needs Host or CoHost.
func (s *Session) LowerHand(ctx context.Context, who domain.Identity, target domain.ParticipantID) (*domain.Conference, error) {
	return s.do(ctx, "lower_hand", who, false, func(tx *txn) error {
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
		if tx.conf.LowerHand(p) {
			tx.emitHands()
		}
		return nil
	})
}

// LowerAllHands clears the queue.
func (s *Session) LowerAllHands(ctx context.Context, who domain.Identity) (*domain.Conference, error) {
	return s.do(ctx, "lower_all_hands", who, false, func(tx *txn) error {
		if err := tx.can(ActModerate); err != nil {
			return err
		}
		if len(tx.conf.Hands) == 0 {
			return nil
		}
		for _, pid := range tx.conf.Hands {
			if p, ok := tx.conf.Participants[pid]; ok {
				p.HandRaised = false
			}
		}
		tx.conf.Hands = nil
		tx.emitHands()
		return nil
	})
}
