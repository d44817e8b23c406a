package app

import (
	"context"

	"github.com/dkeye/Meet/internal/domain"
)

func (tx *txn) emitRecording() {
	rec := tx.conf.Recording
	tx.emit(domain.EventRecordingStateChanged, domain.RecordingPayload{
		Status:   rec.Status,
		Duration: rec.Duration(tx.now),
	})
}

func (s *Session) record(ctx context.Context, who domain.Identity, name string, to domain.RecordingStatus, from ...domain.RecordingStatus) (*domain.Conference, error) {
	return s.do(ctx, name, who, false, func(tx *txn) error {
		if err := tx.can(ActRecord); err != nil {
			return err
		}
		if !tx.conf.Features.Recording {
			return domain.Errorf(domain.CodeStateConflict, "recording is disabled for this conference")
		}
		rec := &tx.conf.Recording
		allowed := false
		for _, f := range from {
			allowed = allowed || rec.Status == f
		}
		if !allowed {
			return domain.Errorf(domain.CodeStateConflict, "cannot %s a recording that is %s", name, rec.Status)
		}
		if err := rec.Transition(to, tx.now); err != nil {
			return err
		}
		tx.emitRecording()
		s.logger.Info().Str("recording", string(rec.Status)).Dur("recorded", rec.Duration(tx.now)).Msg("recording transition")
		return nil
	})
}

func (s *Session) StartRecording(ctx context.Context, who domain.Identity) (*domain.Conference, error) {
	return s.record(ctx, who, "start_recording", domain.RecordingActive, domain.RecordingNotStarted)
}

func (s *Session) PauseRecording(ctx context.Context, who domain.Identity) (*domain.Conference, error) {
	return s.record(ctx, who, "pause_recording", domain.RecordingPaused, domain.RecordingActive)
}

func (s *Session) ResumeRecording(ctx context.Context, who domain.Identity) (*domain.Conference, error) {
	return s.record(ctx, who, "resume_recording", domain.RecordingActive, domain.RecordingPaused)
}

func (s *Session) StopRecording(ctx context.Context, who domain.Identity) (*domain.Conference, error) {
	return s.record(ctx, who, "stop_recording", domain.RecordingStopped, domain.RecordingActive, domain.RecordingPaused)
}

// GrantRecording lets target drive the recorder.
func (s *Session) GrantRecording(ctx context.Context, who domain.Identity, target domain.ParticipantID) (*domain.Conference, error) {
	return s.do(ctx, "grant_recording", who, false, func(tx *txn) error {
		if err := tx.can(ActGrantRecording); err != nil {
			return err
		}
		p, err := tx.conf.Participant(target)
		if err != nil {
			return err
		}
		if !p.Active() {
			return domain.Errorf(domain.CodeStateConflict, "participant %s is %s", p.ID, p.State)
		}
		if tx.conf.MayRecord(p.ID) {
			return nil
		}
		tx.conf.GrantRecording(p.ID)
		tx.emitParticipant(p, "recording_granted")
		return nil
	})
}

func (s *Session) RevokeRecording(ctx context.Context, who domain.Identity, target domain.ParticipantID) (*domain.Conference, error) {
	return s.do(ctx, "revoke_recording", who, false, func(tx *txn) error {
		if err := tx.can(ActGrantRecording); err != nil {
			return err
		}
		p, err := tx.conf.Participant(target)
		if err != nil {
			return err
		}
		if !tx.conf.MayRecord(p.ID) {
			return nil
		}
		tx.conf.RevokeRecording(p.ID)
		tx.emitParticipant(p, "recording_revoked")
		return nil
	})
}
