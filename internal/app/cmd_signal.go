package app

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
)

const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// decodeSignal checks a relayed WebRTC payload. Descriptions must carry
// parseable SDP of the matching type; candidates must be non-empty.
func decodeSignal(kind string, data json.RawMessage) (any, error) {
	switch kind {
	case SignalOffer, SignalAnswer:
		var desc webrtc.SessionDescription
		if err := json.Unmarshal(data, &desc); err != nil {
			return nil, domain.Errorf(domain.CodeInvalidArgument, "bad %s payload: %v", kind, err)
		}
		want := webrtc.SDPTypeOffer
		if kind == SignalAnswer {
			want = webrtc.SDPTypeAnswer
		}
		if desc.Type != want {
			return nil, domain.Errorf(domain.CodeInvalidArgument, "%s carries sdp type %s", kind, desc.Type)
		}
		if _, err := desc.Unmarshal(); err != nil {
			return nil, domain.Errorf(domain.CodeInvalidArgument, "bad sdp: %v", err)
		}
		return desc, nil
	case SignalCandidate:
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal(data, &cand); err != nil {
			return nil, domain.Errorf(domain.CodeInvalidArgument, "bad candidate payload: %v", err)
		}
		if cand.Candidate == "" {
			return nil, domain.Errorf(domain.CodeInvalidArgument, "empty candidate")
		}
		return cand, nil
	default:
		return nil, domain.Errorf(domain.CodeInvalidArgument, "unknown signal kind %q", kind)
	}
}

// Relay forwards one WebRTC signaling message to target. Both ends must be
// Active in the same scope. Relayed messages are sequenced but not stored.
func (s *Session) Relay(ctx context.Context, who domain.Identity, target domain.ParticipantID, kind string, data json.RawMessage) error {
	payload, err := decodeSignal(kind, data)
	if err != nil {
		return err
	}
	_, err = s.do(ctx, "relay", who, false, func(tx *txn) error {
		if err := tx.can(ActParticipate); err != nil {
			return err
		}
		from := tx.actor.Participant
		to, err := tx.conf.Participant(target)
		if err != nil {
			return err
		}
		if to.ID == from.ID {
			return domain.Errorf(domain.CodeInvalidArgument, "cannot signal yourself")
		}
		if !to.Active() || to.Scope() != from.Scope() {
			return domain.Errorf(domain.CodePermissionDenied, "participant %s is not reachable from %s", to.ID, from.ID)
		}
		tx.persist = false
		tx.emit(domain.EventSignalRelayed, domain.SignalPayload{From: from.ID, Kind: kind, Data: payload}, to.ID)
		return nil
	})
	return err
}
