package app

import (
	"slices"

	"github.com/dkeye/Meet/internal/domain"
)

type Action string

const (
	ActStart          Action = "start"
	ActLock           Action = "lock"
	ActUnlock         Action = "unlock"
	ActEnd            Action = "end"
	ActCancel         Action = "cancel"
	ActTransferHost   Action = "transfer_host"
	ActAdmit          Action = "admit"
	ActRemove         Action = "remove"
	ActManageCoHost   Action = "manage_cohost"
	ActMuteOthers     Action = "mute_others"
	ActBreakout       Action = "breakout"
	ActBroadcast      Action = "broadcast"
	ActRecord         Action = "record"
	ActGrantRecording Action = "grant_recording"
	ActModerate       Action = "moderate"
	ActParticipate    Action = "participate"
	ActSelf           Action = "self"
)

// Actor is the caller of a command: resolved identity plus the caller's
// live participant in the conference, nil when not joined.
type Actor struct {
	Identity    domain.Identity
	Participant *domain.Participant
}

type rule struct {
	statuses []domain.Status
	roles    []domain.Role
	// waiting allows participants that are not yet Active.
	waiting bool
}

var (
	live    = []domain.Status{domain.StatusStarted, domain.StatusLocked}
	hostly  = []domain.Role{domain.RoleHost}
	elevate = []domain.Role{domain.RoleHost, domain.RoleCoHost}
)

var rules = map[Action]rule{
	ActStart:          {statuses: []domain.Status{domain.StatusScheduled}, roles: hostly},
	ActLock:           {statuses: []domain.Status{domain.StatusStarted}, roles: elevate},
	ActUnlock:         {statuses: []domain.Status{domain.StatusLocked}, roles: elevate},
	ActEnd:            {statuses: live, roles: hostly},
	ActCancel:         {statuses: []domain.Status{domain.StatusScheduled, domain.StatusStarted}, roles: hostly},
	ActTransferHost:   {statuses: live, roles: hostly},
	ActAdmit:          {statuses: []domain.Status{domain.StatusStarted}, roles: elevate},
	ActRemove:         {statuses: append([]domain.Status{domain.StatusScheduled}, live...), roles: elevate},
	ActManageCoHost:   {statuses: live, roles: hostly},
	ActMuteOthers:     {statuses: live, roles: elevate},
	ActBreakout:       {statuses: live, roles: elevate},
	ActBroadcast:      {statuses: live, roles: hostly},
	ActRecord:         {statuses: live},
	ActGrantRecording: {statuses: live, roles: hostly},
	ActModerate:       {statuses: live, roles: elevate},
	ActParticipate:    {statuses: live},
	ActSelf:           {statuses: append([]domain.Status{domain.StatusScheduled}, live...), waiting: true},
}

// CanPerform decides whether actor may run action against conf. The
// conference status is checked before the actor's role, so every command
// against a terminal conference fails with StateConflict.
func CanPerform(actor Actor, action Action, conf *domain.Conference) error {
	r, ok := rules[action]
	if !ok {
		return domain.Errorf(domain.CodeInvalidArgument, "unknown action %q", action)
	}
	if !slices.Contains(r.statuses, conf.Status) {
		return domain.Errorf(domain.CodeStateConflict, "%s not allowed while conference is %s", action, conf.Status)
	}
	p := actor.Participant
	if p == nil || !p.Live() {
		return domain.Errorf(domain.CodePermissionDenied, "%s requires a joined participant", action)
	}
	if !r.waiting && !p.Active() {
		return domain.Errorf(domain.CodePermissionDenied, "%s requires an active participant", action)
	}
	if action == ActRecord {
		if p.Role == domain.RoleHost || actor.Identity.CanRecord || conf.MayRecord(p.ID) {
			return nil
		}
		return domain.Errorf(domain.CodePermissionDenied, "participant %s may not record", p.ID)
	}
	if len(r.roles) > 0 && !slices.Contains(r.roles, p.Role) {
		return domain.Errorf(domain.CodePermissionDenied, "%s requires role %v, have %s", action, r.roles, p.Role)
	}
	return nil
}
