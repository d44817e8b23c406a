package domain

import (
	"regexp"
	"testing"
	"time"
)

var now = time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

func TestNewJoinCode(t *testing.T) {
	t.Parallel()
	re := regexp.MustCompile(`^[a-z2-9]{3}-[a-z2-9]{4}-[a-z2-9]{3}$`)
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code := NewJoinCode()
		if !re.MatchString(code) {
			t.Fatalf("join code %q does not match %s", code, re)
		}
		seen[code] = true
	}
	if len(seen) < 190 {
		t.Fatalf("only %d distinct codes out of 200", len(seen))
	}
}

func TestEvenSplit(t *testing.T) {
	t.Parallel()
	ids := []ParticipantID{"a", "b", "c", "d", "e"}
	tests := []struct {
		n     int
		sizes []int
	}{
		{1, []int{5}},
		{2, []int{3, 2}},
		{3, []int{2, 2, 1}},
		{7, []int{1, 1, 1, 1, 1, 0, 0}},
	}
	for _, tt := range tests {
		got := EvenSplit(ids, tt.n)
		if len(got) != tt.n {
			t.Fatalf("EvenSplit(_, %d) returned %d buckets", tt.n, len(got))
		}
		for i, b := range got {
			if len(b) != tt.sizes[i] {
				t.Errorf("EvenSplit(_, %d) bucket %d has %d ids, want %d", tt.n, i, len(b), tt.sizes[i])
			}
		}
	}
	if got := EvenSplit(ids, 0); got != nil {
		t.Fatalf("EvenSplit(_, 0) = %v, want nil", got)
	}
}

func liveConference() (*Conference, *Participant, *Participant) {
	c := NewConference("c", "host", Features{}, now)
	c.Status = StatusStarted
	h := NewParticipant(c.ID, Identity{UserID: "host", DisplayName: "host"}, RoleHost, now)
	a := NewParticipant(c.ID, Identity{UserID: "a", DisplayName: "a"}, RoleAttendee, now)
	c.Participants[h.ID] = h
	c.Participants[a.ID] = a
	c.Activate(h, now)
	c.Activate(a, now)
	return c, h, a
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(c *Conference, h, a *Participant)
		ok     bool
	}{
		{"consistent", func(*Conference, *Participant, *Participant) {}, true},
		{"two presenters", func(c *Conference, h, a *Participant) {
			h.Sharing, a.Sharing = true, true
		}, false},
		{"waiting presenter", func(c *Conference, h, a *Participant) {
			a.State = StateWaiting
			a.Sharing = true
		}, false},
		{"no host while live", func(c *Conference, h, a *Participant) {
			h.Role = RoleAttendee
		}, false},
		{"two hosts", func(c *Conference, h, a *Participant) {
			a.Role = RoleHost
		}, false},
		{"member of closed room", func(c *Conference, h, a *Participant) {
			r := &BreakoutRoom{ID: "r1", Status: RoomClosed, Members: []ParticipantID{a.ID}}
			c.Rooms[r.ID] = r
		}, false},
		{"room mismatch", func(c *Conference, h, a *Participant) {
			r := &BreakoutRoom{ID: "r1", Status: RoomOpen, Members: []ParticipantID{a.ID}}
			c.Rooms[r.ID] = r
		}, false},
		{"assigned", func(c *Conference, h, a *Participant) {
			r := &BreakoutRoom{ID: "r1", Status: RoomOpen}
			c.Rooms[r.ID] = r
			c.Assign(a, r)
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, h, a := liveConference()
			tt.mutate(c, h, a)
			err := c.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate = %v, want nil", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("Validate = nil, want an invariant violation")
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()
	c, _, a := liveConference()
	r := &BreakoutRoom{ID: "r1", Status: RoomOpen}
	c.Rooms[r.ID] = r
	c.Assign(a, r)
	c.RaiseHand(a)

	cp := c.Clone()
	cp.Participants[a.ID].AudioMuted = true
	cp.Rooms[r.ID].Members = append(cp.Rooms[r.ID].Members, "x")
	cp.Hands[0] = "x"

	if c.Participants[a.ID].AudioMuted {
		t.Fatal("participant shared between clones")
	}
	if len(c.Rooms[r.ID].Members) != 1 {
		t.Fatal("room members shared between clones")
	}
	if c.Hands[0] != a.ID {
		t.Fatal("hand queue shared between clones")
	}
}

func TestDetachReleasesEverything(t *testing.T) {
	t.Parallel()
	c, _, a := liveConference()
	r := &BreakoutRoom{ID: "r1", Status: RoomOpen}
	c.Rooms[r.ID] = r
	c.Assign(a, r)
	a.Sharing, a.ShareScope = true, Scope(r.ID)
	c.RaiseHand(a)
	c.GrantRecording(a.ID)

	scope, released, room := c.Detach(a, StateLeft, now)
	if !released || scope != Scope(r.ID) || room != r.ID {
		t.Fatalf("Detach = %q %v %q", scope, released, room)
	}
	if len(r.Members) != 0 || len(c.Hands) != 0 || c.MayRecord(a.ID) || a.Live() {
		t.Fatalf("participant not fully detached: %+v", a)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate after detach: %v", err)
	}
}
