package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "meet.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func sampleConference(id domain.ConferenceID, at time.Time) *domain.Conference {
	c := domain.NewConference(id, "alice", domain.Features{WaitingRoom: true, Chat: true}, at)
	c.Title = "Planning"
	c.Status = domain.StatusStarted
	c.StartedAt = at
	p := domain.NewParticipant(id, domain.Identity{UserID: "alice", DisplayName: "Alice"}, domain.RoleHost, at)
	c.Participants[p.ID] = p
	c.Activate(p, at)
	c.Chat = append(c.Chat, domain.ChatMessage{ID: "m1", ConferenceID: id, SenderID: p.ID, Content: "hi", SentAt: at})
	_ = c.Recording.Transition(domain.RecordingActive, at)
	c.Seq = 7
	return c
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	conf := sampleConference("conf-1", at)

	if err := store.Save(ctx, conf); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(ctx, conf.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Title != conf.Title || got.JoinCode != conf.JoinCode || got.Seq != conf.Seq {
		t.Fatalf("loaded conference = %+v", got)
	}
	if !got.StartedAt.Equal(at) {
		t.Fatalf("StartedAt = %s, want %s", got.StartedAt, at)
	}
	if len(got.Participants) != 1 || len(got.Chat) != 1 || got.Chat[0].Content != "hi" {
		t.Fatalf("loaded aggregate lost data: %d participants, chat %v", len(got.Participants), got.Chat)
	}
	if got.Recording.Status != domain.RecordingActive || len(got.Recording.Boundaries) != 1 {
		t.Fatalf("recording = %+v", got.Recording)
	}
	if got.Rooms == nil {
		t.Fatal("rooms map is nil after load")
	}

	conf.Status = domain.StatusEnded
	conf.EndedAt = at.Add(time.Hour)
	conf.Seq = 8
	if err := store.Save(ctx, conf); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err = store.Load(ctx, conf.ID)
	if err != nil {
		t.Fatalf("load after update: %v", err)
	}
	if got.Status != domain.StatusEnded || got.Seq != 8 {
		t.Fatalf("update not applied: status %s seq %d", got.Status, got.Seq)
	}
}

func TestLoadActive(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

	statuses := []domain.Status{domain.StatusScheduled, domain.StatusEnded, domain.StatusLocked, domain.StatusCancelled}
	for i, status := range statuses {
		c := sampleConference(domain.ConferenceID(string(rune('a'+i))), at.Add(time.Duration(i)*time.Minute))
		c.Status = status
		if err := store.Save(ctx, c); err != nil {
			t.Fatalf("save %s: %v", c.ID, err)
		}
	}

	active, err := store.LoadActive(ctx)
	if err != nil {
		t.Fatalf("load active: %v", err)
	}
	if len(active) != 2 || active[0].ID != "a" || active[1].ID != "c" {
		ids := make([]domain.ConferenceID, len(active))
		for i, c := range active {
			ids[i] = c.ID
		}
		t.Fatalf("active = %v, want [a c]", ids)
	}
}

func TestMissingRecords(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Load(ctx, "nope"); !errors.Is(err, core.ErrRecordNotFound) {
		t.Fatalf("load missing = %v, want ErrRecordNotFound", err)
	}
	if err := store.Delete(ctx, "nope"); !errors.Is(err, core.ErrRecordNotFound) {
		t.Fatalf("delete missing = %v, want ErrRecordNotFound", err)
	}

	conf := sampleConference("conf-1", time.Now().UTC())
	if err := store.Save(ctx, conf); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Delete(ctx, conf.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Load(ctx, conf.ID); !errors.Is(err, core.ErrRecordNotFound) {
		t.Fatalf("load deleted = %v, want ErrRecordNotFound", err)
	}
}

func TestSaveHonoursContext(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Save(ctx, sampleConference("conf-1", time.Now().UTC())); !errors.Is(err, context.Canceled) {
		t.Fatalf("save with cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "meet.db")
	for i := 0; i < 2; i++ {
		store, err := Open(path)
		if err != nil {
			t.Fatalf("open #%d: %v", i, err)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("close #%d: %v", i, err)
		}
	}
}
