package session

import (
	"testing"
	"time"

	"github.com/classkit/collab/pkg/config"
	"github.com/classkit/collab/pkg/logger"
)

func newPresence(t *testing.T, store Store, room, uid, name string, clock *time.Time) *PresenceSession {
	t.Helper()
	s := NewPresenceSession(room, uid, name, store, config.DefaultSession(), logger.Default())
	s.now = func() time.Time { return *clock }
	return s
}

func TestPresenceStaleness(t *testing.T) {
	store := NewMemoryStore()
	clock := time.Unix(1000, 0)

	ann := newPresence(t, store, "r1", "u1", "Ann", &clock)
	ben := newPresence(t, store, "r1", "u2", "Ben", &clock)
	if err := ann.heartbeat(); err != nil {
		t.Fatal(err)
	}
	if err := ben.heartbeat(); err != nil {
		t.Fatal(err)
	}

	online, err := ann.OnlineUsers()
	if err != nil {
		t.Fatal(err)
	}
	if len(online) != 2 {
		t.Fatalf("expected 2 online, got %v", len(online))
	}

	// ben stops beating; ann keeps refreshing as the clock advances
	clock = clock.Add(20 * time.Second)
	if err := ann.heartbeat(); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(15 * time.Second)

	online, _ = ann.OnlineUsers()
	if len(online) != 1 || online[0].UserId != "u1" {
		t.Fatalf("stale entry not excluded: %+v", online)
	}
	// the record itself is still in the store, only filtered
	all, _ := store.List("presence_r1")
	if len(all) != 2 {
		t.Errorf("expected both records stored, got %v", len(all))
	}
}

func TestPresenceRoomsIsolated(t *testing.T) {
	store := NewMemoryStore()
	clock := time.Unix(1000, 0)
	a := newPresence(t, store, "r1", "u1", "Ann", &clock)
	b := newPresence(t, store, "r2", "u2", "Ben", &clock)
	_ = a.heartbeat()
	_ = b.heartbeat()

	online, _ := a.OnlineUsers()
	if len(online) != 1 || online[0].UserId != "u1" {
		t.Fatalf("presence leaked across rooms: %+v", online)
	}
}

func TestPresenceCloseRemovesOwnEntry(t *testing.T) {
	store := NewMemoryStore()
	clock := time.Unix(1000, 0)
	a := newPresence(t, store, "r1", "u1", "Ann", &clock)
	b := newPresence(t, store, "r1", "u2", "Ben", &clock)
	_ = a.heartbeat()
	_ = b.heartbeat()

	a.Close()
	a.Close() // idempotent

	online, _ := b.OnlineUsers()
	if len(online) != 1 || online[0].UserId != "u2" {
		t.Fatalf("closed session still present: %+v", online)
	}
}

func TestPresenceStartRegistersImmediately(t *testing.T) {
	store := NewMemoryStore()
	clock := time.Unix(1000, 0)
	a := newPresence(t, store, "r1", "u1", "Ann", &clock)
	if err := a.Start(); err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	online, _ := a.OnlineUsers()
	if len(online) != 1 {
		t.Fatalf("not registered on Start: %+v", online)
	}
}
