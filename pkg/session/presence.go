package session

import (
	"sort"
	"sync"
	"time"

	"github.com/classkit/collab/pkg/config"
	"github.com/classkit/collab/pkg/logger"
)

// PresenceEntry is one user's heartbeat record in a presence store.
type PresenceEntry struct {
	UserId   string `json:"uid"`
	Name     string `json:"name"`
	LastSeen int64  `json:"lastSeen"` // unix milliseconds
}

// Store is the presence backend. The in-memory default serves a
// single process; a shared backend (redis, a database) can replace it
// without touching the session.
type Store interface {
	List(key string) (map[string]PresenceEntry, error)
	Put(key string, e PresenceEntry) error
	Remove(key, userId string) error
}

// MemoryStore is the process-local Store.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[string]map[string]PresenceEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]map[string]PresenceEntry)}
}

func (s *MemoryStore) List(key string) (map[string]PresenceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]PresenceEntry, len(s.rooms[key]))
	for id, e := range s.rooms[key] {
		out[id] = e
	}
	return out, nil
}

func (s *MemoryStore) Put(key string, e PresenceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[key]
	if !ok {
		room = make(map[string]PresenceEntry)
		s.rooms[key] = room
	}
	room[e.UserId] = e
	return nil
}

func (s *MemoryStore) Remove(key, userId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[key]; ok {
		delete(room, userId)
		if len(room) == 0 {
			delete(s.rooms, key)
		}
	}
	return nil
}

// PresenceSession keeps one user's heartbeat record alive in a room
// presence table and filters stale records out of the online view.
// The awareness table of the document remains the canonical presence
// source; this channel serves consumers that only have the store.
type PresenceSession struct {
	store Store
	key   string
	user  PresenceEntry
	conf  config.Session
	log   *logger.Logger

	// now is swappable so staleness can be tested without sleeping
	now func() time.Time

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func NewPresenceSession(roomId, userId, name string, store Store, conf config.Session, log *logger.Logger) *PresenceSession {
	if store == nil {
		store = NewMemoryStore()
	}
	return &PresenceSession{
		store: store,
		key:   "presence_" + roomId,
		user:  PresenceEntry{UserId: userId, Name: name},
		conf:  conf,
		log:   log,
		now:   time.Now,
	}
}

// Start registers the user right away and begins the heartbeat.
func (s *PresenceSession) Start() error {
	if err := s.heartbeat(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed || s.done != nil {
		s.mu.Unlock()
		return nil
	}
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		t := time.NewTicker(s.conf.HeartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := s.heartbeat(); err != nil {
					s.log.Debug().Err(err).Msg("presence heartbeat")
				}
			}
		}
	}()
	return nil
}

// heartbeat refreshes the lastSeen stamp of the local user.
func (s *PresenceSession) heartbeat() error {
	e := s.user
	e.LastSeen = s.now().UnixMilli()
	return s.store.Put(s.key, e)
}

// OnlineUsers lists the room's users whose heartbeat is fresh enough,
// sorted by user id.
func (s *PresenceSession) OnlineUsers() ([]PresenceEntry, error) {
	all, err := s.store.List(s.key)
	if err != nil {
		return nil, err
	}
	cutoff := s.now().Add(-s.conf.StaleAfter).UnixMilli()
	out := make([]PresenceEntry, 0, len(all))
	for _, e := range all {
		if e.LastSeen >= cutoff {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserId < out[j].UserId })
	return out, nil
}

// Close stops the heartbeat and removes the user's own record.
func (s *PresenceSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	done := s.done
	s.mu.Unlock()

	if done != nil {
		close(done)
	}
	if err := s.store.Remove(s.key, s.user.UserId); err != nil {
		s.log.Debug().Err(err).Msg("presence remove")
	}
}
