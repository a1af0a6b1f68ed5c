package relay

import (
	"sync"

	"github.com/classkit/collab/pkg/api"
	"github.com/classkit/collab/pkg/com"
	"github.com/classkit/collab/pkg/logger"
	"github.com/goccy/go-json"
)

// member is one connected client of a room; out delivers frames to
// its socket.
type member struct {
	id  string
	out func(frame []byte)
}

// Room relays document updates, awareness and signaling between the
// clients of one collaboration room. Updates are retained (up to the
// backlog limit) and replayed to late joiners, so document content
// survives everyone leaving and coming back.
type Room struct {
	id      string
	members com.Map[string, *member]
	log     *logger.Logger

	mu           sync.Mutex
	backlog      [][]byte
	backlogLimit int
	awareness    map[string]api.AwarenessPayload
}

func newRoom(id string, backlogLimit int, log *logger.Logger) *Room {
	return &Room{
		id:           id,
		members:      com.NewMap[string, *member](),
		backlogLimit: backlogLimit,
		awareness:    make(map[string]api.AwarenessPayload),
		log:          log.Extend(log.With().Str("room", id)),
	}
}

func (r *Room) Id() string    { return r.id }
func (r *Room) Size() int     { return r.members.Len() }
func (r *Room) IsEmpty() bool { return r.members.IsEmpty() }

// join adds the member and replays the room state to it: the update
// backlog first, then every known awareness entry.
func (r *Room) join(m *member) {
	r.members.Put(m.id, m)

	r.mu.Lock()
	updates := make([][]byte, len(r.backlog))
	copy(updates, r.backlog)
	states := make([]api.AwarenessPayload, 0, len(r.awareness))
	for _, p := range r.awareness {
		states = append(states, p)
	}
	r.mu.Unlock()

	r.sendTo(m, api.Out{T: api.DocBacklog, Payload: api.BacklogPayload{Updates: updates}})
	for _, p := range states {
		r.sendTo(m, api.Out{T: api.Awareness, Payload: p})
	}
	r.log.Debug().Msgf("join %v (%v online)", m.id, r.Size())
}

// leave removes the member and tells everyone else its awareness
// entry is gone.
func (r *Room) leave(m *member) {
	if !r.members.Has(m.id) {
		return
	}
	r.members.RemoveByKey(m.id)

	r.mu.Lock()
	prev, had := r.awareness[m.id]
	delete(r.awareness, m.id)
	r.mu.Unlock()

	if had {
		r.broadcast(m.id, api.Out{T: api.Awareness, Payload: api.AwarenessPayload{
			ClientId: m.id, Clock: prev.Clock + 1,
		}})
	}
	r.log.Debug().Msgf("leave %v (%v online)", m.id, r.Size())
}

// route dispatches one inbound frame from a member.
func (r *Room) route(from *member, frame []byte) {
	var in api.In
	if err := json.Unmarshal(frame, &in); err != nil {
		r.log.Debug().Err(err).Msgf("bad frame from %v", from.id)
		return
	}
	switch in.T {
	case api.DocUpdate:
		p := api.Unwrap[api.UpdatePayload](in.Payload)
		if p == nil {
			return
		}
		r.remember(p.Update)
		r.broadcast(from.id, api.Out{T: api.DocUpdate, Payload: *p})
	case api.Awareness:
		p := api.Unwrap[api.AwarenessPayload](in.Payload)
		if p == nil {
			return
		}
		r.mu.Lock()
		if p.State == nil {
			delete(r.awareness, p.ClientId)
		} else {
			r.awareness[p.ClientId] = *p
		}
		r.mu.Unlock()
		r.broadcast(from.id, api.Out{T: api.Awareness, Payload: *p})
	case api.Signal:
		p := api.Unwrap[api.SignalEnvelope](in.Payload)
		if p == nil {
			return
		}
		if to, err := r.members.Find(p.To); err == nil {
			r.sendTo(to, api.Out{T: api.Signal, Payload: *p})
		}
	}
}

func (r *Room) remember(update []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backlog = append(r.backlog, update)
	if r.backlogLimit > 0 && len(r.backlog) > r.backlogLimit {
		r.backlog = r.backlog[len(r.backlog)-r.backlogLimit:]
	}
}

// broadcast sends the frame to every member except the origin.
func (r *Room) broadcast(except string, out api.Out) {
	frame, err := out.Encode()
	if err != nil {
		return
	}
	r.members.ForEach(func(m *member) {
		if m.id != except {
			m.out(frame)
		}
	})
}

func (r *Room) sendTo(m *member, out api.Out) {
	frame, err := out.Encode()
	if err != nil {
		return
	}
	m.out(frame)
}
