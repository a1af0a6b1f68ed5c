package relay

import (
	"net/http"

	"github.com/classkit/collab/pkg/com"
	"github.com/classkit/collab/pkg/config"
	"github.com/classkit/collab/pkg/logger"
	"github.com/classkit/collab/pkg/network/websocket"
)

// Hub owns every active room and turns websocket connections into
// room members.
type Hub struct {
	conf     config.Relay
	rooms    com.Map[string, *Room]
	upgrader *websocket.Upgrader
	log      *logger.Logger
}

func NewHub(conf config.Relay, log *logger.Logger) *Hub {
	return &Hub{
		conf:     conf,
		rooms:    com.NewMap[string, *Room](),
		upgrader: websocket.NewUpgrader(conf.Origin),
		log:      log,
	}
}

// room returns the named room, creating it when absent.
func (h *Hub) room(id string) *Room {
	if r, err := h.rooms.Find(id); err == nil {
		return r
	}
	r := newRoom(id, h.conf.Room.BacklogLimit, h.log)
	h.rooms.Put(id, r)
	roomsGauge.Inc()
	return r
}

// handleConnection upgrades one websocket client and binds it to its
// room until the socket dies.
func (h *Hub) handleConnection(w http.ResponseWriter, r *http.Request) {
	roomId := r.URL.Query().Get("room")
	if roomId == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}
	clientId := r.URL.Query().Get("client")
	if clientId == "" {
		clientId = com.NewUid().String()
	}

	room := h.room(roomId)
	m := &member{id: clientId}
	// the handler goes in with the upgrade so frames arriving before
	// the join cannot slip past it
	ws, err := websocket.NewServerWithUpgrader(w, r, h.upgrader, func(message []byte, err error) {
		if err != nil {
			return
		}
		framesCounter.Inc()
		room.route(m, message)
	}, h.log)
	if err != nil {
		h.log.Error().Err(err).Msg("ws upgrade")
		return
	}

	m.out = ws.Write
	room.join(m)
	clientsGauge.Inc()

	go func() {
		<-ws.Done
		room.leave(m)
		clientsGauge.Dec()
		if room.IsEmpty() {
			h.rooms.RemoveByKey(room.Id())
			roomsGauge.Dec()
		}
	}()
}

// Close drops every room.
func (h *Hub) Close() {
	for _, id := range h.rooms.Keys() {
		h.rooms.RemoveByKey(id)
	}
}
