// Package relay implements both ends of the document relay channel:
// the room-scoped server that fans out CRDT updates, awareness and
// peer signaling, and the auto-reconnecting client a collaborative
// document speaks through.
package relay

import (
	"context"

	"github.com/classkit/collab/pkg/config"
	"github.com/classkit/collab/pkg/logger"
	"github.com/classkit/collab/pkg/network/httpx"
)

// Relay is the relay server service: a websocket endpoint at /ws
// backed by a Hub.
type Relay struct {
	server *httpx.Server
	hub    *Hub
	log    *logger.Logger
}

func New(conf config.Relay, log *logger.Logger) (*Relay, error) {
	hub := NewHub(conf, log)
	server, err := httpx.NewServer(
		conf.Server.Address,
		func(s *httpx.Server) httpx.Handler {
			mux := s.Mux()
			mux.HandleFunc("/ws", hub.handleConnection)
			mux.HandleW("/healthz", func(w httpx.ResponseWriter) { w.WriteHeader(200) })
			return mux
		},
		httpx.WithLogger(log),
		httpx.WithServerConfig(conf.Server),
	)
	if err != nil {
		return nil, err
	}
	return &Relay{server: server, hub: hub, log: log}, nil
}

func (r *Relay) Run() error {
	r.log.Info().Msgf("relay at %v", r.server.Addr)
	return r.server.Run()
}

func (r *Relay) Shutdown(ctx context.Context) error {
	r.hub.Close()
	return r.server.Shutdown(ctx)
}

func (r *Relay) String() string { return "relay::" + r.server.Addr }
