package relay

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/classkit/collab/pkg/api"
	"github.com/classkit/collab/pkg/logger"
	"github.com/classkit/collab/pkg/network"
	"github.com/classkit/collab/pkg/network/websocket"
	"github.com/goccy/go-json"
)

type Status int32

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Connected:
		return "connected"
	case Connecting:
		return "connecting"
	}
	return "disconnected"
}

// Handlers is the callback set of a relay client. OnConnect fires on
// every (re)connect after the server replayed the room backlog, so
// the owner can republish its state.
type Handlers struct {
	OnUpdate    func(update []byte)
	OnBacklog   func(updates [][]byte)
	OnAwareness func(p api.AwarenessPayload)
	OnSignal    func(env api.SignalEnvelope)
	OnConnect   func()
}

// Client keeps one websocket to the relay server alive, reconnecting
// with a growing delay until Close.
type Client struct {
	addr     url.URL
	clientId string
	log      *logger.Logger

	mu       sync.Mutex
	ws       *websocket.WS
	handlers Handlers

	status atomic.Int32
	closed atomic.Bool
	cancel context.CancelFunc
}

// Dial starts the connection loop for a room and returns immediately;
// watch Status or Handlers.OnConnect for progress.
func Dial(ctx context.Context, endpoint, room, clientId string, h Handlers, log *logger.Logger) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	q := u.Query()
	q.Set("room", room)
	q.Set("client", clientId)
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		addr:     *u,
		clientId: clientId,
		handlers: h,
		cancel:   cancel,
		log:      log.Extend(log.With().Str("room", room)),
	}
	go c.connectLoop(ctx)
	return c, nil
}

func (c *Client) Id() string { return c.clientId }

func (c *Client) Status() Status { return Status(c.status.Load()) }

func (c *Client) connectLoop(ctx context.Context) {
	retry := network.NewRetry()
	for !c.closed.Load() {
		c.status.Store(int32(Connecting))
		ws, err := websocket.NewClient(c.addr, c.handleFrame, c.log)
		if err != nil {
			c.status.Store(int32(Disconnected))
			c.log.Debug().Err(err).Msg("relay dial")
			select {
			case <-ctx.Done():
				return
			default:
			}
			retry.Fail()
			continue
		}
		retry.Success()

		c.mu.Lock()
		c.ws = ws
		c.mu.Unlock()
		c.status.Store(int32(Connected))
		if c.handlers.OnConnect != nil {
			c.handlers.OnConnect()
		}

		select {
		case <-ws.Done:
		case <-ctx.Done():
			ws.Close()
			<-ws.Done
			c.status.Store(int32(Disconnected))
			return
		}
		c.status.Store(int32(Disconnected))
	}
}

func (c *Client) handleFrame(message []byte, err error) {
	if err != nil {
		return
	}
	var in api.In
	if err := json.Unmarshal(message, &in); err != nil {
		c.log.Debug().Err(err).Msg("bad relay frame")
		return
	}
	switch in.T {
	case api.DocUpdate:
		if p := api.Unwrap[api.UpdatePayload](in.Payload); p != nil && c.handlers.OnUpdate != nil {
			c.handlers.OnUpdate(p.Update)
		}
	case api.DocBacklog:
		if p := api.Unwrap[api.BacklogPayload](in.Payload); p != nil && c.handlers.OnBacklog != nil {
			c.handlers.OnBacklog(p.Updates)
		}
	case api.Awareness:
		if p := api.Unwrap[api.AwarenessPayload](in.Payload); p != nil && c.handlers.OnAwareness != nil {
			c.handlers.OnAwareness(*p)
		}
	case api.Signal:
		if p := api.Unwrap[api.SignalEnvelope](in.Payload); p != nil && c.handlers.OnSignal != nil {
			c.handlers.OnSignal(*p)
		}
	}
}

func (c *Client) SendUpdate(update []byte) error {
	return c.send(api.Out{T: api.DocUpdate, Payload: api.UpdatePayload{Update: update}})
}

func (c *Client) SendAwareness(p api.AwarenessPayload) error {
	return c.send(api.Out{T: api.Awareness, Payload: p})
}

func (c *Client) SendSignal(env api.SignalEnvelope) error {
	return c.send(api.Out{T: api.Signal, Payload: env})
}

func (c *Client) send(out api.Out) error {
	frame, err := out.Encode()
	if err != nil {
		return err
	}
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil || c.Status() != Connected {
		// best effort: the room replays what matters on reconnect
		return nil
	}
	ws.Write(frame)
	return nil
}

// Close stops the reconnect loop and drops the connection.
func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.cancel()
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws != nil {
		ws.Close()
	}
	c.status.Store(int32(Disconnected))
}
