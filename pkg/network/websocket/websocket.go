package websocket

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/classkit/collab/pkg/logger"
	"github.com/classkit/collab/pkg/network"
	"github.com/gorilla/websocket"
)

const (
	maxMessageSize = 1024 * 1024
	pingTime       = pongTime * 9 / 10
	pongTime       = 60 * time.Second
	writeWait      = 10 * time.Second
)

type WS struct {
	id   network.Uid
	conn deadlinedConn
	send chan []byte
	log  *logger.Logger

	OnMessage WSMessageHandler

	pingPong bool
	once     sync.Once

	shutdown *sync.WaitGroup
	Done     chan struct{}
}

type WSMessageHandler func(message []byte, err error)

type Upgrader struct {
	websocket.Upgrader
}

var DefaultUpgrader = Upgrader{
	Upgrader: websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		WriteBufferPool: &sync.Pool{},
	},
}

// NewUpgrader makes an upgrader with an origin check locked to the
// given host; an empty origin allows any.
func NewUpgrader(origin string) *Upgrader {
	u := DefaultUpgrader
	if origin != "" {
		u.CheckOrigin = func(r *http.Request) bool {
			o := r.Header.Get("Origin")
			if o == "" {
				return true
			}
			ou, err := url.Parse(o)
			return err == nil && ou.Host == origin
		}
	} else {
		u.CheckOrigin = func(*http.Request) bool { return true }
	}
	return &u
}

// reader pumps messages from the websocket connection to the OnMessage callback.
// Blocking, must be called as goroutine. Serializes all websocket reads.
func (ws *WS) reader() {
	defer func() {
		close(ws.send)
		ws.shutdown.Done()
		ws.close()
	}()
	ws.conn.setup(func(conn *websocket.Conn) {
		conn.SetReadLimit(maxMessageSize)
		if ws.pingPong {
			_ = conn.SetReadDeadline(time.Now().Add(pongTime))
			conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(pongTime)); return nil })
		}
	})
	for {
		message, err := ws.conn.read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.log.Debug().Err(err).Msg("ws read")
			}
			break
		}
		ws.OnMessage(message, err)
	}
}

// writer pumps messages from the send channel to the websocket connection.
// Blocking, must be called as goroutine. Serializes all websocket writes.
func (ws *WS) writer() {
	var ticker *time.Ticker
	if ws.pingPong {
		ticker = time.NewTicker(pingTime)
	}
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
		ws.shutdown.Done()
		ws.close()
	}()
	if ws.pingPong {
		for {
			select {
			case message, ok := <-ws.send:
				if !ws.handleMessage(message, ok) {
					return
				}
			case <-ticker.C:
				if err := ws.conn.write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
	for message := range ws.send {
		if !ws.handleMessage(message, true) {
			return
		}
	}
	ws.handleMessage(nil, false)
}

func (ws *WS) handleMessage(message []byte, ok bool) bool {
	if !ok {
		_ = ws.conn.write(websocket.CloseMessage, []byte{})
		return false
	}
	return ws.conn.write(websocket.TextMessage, message) == nil
}

// NewServer upgrades an incoming request and binds the message handler
// before the read pump starts, so the first client frame cannot be
// dropped.
func NewServer(w http.ResponseWriter, r *http.Request, onMessage WSMessageHandler, log *logger.Logger) (*WS, error) {
	return NewServerWithUpgrader(w, r, &DefaultUpgrader, onMessage, log)
}

func NewServerWithUpgrader(w http.ResponseWriter, r *http.Request, u *Upgrader, onMessage WSMessageHandler, log *logger.Logger) (*WS, error) {
	conn, err := u.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, true, onMessage, log), nil
}

// NewClient dials the address and binds the message handler before the
// read pump starts, so the first server frame cannot be dropped.
func NewClient(address url.URL, onMessage WSMessageHandler, log *logger.Logger) (*WS, error) {
	conn, _, err := websocket.DefaultDialer.Dial(address.String(), nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, false, onMessage, log), nil
}

func newSocket(conn *websocket.Conn, pingPong bool, onMessage WSMessageHandler, log *logger.Logger) *WS {
	shut := sync.WaitGroup{}
	shut.Add(2)

	id := network.NewUid()
	ws := &WS{
		id:       id,
		conn:     deadlinedConn{sock: conn, wt: writeWait},
		send:     make(chan []byte, 16),
		pingPong: pingPong,
		shutdown: &shut,
		log:      log.Extend(log.With().Str("ws", id.Short())),
		Done:     make(chan struct{}, 1),
		OnMessage: func([]byte, error) {
		},
	}
	if onMessage != nil {
		ws.OnMessage = onMessage
	}

	go ws.writer()
	go ws.reader()

	return ws
}

func (ws *WS) Write(data []byte) {
	defer func() { recover() }()
	ws.send <- data
}

func (ws *WS) Close() {
	_ = ws.conn.write(websocket.CloseMessage, []byte{})
	_ = ws.conn.close()
}

func (ws *WS) close() {
	ws.shutdown.Wait()
	_ = ws.conn.close()
	ws.once.Do(func() { ws.Done <- struct{}{} })
}
