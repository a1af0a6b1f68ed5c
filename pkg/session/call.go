// Package session adapts the imperative rtc, collab and chat layers
// into subscribable session objects with a uniform lifecycle: create,
// Start, observe through OnChange, Close. Every Close is safe to call
// more than once and always releases the underlying resources.
package session

import (
	"sync"

	"github.com/classkit/collab/pkg/logger"
	"github.com/classkit/collab/pkg/rtc"
)

// CallSession wraps one rtc.Manager with reactive state: the peer
// list and the last transport or media error, both observable through
// OnChange.
type CallSession struct {
	manager *rtc.Manager
	log     *logger.Logger

	mu     sync.Mutex
	peers  []string
	err    error
	closed bool

	subs    map[int]func()
	nextSub int
}

func NewCallSession(m *rtc.Manager, log *logger.Logger) *CallSession {
	return &CallSession{
		manager: m,
		log:     log,
		subs:    make(map[int]func()),
	}
}

// Start registers the caller's events on the manager, layered under
// the session's own state tracking.
func (s *CallSession) Start(events rtc.Events) {
	wrapped := events
	wrapped.OnPeerJoined = func(peerId string) {
		s.refreshPeers()
		if events.OnPeerJoined != nil {
			events.OnPeerJoined(peerId)
		}
		s.notify()
	}
	wrapped.OnPeerLeft = func(peerId string) {
		s.refreshPeers()
		if events.OnPeerLeft != nil {
			events.OnPeerLeft(peerId)
		}
		s.notify()
	}
	wrapped.OnError = func(err error) {
		s.setErr(err)
		if events.OnError != nil {
			events.OnError(err)
		}
		s.notify()
	}
	s.manager.Initialize(wrapped)
}

func (s *CallSession) refreshPeers() {
	peers := s.manager.Peers()
	s.mu.Lock()
	s.peers = peers
	s.mu.Unlock()
}

func (s *CallSession) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Peers returns the peer list as of the last join/leave event.
func (s *CallSession) Peers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.peers...)
}

// Err returns the last captured error; nil after ClearErr.
func (s *CallSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *CallSession) ClearErr() { s.setErr(nil) }

// OnChange subscribes to session state changes (peers, error). The
// returned function unsubscribes.
func (s *CallSession) OnChange(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *CallSession) notify() {
	s.mu.Lock()
	subs := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// OpenMedia acquires local media, capturing a failure into the error
// state as well as returning it.
func (s *CallSession) OpenMedia(c rtc.MediaConstraints) error {
	if _, err := s.manager.OpenLocalMedia(c); err != nil {
		s.setErr(err)
		s.notify()
		return err
	}
	return nil
}

func (s *CallSession) CreatePeer(peerId string, initiator bool, signal string) error {
	return s.manager.CreatePeer(peerId, initiator, signal)
}

func (s *CallSession) SignalPeer(peerId, signal string) error {
	return s.manager.SignalPeer(peerId, signal)
}

func (s *CallSession) RemovePeer(peerId string) { s.manager.RemovePeer(peerId) }

func (s *CallSession) SendData(peerId string, data any) error {
	return s.manager.SendData(peerId, data)
}

func (s *CallSession) Broadcast(data any) { s.manager.Broadcast(data) }

func (s *CallSession) ToggleAudio(on bool)  { s.manager.ToggleAudio(on) }
func (s *CallSession) ToggleVideo(on bool)  { s.manager.ToggleVideo(on) }
func (s *CallSession) IsAudioEnabled() bool { return s.manager.IsAudioEnabled() }
func (s *CallSession) IsVideoEnabled() bool { return s.manager.IsVideoEnabled() }

func (s *CallSession) ShareScreen() error {
	if err := s.manager.ShareScreen(); err != nil {
		s.setErr(err)
		s.notify()
		return err
	}
	return nil
}

func (s *CallSession) StopScreenShare()      { s.manager.StopScreenShare() }
func (s *CallSession) IsScreenSharing() bool { return s.manager.IsScreenSharing() }

// Close tears the call down. The manager cleanup runs no matter how
// far the session got.
func (s *CallSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.subs = make(map[int]func())
	s.mu.Unlock()
	s.manager.Cleanup()
}
