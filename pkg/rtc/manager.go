package rtc

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/classkit/collab/pkg/api"
	"github.com/classkit/collab/pkg/com"
	"github.com/classkit/collab/pkg/config"
	"github.com/classkit/collab/pkg/logger"
	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v3"
)

// Events is the single callback set a session registers with a
// Manager; every field is optional.
type Events struct {
	OnPeerJoined func(peerId string)
	OnPeerLeft   func(peerId string)
	OnSignal     func(peerId string, signal string)
	OnTrack      func(peerId string, track *webrtc.TrackRemote)
	OnData       func(peerId string, data api.Data)
	OnError      func(err error)
}

var errNoSignal = errors.New("a non-initiating peer needs the remote offer")

// Manager owns the full set of peer connections of one call plus the
// local media shared between them. It is caller-owned: construct one
// per call session, never share it across sessions.
type Manager struct {
	api      *ApiFactory
	capturer Capturer
	log      *logger.Logger

	peers  com.Map[string, *Peer]
	events Events

	mu     sync.Mutex
	media  *LocalMedia
	screen *ScreenCapture

	// gen guards against a media capture resolving after Cleanup
	gen atomic.Int64
}

func NewManager(conf config.Webrtc, log *logger.Logger) (*Manager, error) {
	factory, err := NewApiFactory(conf, log, nil)
	if err != nil {
		return nil, err
	}
	return &Manager{
		api:      factory,
		capturer: TrackCapturer{},
		log:      log.Extend(log.With().Str("m", "rtc")),
		peers:    com.NewMap[string, *Peer](),
	}, nil
}

// SetCapturer swaps the media source; must happen before any capture.
func (m *Manager) SetCapturer(c Capturer) { m.capturer = c }

// Initialize registers the callback set. Re-initializing while peers
// exist is a caller error; Cleanup first.
func (m *Manager) Initialize(events Events) {
	m.mu.Lock()
	m.events = events
	m.mu.Unlock()
}

func (m *Manager) emitError(err error) {
	if m.events.OnError != nil {
		m.events.OnError(err)
	}
}

// OpenLocalMedia acquires local audio/video and stores it for every
// future peer connection. A failure is surfaced twice: through the
// returned error and through OnError, so both the awaiting caller and
// the event-driven path see it.
func (m *Manager) OpenLocalMedia(c MediaConstraints) (*LocalMedia, error) {
	gen := m.gen.Load()
	media, err := m.capturer.CaptureMedia(c)
	if err != nil {
		mediaErr := &MediaError{cause: err}
		m.emitError(mediaErr)
		return nil, mediaErr
	}
	m.mu.Lock()
	if m.gen.Load() != gen {
		// Cleanup ran while the capture prompt was pending; never
		// attach the late stream, stop it right away.
		m.mu.Unlock()
		media.stop()
		return nil, &MediaError{cause: errors.New("capture resolved after cleanup")}
	}
	m.media = media
	m.mu.Unlock()
	return media, nil
}

// CloseLocalMedia stops and drops the local media; idempotent.
func (m *Manager) CloseLocalMedia() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.media != nil {
		m.media.stop()
		m.media = nil
	}
}

// CreatePeer opens one connection to a remote participant. The
// initiator creates the data channel and the offer; the receiving
// side must pass the remote offer in signal.
func (m *Manager) CreatePeer(peerId string, initiator bool, signal string) error {
	if !initiator && signal == "" {
		return errNoSignal
	}
	conn, err := m.api.NewPeer()
	if err != nil {
		return err
	}
	peer := &Peer{
		id:   peerId,
		conn: conn,
		log:  m.log.Extend(m.log.With().Str("peer", peerId)),
	}

	m.mu.Lock()
	localMedia := m.media
	m.mu.Unlock()
	if err := peer.attachMedia(localMedia); err != nil {
		peer.destroy()
		return err
	}

	conn.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		blob, err := Encode(Signal{Kind: SignalIce, Candidate: &init})
		if err != nil {
			peer.log.Error().Err(err).Msg("encode ice")
			return
		}
		if m.events.OnSignal != nil {
			m.events.OnSignal(peerId, blob)
		}
	})

	conn.OnTrack(func(t *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if p, err := m.peers.Find(peerId); err == nil {
			p.remoteTracks = append(p.remoteTracks, t)
		}
		if m.events.OnTrack != nil {
			m.events.OnTrack(peerId, t)
		}
	})

	conn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		peer.log.Debug().Msgf("connection state: %s", state)
		switch state {
		case webrtc.PeerConnectionStateConnected:
			if m.events.OnPeerJoined != nil {
				m.events.OnPeerJoined(peerId)
			}
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			m.dropPeer(peerId)
		}
	})

	if initiator {
		dc, err := conn.CreateDataChannel("collab", nil)
		if err != nil {
			peer.destroy()
			return err
		}
		m.wireDataChannel(peer, dc)
	} else {
		conn.OnDataChannel(func(dc *webrtc.DataChannel) { m.wireDataChannel(peer, dc) })
	}

	m.peers.Put(peerId, peer)

	if initiator {
		offer, err := conn.CreateOffer(nil)
		if err != nil {
			m.RemovePeer(peerId)
			return err
		}
		if err = conn.SetLocalDescription(offer); err != nil {
			m.RemovePeer(peerId)
			return err
		}
		blob, err := Encode(Signal{Kind: SignalOffer, Sdp: &offer})
		if err != nil {
			m.RemovePeer(peerId)
			return err
		}
		if m.events.OnSignal != nil {
			m.events.OnSignal(peerId, blob)
		}
		return nil
	}
	return m.SignalPeer(peerId, signal)
}

func (m *Manager) wireDataChannel(peer *Peer, dc *webrtc.DataChannel) {
	peer.data = dc
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if m.events.OnData != nil {
			m.events.OnData(peer.id, api.DecodeData(msg.Data))
		}
	})
	dc.OnClose(func() { peer.log.Debug().Msg("data channel closed") })
}

// SignalPeer feeds remote negotiation data into an existing peer; a
// no-op for unknown peer ids.
func (m *Manager) SignalPeer(peerId string, signal string) error {
	peer, err := m.peers.Find(peerId)
	if err != nil {
		return nil
	}
	var sig Signal
	if err := Decode(signal, &sig); err != nil {
		return err
	}
	switch sig.Kind {
	case SignalOffer:
		if sig.Sdp == nil {
			return errors.New("offer without sdp")
		}
		if err := peer.conn.SetRemoteDescription(*sig.Sdp); err != nil {
			return err
		}
		answer, err := peer.conn.CreateAnswer(nil)
		if err != nil {
			return err
		}
		if err = peer.conn.SetLocalDescription(answer); err != nil {
			return err
		}
		blob, err := Encode(Signal{Kind: SignalAnswer, Sdp: &answer})
		if err != nil {
			return err
		}
		if m.events.OnSignal != nil {
			m.events.OnSignal(peerId, blob)
		}
	case SignalAnswer:
		if sig.Sdp == nil {
			return errors.New("answer without sdp")
		}
		return peer.conn.SetRemoteDescription(*sig.Sdp)
	case SignalIce:
		if sig.Candidate == nil {
			return errors.New("ice without candidate")
		}
		return peer.conn.AddICECandidate(*sig.Candidate)
	}
	return nil
}

// SendData serializes non-byte payloads to JSON and sends them over
// the peer's data channel.
func (m *Manager) SendData(peerId string, data any) error {
	peer, err := m.peers.Find(peerId)
	if err != nil {
		return err
	}
	raw, text, err := encodeData(data)
	if err != nil {
		return err
	}
	return peer.send(raw, text)
}

// Broadcast sends the payload to every peer, best effort: a failing
// peer doesn't stop the others.
func (m *Manager) Broadcast(data any) {
	raw, text, err := encodeData(data)
	if err != nil {
		m.emitError(err)
		return
	}
	m.peers.ForEach(func(p *Peer) {
		if err := p.send(raw, text); err != nil {
			p.log.Debug().Err(err).Msg("broadcast")
		}
	})
}

func encodeData(data any) (raw []byte, text bool, err error) {
	switch v := data.(type) {
	case []byte:
		return v, false, nil
	case string:
		return []byte(v), true, nil
	default:
		raw, err = json.Marshal(v)
		return raw, true, err
	}
}

// RemovePeer destroys and deregisters a single connection; idempotent.
func (m *Manager) RemovePeer(peerId string) { m.dropPeer(peerId) }

func (m *Manager) dropPeer(peerId string) {
	peer, err := m.peers.Find(peerId)
	if err != nil {
		return
	}
	m.peers.RemoveByKey(peerId)
	peer.destroy()
	if m.events.OnPeerLeft != nil {
		m.events.OnPeerLeft(peerId)
	}
}

func (m *Manager) Peers() []string { return m.peers.Keys() }

func (m *Manager) HasPeer(peerId string) bool { return m.peers.Has(peerId) }

// ToggleAudio flips the shared audio track once for all peers.
func (m *Manager) ToggleAudio(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.media != nil && m.media.Audio != nil {
		m.media.Audio.SetEnabled(enabled)
	}
}

// ToggleVideo flips the shared video track once for all peers.
func (m *Manager) ToggleVideo(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.media != nil && m.media.Video != nil {
		m.media.Video.SetEnabled(enabled)
	}
}

func (m *Manager) IsAudioEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.media != nil && m.media.Audio != nil && m.media.Audio.Enabled()
}

func (m *Manager) IsVideoEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.media != nil && m.media.Video != nil && m.media.Video.Enabled()
}

// ShareScreen captures display media and replaces the outbound video
// track on every peer's sender in place; no renegotiation. When the
// capture source ends on its own, the camera track comes back
// automatically.
func (m *Manager) ShareScreen() error {
	capture, err := m.capturer.CaptureDisplay()
	if err != nil {
		screenErr := &ScreenError{cause: err}
		m.emitError(screenErr)
		return screenErr
	}
	m.mu.Lock()
	m.screen = capture
	m.mu.Unlock()
	capture.OnEnded(func() { m.StopScreenShare() })
	m.peers.ForEach(func(p *Peer) {
		if p.videoSender == nil {
			return
		}
		if err := p.videoSender.ReplaceTrack(capture.Track.Track()); err != nil {
			p.log.Error().Err(err).Msg("replace track")
		}
	})
	return nil
}

// StopScreenShare restores the camera track on every peer's sender.
func (m *Manager) StopScreenShare() {
	m.mu.Lock()
	media := m.media
	m.screen = nil
	m.mu.Unlock()
	m.peers.ForEach(func(p *Peer) {
		if p.videoSender == nil {
			return
		}
		var restore webrtc.TrackLocal
		if media != nil && media.Video != nil {
			restore = media.Video.Track()
		}
		if err := p.videoSender.ReplaceTrack(restore); err != nil {
			p.log.Error().Err(err).Msg("restore track")
		}
	})
}

func (m *Manager) IsScreenSharing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.screen != nil
}

// Cleanup destroys every peer connection and stops the local media.
// Safe to call any number of times; media captures still in flight are
// stopped on arrival instead of being attached.
func (m *Manager) Cleanup() {
	m.gen.Add(1)
	for _, id := range m.peers.Keys() {
		if peer, err := m.peers.Find(id); err == nil {
			m.peers.RemoveByKey(id)
			peer.destroy()
		}
	}
	m.mu.Lock()
	if m.media != nil {
		m.media.stop()
		m.media = nil
	}
	m.screen = nil
	m.mu.Unlock()
}
