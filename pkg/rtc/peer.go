package rtc

import (
	"github.com/classkit/collab/pkg/logger"
	"github.com/pion/webrtc/v3"
)

// Peer is one point-to-point connection to a remote participant:
// optional media senders plus one data channel.
type Peer struct {
	id   string
	conn *webrtc.PeerConnection
	log  *logger.Logger

	data        *webrtc.DataChannel
	audioSender *webrtc.RTPSender
	videoSender *webrtc.RTPSender

	remoteTracks []*webrtc.TrackRemote
}

func (p *Peer) Id() string { return p.id }

// VideoSender exposes the outbound video sender for in-place track
// replacement (screen share).
func (p *Peer) VideoSender() *webrtc.RTPSender { return p.videoSender }

func (p *Peer) RemoteTracks() []*webrtc.TrackRemote { return p.remoteTracks }

// send pushes bytes through the data channel; text payloads keep the
// text framing so browsers read strings.
func (p *Peer) send(data []byte, text bool) error {
	if p.data == nil {
		return nil
	}
	if text {
		return p.data.SendText(string(data))
	}
	return p.data.Send(data)
}

func (p *Peer) attachMedia(m *LocalMedia) error {
	if m == nil {
		return nil
	}
	if m.Audio != nil {
		sender, err := p.conn.AddTrack(m.Audio.Track())
		if err != nil {
			return err
		}
		p.audioSender = sender
	}
	if m.Video != nil {
		sender, err := p.conn.AddTrack(m.Video.Track())
		if err != nil {
			return err
		}
		p.videoSender = sender
	}
	return nil
}

func (p *Peer) destroy() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Close(); err != nil {
		p.log.Error().Err(err).Msg("couldn't close peer connection")
	}
}
