package rtc

import (
	"sync/atomic"

	"github.com/gofrs/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

type MediaConstraints struct {
	Audio bool
	Video bool
}

// LocalTrack is one outbound media track with a mute flag. Toggling
// the flag applies to every peer connection the track was added to,
// since they all share the same track object; no renegotiation runs.
type LocalTrack struct {
	track   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
}

func newLocalTrack(mime, id, stream string) (*LocalTrack, error) {
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, id, stream)
	if err != nil {
		return nil, err
	}
	t := &LocalTrack{track: track}
	t.enabled.Store(true)
	return t, nil
}

func (t *LocalTrack) Enabled() bool                         { return t.enabled.Load() }
func (t *LocalTrack) SetEnabled(on bool)                    { t.enabled.Store(on) }
func (t *LocalTrack) Track() *webrtc.TrackLocalStaticSample { return t.track }

// WriteSample feeds one media sample into the track; samples are
// dropped while the track is disabled.
func (t *LocalTrack) WriteSample(s media.Sample) error {
	if !t.enabled.Load() {
		return nil
	}
	return t.track.WriteSample(s)
}

// LocalMedia is the local capture state shared by all peer
// connections of one Manager.
type LocalMedia struct {
	Audio *LocalTrack
	Video *LocalTrack
}

func (m *LocalMedia) stop() {
	if m.Audio != nil {
		m.Audio.SetEnabled(false)
	}
	if m.Video != nil {
		m.Video.SetEnabled(false)
	}
}

// ScreenCapture is an active display capture; Ended fires when the
// capture source goes away (e.g. the shared window closes).
type ScreenCapture struct {
	Track   *LocalTrack
	onEnded atomic.Pointer[func()]
}

func (s *ScreenCapture) OnEnded(fn func()) { s.onEnded.Store(&fn) }

// End signals that the capture source stopped on its own.
func (s *ScreenCapture) End() {
	if fn := s.onEnded.Load(); fn != nil {
		(*fn)()
	}
}

// Capturer acquires local media. The default produces sample-fed
// tracks that application code pumps frames into; tests and headless
// deployments inject their own.
type Capturer interface {
	CaptureMedia(c MediaConstraints) (*LocalMedia, error)
	CaptureDisplay() (*ScreenCapture, error)
}

// TrackCapturer is the default Capturer: Opus audio and VP8 video
// sample tracks.
type TrackCapturer struct{}

func (TrackCapturer) CaptureMedia(c MediaConstraints) (*LocalMedia, error) {
	m := &LocalMedia{}
	sid := uuid.Must(uuid.NewV4()).String()
	if c.Audio {
		t, err := newLocalTrack(webrtc.MimeTypeOpus, "audio", sid)
		if err != nil {
			return nil, err
		}
		m.Audio = t
	}
	if c.Video {
		t, err := newLocalTrack(webrtc.MimeTypeVP8, "video", sid)
		if err != nil {
			return nil, err
		}
		m.Video = t
	}
	return m, nil
}

func (TrackCapturer) CaptureDisplay() (*ScreenCapture, error) {
	t, err := newLocalTrack(webrtc.MimeTypeVP8, "screen", uuid.Must(uuid.NewV4()).String())
	if err != nil {
		return nil, err
	}
	return &ScreenCapture{Track: t}, nil
}
