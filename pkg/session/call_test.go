package session

import (
	"context"
	"errors"
	"testing"

	"github.com/classkit/collab/pkg/config"
	"github.com/classkit/collab/pkg/logger"
	"github.com/classkit/collab/pkg/relay"
	"github.com/classkit/collab/pkg/rtc"
)

type deniedCapturer struct{}

func (deniedCapturer) CaptureMedia(rtc.MediaConstraints) (*rtc.LocalMedia, error) {
	return nil, errors.New("permission denied")
}
func (deniedCapturer) CaptureDisplay() (*rtc.ScreenCapture, error) {
	return nil, errors.New("permission denied")
}

func newCallSession(t *testing.T) *CallSession {
	t.Helper()
	m, err := rtc.NewManager(config.DefaultWebrtc(), logger.Default())
	if err != nil {
		t.Fatal(err)
	}
	return NewCallSession(m, logger.Default())
}

func TestCallSessionCapturesMediaError(t *testing.T) {
	s := newCallSession(t)
	defer s.Close()
	s.manager.SetCapturer(deniedCapturer{})

	var fromEvents error
	s.Start(rtc.Events{OnError: func(err error) { fromEvents = err }})

	changes := 0
	defer s.OnChange(func() { changes++ })()

	err := s.OpenMedia(rtc.MediaConstraints{Audio: true})
	if err == nil {
		t.Fatal("expected a media error")
	}
	var me *rtc.MediaError
	if !errors.As(err, &me) {
		t.Errorf("want *rtc.MediaError, got %T", err)
	}
	if s.Err() == nil {
		t.Error("error not captured in session state")
	}
	if fromEvents == nil {
		t.Error("error not surfaced through the event callback")
	}
	if changes == 0 {
		t.Error("no change notification")
	}

	s.ClearErr()
	if s.Err() != nil {
		t.Error("ClearErr did not reset")
	}
}

func TestCallSessionScreenError(t *testing.T) {
	s := newCallSession(t)
	defer s.Close()
	s.manager.SetCapturer(deniedCapturer{})
	s.Start(rtc.Events{})

	err := s.ShareScreen()
	var se *rtc.ScreenError
	if !errors.As(err, &se) {
		t.Fatalf("want *rtc.ScreenError, got %v", err)
	}
	if s.IsScreenSharing() {
		t.Error("sharing after a failed capture")
	}
}

func TestCallSessionDefaults(t *testing.T) {
	s := newCallSession(t)
	s.Start(rtc.Events{})
	if s.IsAudioEnabled() || s.IsVideoEnabled() {
		t.Error("media flags true without media")
	}
	if n := len(s.Peers()); n != 0 {
		t.Errorf("expected no peers, got %v", n)
	}
	s.Close()
	s.Close() // idempotent
}

func TestDocSessionIdle(t *testing.T) {
	s := NewDocSession(nil, config.DefaultSession(), logger.Default())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Doc() != nil {
		t.Error("idle session has a document")
	}
	if s.Status() != relay.Disconnected || s.IsConnected() {
		t.Error("idle session not disconnected")
	}
	if n := len(s.Awareness()); n != 0 {
		t.Errorf("idle awareness: %v entries", n)
	}
	s.Close()
	s.Close()
}
