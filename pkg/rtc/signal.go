package rtc

import (
	"encoding/base64"

	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v3"
)

type SignalKind string

const (
	SignalOffer  SignalKind = "offer"
	SignalAnswer SignalKind = "answer"
	SignalIce    SignalKind = "ice"
)

// Signal is one unit of connection negotiation data: a session
// description or a trickled ICE candidate, wrapped in base64 so it
// travels safely through any text channel.
type Signal struct {
	Kind      SignalKind                 `json:"k"`
	Sdp       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"ice,omitempty"`
}

// Encode encodes the input in base64
func Encode(obj any) (string, error) {
	b, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Decode decodes the input from base64
func Decode(in string, obj any) error {
	b, err := base64.StdEncoding.DecodeString(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, obj)
}
