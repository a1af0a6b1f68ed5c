// Package api defines the wire API shared by the relay protocol and
// the peer data channels.
//
// Each message (relay frame or data-channel broadcast) is a JSON-encoded
// "packet" of the following structure:
//
//	t - (required) one of the predefined unique packet types;
//	p - (optional) packet payload with arbitrary data.
//
// The packets differentiate by their predefined types with which it is
// possible to unwrap the payload into distinct request/response data
// structures.
//
// Example:
//
//	{"t":10,"p":{"id":"b3c1...","uid":"u1","name":"Ann","text":"hi"}}
package api

import (
	"github.com/goccy/go-json"
)

type PT uint8

type In struct {
	T       PT              `json:"t"`
	Payload json.RawMessage `json:"p,omitempty"` // should be json.RawMessage for 2-pass unmarshal
}

func (i In) GetPayload() []byte { return i.Payload }
func (i In) GetType() PT        { return i.T }

type Out struct {
	T       PT  `json:"t"`
	Payload any `json:"p,omitempty"`
}

func (o Out) Encode() ([]byte, error) { return json.Marshal(o) }

// Packet codes:
//
//	1x - broadcast (data channel) codes
//	2x - signaling codes
//	3x - document relay codes
const (
	PtUnknown PT = 0

	Chat   PT = 10
	Typing PT = 11

	Signal PT = 20

	DocUpdate  PT = 30
	DocBacklog PT = 31
	Awareness  PT = 32
)

func (p PT) String() string {
	switch p {
	case Chat:
		return "Chat"
	case Typing:
		return "Typing"
	case Signal:
		return "Signal"
	case DocUpdate:
		return "DocUpdate"
	case DocBacklog:
		return "DocBacklog"
	case Awareness:
		return "Awareness"
	default:
		return "Unknown"
	}
}

func Unwrap[T any](data []byte) *T {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil
	}
	return out
}
