package api

import (
	"github.com/goccy/go-json"
)

// Data is the result of decoding one inbound data-channel payload:
// either a typed packet or the raw bytes when they don't parse.
// Exactly one of the two fields is set.
type Data struct {
	Packet *In
	Raw    []byte
}

func (d Data) IsRaw() bool { return d.Packet == nil }

// DecodeData decodes inbound data-channel bytes into a typed packet.
// Payloads that are not valid packets are passed through raw, so the
// caller decides what to do with them instead of losing the data.
func DecodeData(b []byte) Data {
	var in In
	if err := json.Unmarshal(b, &in); err != nil || in.T == PtUnknown {
		return Data{Raw: b}
	}
	return Data{Packet: &in}
}
