package api

import (
	"github.com/goccy/go-json"
)

type UserInfo struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type Cursor struct {
	Anchor int `json:"anchor"`
	Head   int `json:"head"`
}

type ChatMessage struct {
	Id        string `json:"id"`
	UserId    string `json:"uid"`
	UserName  string `json:"name"`
	Text      string `json:"text"`
	Timestamp int64  `json:"ts"`
	RoomId    string `json:"room,omitempty"`
}

type TypingSignal struct {
	UserId   string `json:"uid"`
	UserName string `json:"name"`
	Typing   bool   `json:"typing"`
}

// SignalEnvelope routes peer negotiation blobs (offer/answer/ice in a
// base64 wrapper) between two participants of a room through the relay.
type SignalEnvelope struct {
	From string `json:"from"`
	To   string `json:"to"`
	Data string `json:"data"`
}

type UpdatePayload struct {
	Update []byte `json:"u"`
}

type BacklogPayload struct {
	Updates [][]byte `json:"us"`
}

// AwarenessPayload carries one client's ephemeral state; a nil State
// announces the client's departure.
type AwarenessPayload struct {
	ClientId string          `json:"cid"`
	Clock    uint64          `json:"clock"`
	State    json.RawMessage `json:"state,omitempty"`
}

type AwarenessState struct {
	User   UserInfo `json:"user"`
	Cursor *Cursor  `json:"cursor,omitempty"`
}
