package session

import (
	"testing"

	"github.com/classkit/collab/pkg/api"
	"github.com/classkit/collab/pkg/logger"
	"github.com/goccy/go-json"
)

// chatPipe delivers every broadcast to all attached sessions, the
// sender included, like a peer mesh that echoes frames back.
type chatPipe struct {
	peers []*ChatSession
}

func (p *chatPipe) Broadcast(data any) {
	b, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	for _, s := range p.peers {
		s.Feed("peer", api.DecodeData(b))
	}
}

func newChatPair(t *testing.T) (*ChatSession, *ChatSession) {
	t.Helper()
	pipe := &chatPipe{}
	a := NewChatSession(pipe, api.UserInfo{Id: "u1", Name: "Ann"}, "r1", logger.Default())
	b := NewChatSession(pipe, api.UserInfo{Id: "u2", Name: "Ben"}, "r1", logger.Default())
	pipe.peers = []*ChatSession{a, b}
	return a, b
}

func TestChatLocalEcho(t *testing.T) {
	a, b := newChatPair(t)

	changes := 0
	defer a.OnChange(func() { changes++ })()

	sent := a.SendMessage("hi")
	if sent.Id == "" || sent.UserId != "u1" {
		t.Fatalf("bad message: %+v", sent)
	}

	// the sender sees exactly one copy even though the pipe echoed
	// the broadcast back to it
	msgs := a.Messages()
	if len(msgs) != 1 || msgs[0].Text != "hi" {
		t.Fatalf("sender history: %+v", msgs)
	}
	if changes != 1 {
		t.Errorf("expected a single change notification, got %v", changes)
	}

	got := b.Messages()
	if len(got) != 1 || got[0].Text != "hi" || got[0].UserName != "Ann" {
		t.Fatalf("receiver history: %+v", got)
	}
}

func TestChatDuplicateDropped(t *testing.T) {
	a, b := newChatPair(t)
	msg := a.SendMessage("once")

	// a peer re-relays the same message
	frame, _ := (api.Out{T: api.Chat, Payload: msg}).Encode()
	b.Feed("peer", api.DecodeData(frame))

	if got := b.Messages(); len(got) != 1 {
		t.Fatalf("duplicate not dropped: %v messages", len(got))
	}
}

func TestChatTyping(t *testing.T) {
	a, b := newChatPair(t)

	a.SetTyping(true)
	if got := b.Typing(); len(got) != 1 || got[0] != "Ann" {
		t.Fatalf("typing view = %v", got)
	}
	if got := a.Typing(); len(got) != 0 {
		t.Fatalf("own typing echoed back: %v", got)
	}

	// a message from the typist clears the indicator
	a.SendMessage("done")
	if got := b.Typing(); len(got) != 0 {
		t.Fatalf("typing not cleared by message: %v", got)
	}

	a.SetTyping(true)
	a.SetTyping(false)
	if got := b.Typing(); len(got) != 0 {
		t.Fatalf("typing stop ignored: %v", got)
	}
}

func TestChatIgnoresRawPayloads(t *testing.T) {
	a, _ := newChatPair(t)
	a.Feed("peer", api.DecodeData([]byte("not a packet")))
	if len(a.Messages()) != 0 {
		t.Error("raw payload turned into a message")
	}
}
