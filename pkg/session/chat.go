package session

import (
	"sort"
	"sync"
	"time"

	"github.com/classkit/collab/pkg/api"
	"github.com/classkit/collab/pkg/logger"
	"github.com/gofrs/uuid"
)

// broadcaster is the slice of the peer manager the chat needs.
type broadcaster interface {
	Broadcast(data any)
}

// ChatSession carries room chat over the call's data channels. Sent
// messages appear locally at once; the inbound copy of an own message
// (relayed back by a misbehaving peer) is dropped by message id.
type ChatSession struct {
	out  broadcaster
	self api.UserInfo
	room string
	log  *logger.Logger

	mu       sync.Mutex
	messages []api.ChatMessage
	seen     map[string]struct{}
	typing   map[string]string // user id -> name
	subs     map[int]func()
	nextSub  int
}

func NewChatSession(out broadcaster, self api.UserInfo, room string, log *logger.Logger) *ChatSession {
	return &ChatSession{
		out:    out,
		self:   self,
		room:   room,
		log:    log,
		seen:   make(map[string]struct{}),
		typing: make(map[string]string),
		subs:   make(map[int]func()),
	}
}

// SendMessage appends the message locally and broadcasts it to every
// peer. The local append is canonical.
func (s *ChatSession) SendMessage(text string) api.ChatMessage {
	msg := api.ChatMessage{
		Id:        uuid.Must(uuid.NewV4()).String(),
		UserId:    s.self.Id,
		UserName:  s.self.Name,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
		RoomId:    s.room,
	}
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.seen[msg.Id] = struct{}{}
	s.mu.Unlock()
	s.notify()

	s.out.Broadcast(api.Out{T: api.Chat, Payload: msg})
	return msg
}

// SetTyping announces the local typing state to the room.
func (s *ChatSession) SetTyping(on bool) {
	s.out.Broadcast(api.Out{T: api.Typing, Payload: api.TypingSignal{
		UserId: s.self.Id, UserName: s.self.Name, Typing: on,
	}})
}

// Feed consumes one inbound data-channel payload, typically wired to
// the manager's OnData. Raw (non-packet) payloads are not chat and
// are ignored here.
func (s *ChatSession) Feed(peerId string, data api.Data) {
	if data.IsRaw() {
		return
	}
	switch data.Packet.T {
	case api.Chat:
		msg := api.Unwrap[api.ChatMessage](data.Packet.Payload)
		if msg == nil {
			return
		}
		s.mu.Lock()
		if _, dup := s.seen[msg.Id]; dup {
			s.mu.Unlock()
			return
		}
		s.seen[msg.Id] = struct{}{}
		s.messages = append(s.messages, *msg)
		delete(s.typing, msg.UserId)
		s.mu.Unlock()
		s.notify()
	case api.Typing:
		t := api.Unwrap[api.TypingSignal](data.Packet.Payload)
		if t == nil || t.UserId == s.self.Id {
			return
		}
		s.mu.Lock()
		if t.Typing {
			s.typing[t.UserId] = t.UserName
		} else {
			delete(s.typing, t.UserId)
		}
		s.mu.Unlock()
		s.notify()
	}
}

func (s *ChatSession) Messages() []api.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.ChatMessage(nil), s.messages...)
}

// Typing lists the names of the users currently typing, self excluded.
func (s *ChatSession) Typing() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.typing))
	for _, name := range s.typing {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *ChatSession) OnChange(fn func()) func() {
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

func (s *ChatSession) notify() {
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

// Close drops the subscriber set; chat history stays readable.
func (s *ChatSession) Close() {
	s.mu.Lock()
	s.subs = make(map[int]func())
	s.mu.Unlock()
}
