package session

import (
	"context"
	"sync"
	"time"

	"github.com/classkit/collab/pkg/collab"
	"github.com/classkit/collab/pkg/config"
	"github.com/classkit/collab/pkg/logger"
	"github.com/classkit/collab/pkg/relay"
)

// DocSession owns one collaborative document for the duration of a
// session: it keeps a cached awareness view, polls the connection
// status, and tears everything down in order on Close. A nil config
// produces an idle session where every accessor reports the
// uninitialized state.
type DocSession struct {
	conf *collab.Config
	sess config.Session
	doc  *collab.Doc
	log  *logger.Logger

	mu        sync.Mutex
	awareness []collab.Entry
	status    relay.Status
	closed    bool

	unsub  func()
	ticker *time.Ticker
	done   chan struct{}

	subs    map[int]func()
	nextSub int
}

func NewDocSession(conf *collab.Config, sess config.Session, log *logger.Logger) *DocSession {
	return &DocSession{
		conf: conf,
		sess: sess,
		log:  log,
		subs: make(map[int]func()),
	}
}

// Start connects the document. Idle (nil config) sessions start
// successfully and stay inert.
func (s *DocSession) Start(ctx context.Context) error {
	if s.conf == nil {
		return nil
	}
	doc := collab.NewDoc(s.log)
	if err := doc.Initialize(ctx, *s.conf); err != nil {
		return err
	}

	s.mu.Lock()
	s.doc = doc
	s.status = doc.Status()
	s.awareness = doc.GetAwareness()
	s.mu.Unlock()

	s.unsub = doc.OnAwarenessChange(func(entries []collab.Entry) {
		s.mu.Lock()
		s.awareness = entries
		s.mu.Unlock()
		s.notify()
	})

	s.ticker = time.NewTicker(s.sess.StatusPollInterval)
	s.done = make(chan struct{})
	go s.pollStatus(doc)
	return nil
}

func (s *DocSession) pollStatus(doc *collab.Doc) {
	for {
		select {
		case <-s.done:
			return
		case <-s.ticker.C:
			st := doc.Status()
			s.mu.Lock()
			changed := st != s.status
			s.status = st
			s.mu.Unlock()
			if changed {
				s.notify()
			}
		}
	}
}

// Doc exposes the underlying document; nil while idle.
func (s *DocSession) Doc() *collab.Doc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

func (s *DocSession) Status() relay.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return relay.Disconnected
	}
	return s.status
}

func (s *DocSession) IsConnected() bool { return s.Status() == relay.Connected }

// Awareness returns the participant view as of the last change event.
func (s *DocSession) Awareness() []collab.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]collab.Entry(nil), s.awareness...)
}

func (s *DocSession) OnChange(fn func()) func() {
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

func (s *DocSession) notify() {
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

// Close stops the status poll, drops the awareness subscription and
// disconnects the document, in that order.
func (s *DocSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	doc := s.doc
	s.doc = nil
	s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.done)
	}
	if s.unsub != nil {
		s.unsub()
	}
	if doc != nil {
		doc.Disconnect()
	}
}
