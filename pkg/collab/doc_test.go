package collab

import (
	"context"
	"sync"
	"testing"

	"github.com/classkit/collab/pkg/api"
	"github.com/classkit/collab/pkg/logger"
	"github.com/classkit/collab/pkg/relay"
)

// testWire is an in-memory stand-in for a relay room: it keeps the
// update backlog, the awareness table, and delivers frames between
// every dialed link synchronously.
type testWire struct {
	mu      sync.Mutex
	links   []*testLink
	backlog [][]byte
	aware   map[string]api.AwarenessPayload
}

type testLink struct {
	wire   *testWire
	id     string
	h      relay.Handlers
	closed bool
}

func newTestWire() *testWire {
	return &testWire{aware: make(map[string]api.AwarenessPayload)}
}

func (w *testWire) dial(_ context.Context, _ Config, clientId string, h relay.Handlers, _ *logger.Logger) (link, error) {
	w.mu.Lock()
	l := &testLink{wire: w, id: clientId, h: h}
	w.links = append(w.links, l)
	backlog := append([][]byte(nil), w.backlog...)
	states := make([]api.AwarenessPayload, 0, len(w.aware))
	for _, p := range w.aware {
		states = append(states, p)
	}
	w.mu.Unlock()

	if h.OnBacklog != nil {
		h.OnBacklog(backlog)
	}
	for _, p := range states {
		if h.OnAwareness != nil {
			h.OnAwareness(p)
		}
	}
	return l, nil
}

func (w *testWire) others(from *testLink) (out []*testLink) {
	for _, l := range w.links {
		if l != from && !l.closed {
			out = append(out, l)
		}
	}
	return
}

func (l *testLink) SendUpdate(update []byte) error {
	w := l.wire
	w.mu.Lock()
	w.backlog = append(w.backlog, update)
	peers := w.others(l)
	w.mu.Unlock()
	for _, p := range peers {
		if p.h.OnUpdate != nil {
			p.h.OnUpdate(update)
		}
	}
	return nil
}

func (l *testLink) SendAwareness(p api.AwarenessPayload) error {
	w := l.wire
	w.mu.Lock()
	if p.State == nil {
		delete(w.aware, p.ClientId)
	} else {
		w.aware[p.ClientId] = p
	}
	peers := w.others(l)
	w.mu.Unlock()
	for _, pl := range peers {
		if pl.h.OnAwareness != nil {
			pl.h.OnAwareness(p)
		}
	}
	return nil
}

func (l *testLink) Status() relay.Status {
	if l.closed {
		return relay.Disconnected
	}
	return relay.Connected
}

func (l *testLink) Close() {
	w := l.wire
	w.mu.Lock()
	if l.closed {
		w.mu.Unlock()
		return
	}
	l.closed = true
	prev := w.aware[l.id]
	delete(w.aware, l.id)
	peers := w.others(l)
	w.mu.Unlock()
	dep := api.AwarenessPayload{ClientId: l.id, Clock: prev.Clock + 1}
	for _, p := range peers {
		if p.h.OnAwareness != nil {
			p.h.OnAwareness(dep)
		}
	}
}

func dialTestDoc(t *testing.T, w *testWire, user User) *Doc {
	t.Helper()
	d := NewDoc(logger.Default())
	d.dial = w.dial
	if err := d.Initialize(context.Background(), Config{DocId: "doc-1", User: user}); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestDocsConverge(t *testing.T) {
	w := newTestWire()
	a := dialTestDoc(t, w, User{Id: "u1", Name: "Ann"})
	b := dialTestDoc(t, w, User{Id: "u2", Name: "Ben"})

	ta, err := a.GetText("")
	if err != nil {
		t.Fatal(err)
	}
	tb, _ := b.GetText("")

	ta.Insert(0, "foo")
	if got := tb.String(); got != "foo" {
		t.Fatalf("b did not receive the edit: %q", got)
	}
	tb.Insert(tb.Len(), "bar")
	if ta.String() != "foobar" || tb.String() != "foobar" {
		t.Fatalf("diverged: %q vs %q", ta.String(), tb.String())
	}
	if got := a.ToJSON()["content"]; got != "foobar" {
		t.Errorf("ToJSON content = %v", got)
	}
}

func TestLateJoinerGetsBacklog(t *testing.T) {
	w := newTestWire()
	a := dialTestDoc(t, w, User{Id: "u1", Name: "Ann"})
	ta, _ := a.GetText("")
	ta.Insert(0, "hello")

	c := dialTestDoc(t, w, User{Id: "u3", Name: "Cam"})
	tc, _ := c.GetText("")
	if got := tc.String(); got != "hello" {
		t.Fatalf("late joiner state = %q, want %q", got, "hello")
	}
}

func TestAwarenessDoesNotTouchContent(t *testing.T) {
	w := newTestWire()
	a := dialTestDoc(t, w, User{Id: "u1", Name: "Ann"})
	b := dialTestDoc(t, w, User{Id: "u2", Name: "Ben"})

	updates := 0
	defer a.OnUpdate(func([]byte) { updates++ })()

	for i := 0; i < 5; i++ {
		if err := b.SetCursor(i, i); err != nil {
			t.Fatal(err)
		}
	}
	if updates != 0 {
		t.Errorf("cursor moves produced %v document updates", updates)
	}

	var ben *Entry
	for _, e := range a.GetAwareness() {
		if e.User.Id == "u2" {
			e := e
			ben = &e
		}
	}
	if ben == nil {
		t.Fatal("b missing from awareness")
	}
	if ben.Cursor == nil || ben.Cursor.Anchor != 4 {
		t.Errorf("cursor not merged: %+v", ben.Cursor)
	}
}

func TestNotInitialized(t *testing.T) {
	check := func(t *testing.T, d *Doc) {
		t.Helper()
		if _, err := d.GetText(""); err != ErrNotInitialized {
			t.Errorf("GetText err = %v", err)
		}
		if _, err := d.GetMap("meta"); err != ErrNotInitialized {
			t.Errorf("GetMap err = %v", err)
		}
		if _, err := d.GetArray("items"); err != ErrNotInitialized {
			t.Errorf("GetArray err = %v", err)
		}
		if err := d.SetCursor(0, 0); err != ErrNotInitialized {
			t.Errorf("SetCursor err = %v", err)
		}
		if _, err := d.CreateUndoManager(nil); err != ErrNotInitialized {
			t.Errorf("CreateUndoManager err = %v", err)
		}
		if d.ToJSON() != nil {
			t.Error("ToJSON not nil")
		}
		if d.GetAwareness() != nil {
			t.Error("GetAwareness not nil")
		}
		if d.Status() != relay.Disconnected || d.IsConnected() {
			t.Error("should report disconnected")
		}
	}

	d := NewDoc(logger.Default())
	check(t, d)

	w := newTestWire()
	d.dial = w.dial
	if err := d.Initialize(context.Background(), Config{DocId: "doc-1"}); err != nil {
		t.Fatal(err)
	}
	if !d.IsConnected() {
		t.Error("not connected after Initialize")
	}
	d.Disconnect()
	check(t, d)
	d.Disconnect() // idempotent
}

func TestDisconnectAnnouncesDeparture(t *testing.T) {
	w := newTestWire()
	a := dialTestDoc(t, w, User{Id: "u1", Name: "Ann"})
	b := dialTestDoc(t, w, User{Id: "u2", Name: "Ben"})

	if n := len(a.GetAwareness()); n != 2 {
		t.Fatalf("expected 2 participants, got %v", n)
	}
	b.Disconnect()
	for _, e := range a.GetAwareness() {
		if e.User.Id == "u2" {
			t.Fatal("departed peer still present")
		}
	}
}

func TestAwarenessSubscribers(t *testing.T) {
	w := newTestWire()
	a := dialTestDoc(t, w, User{Id: "u1", Name: "Ann"})
	b := dialTestDoc(t, w, User{Id: "u2", Name: "Ben"})

	first, second := 0, 0
	off := a.OnAwarenessChange(func([]Entry) { first++ })
	defer a.OnAwarenessChange(func([]Entry) { second++ })()

	_ = b.SetCursor(1, 1)
	if first != 1 || second != 1 {
		t.Fatalf("both subscribers should fire once: %v %v", first, second)
	}
	off()
	_ = b.SetCursor(2, 2)
	if first != 1 {
		t.Error("unsubscribed callback fired")
	}
	if second != 2 {
		t.Errorf("remaining subscriber missed the change: %v", second)
	}
}

func TestDefaultColorAssigned(t *testing.T) {
	w := newTestWire()
	a := dialTestDoc(t, w, User{Id: "u1", Name: "Ann"})
	entries := a.GetAwareness()
	if len(entries) != 1 {
		t.Fatalf("expected the local entry, got %v", len(entries))
	}
	color := entries[0].User.Color
	found := false
	for _, c := range palette {
		if c == color {
			found = true
		}
	}
	if !found {
		t.Errorf("color %q not from the palette", color)
	}
}

func TestUndoReplicates(t *testing.T) {
	w := newTestWire()
	a := dialTestDoc(t, w, User{Id: "u1", Name: "Ann"})
	b := dialTestDoc(t, w, User{Id: "u2", Name: "Ben"})

	ta, _ := a.GetText("")
	um, err := a.CreateUndoManager(ta)
	if err != nil {
		t.Fatal(err)
	}
	ta.Insert(0, "oops")
	if !um.Undo() {
		t.Fatal("nothing to undo")
	}
	tb, _ := b.GetText("")
	if ta.String() != "" || tb.String() != "" {
		t.Fatalf("undo not replicated: %q vs %q", ta.String(), tb.String())
	}
}
