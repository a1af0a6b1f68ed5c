package collab

import (
	"sort"

	"github.com/classkit/collab/pkg/api"
	"github.com/goccy/go-json"
)

// Entry is one participant of the room as seen through awareness.
type Entry struct {
	ClientId string
	User     api.UserInfo
	Cursor   *api.Cursor
}

// applyAwareness merges one remote awareness payload into the peer
// table; a nil state removes the peer. Stale clocks are dropped.
func (d *Doc) applyAwareness(p api.AwarenessPayload) {
	d.mu.Lock()
	if d.doc == nil || p.ClientId == "" || p.ClientId == d.clientId {
		d.mu.Unlock()
		return
	}
	if cur, ok := d.peers[p.ClientId]; ok && p.Clock < cur.clock {
		d.mu.Unlock()
		return
	}
	if p.State == nil {
		delete(d.peers, p.ClientId)
	} else {
		var st api.AwarenessState
		if err := json.Unmarshal(p.State, &st); err != nil {
			d.mu.Unlock()
			return
		}
		d.peers[p.ClientId] = peerState{clock: p.Clock, state: st}
	}
	subs, entries := d.awarenessView()
	d.mu.Unlock()

	for _, fn := range subs {
		fn(entries)
	}
}

// GetAwareness lists the known participants, the local one included.
// Entries that never carried user info are excluded. Returns nil when
// the document is not initialized.
func (d *Doc) GetAwareness() []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return nil
	}
	_, entries := d.awarenessView()
	return entries
}

// SetCursor merges the cursor into the local awareness entry, leaving
// the user info as is, and publishes it.
func (d *Doc) SetCursor(anchor, head int) error {
	d.mu.Lock()
	if d.doc == nil {
		d.mu.Unlock()
		return ErrNotInitialized
	}
	c := api.Cursor{Anchor: anchor, Head: head}
	d.state.Cursor = &c
	d.clock++
	p := d.localPayload()
	l := d.link
	subs, entries := d.awarenessView()
	d.mu.Unlock()

	if l != nil {
		_ = l.SendAwareness(p)
	}
	for _, fn := range subs {
		fn(entries)
	}
	return nil
}

// OnAwarenessChange subscribes to awareness snapshots; any number of
// subscribers may coexist. The returned function unsubscribes.
func (d *Doc) OnAwarenessChange(fn func([]Entry)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextSub
	d.nextSub++
	d.awSubs[id] = fn
	return func() {
		d.mu.Lock()
		delete(d.awSubs, id)
		d.mu.Unlock()
	}
}

// awarenessView must be called under d.mu.
func (d *Doc) awarenessView() ([]func([]Entry), []Entry) {
	entries := make([]Entry, 0, len(d.peers)+1)
	add := func(id string, st api.AwarenessState) {
		if st.User.Id == "" && st.User.Name == "" {
			return
		}
		entries = append(entries, Entry{ClientId: id, User: st.User, Cursor: st.Cursor})
	}
	add(d.clientId, d.state)
	for id, p := range d.peers {
		add(id, p.state)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ClientId < entries[j].ClientId })

	subs := make([]func([]Entry), 0, len(d.awSubs))
	for _, fn := range d.awSubs {
		subs = append(subs, fn)
	}
	return subs, entries
}
