package crdt

import (
	"sync"

	"github.com/rs/xid"
)

type container interface {
	// ready reports whether every element the op references is known.
	ready(op Op) bool
	apply(op Op)
	toJSON() any
}

type containerKey struct {
	kind Kind
	name string
}

// Doc is one replicated document: a set of named containers sharing a
// single operation history and one lamport clock.
type Doc struct {
	site  string
	clock uint64

	mu         sync.Mutex
	containers map[containerKey]container
	names      []containerKey // creation order, for stable ToJSON
	seen       map[ID]struct{}
	pending    []Op
	history    []Op
	txn        uint64 // bumped once per public mutation call

	hooks []func(op Op, prev Op) // undo manager capture hooks

	subs    map[int]UpdateHandler
	nextSub int
	queue   []notification
}

type notification struct {
	update []byte
	local  bool
}

// UpdateHandler receives encoded update blobs; local is true for
// updates produced by this replica.
type UpdateHandler func(update []byte, local bool)

func NewDoc(site string) *Doc {
	if site == "" {
		site = xid.New().String()
	}
	return &Doc{
		site:       site,
		containers: make(map[containerKey]container),
		seen:       make(map[ID]struct{}),
		subs:       make(map[int]UpdateHandler),
	}
}

func (d *Doc) Site() string { return d.site }

// Text returns the named shared text, creating it when absent.
func (d *Doc) Text(name string) *Text {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := containerKey{KindText, name}
	if c, ok := d.containers[key]; ok {
		return c.(*Text)
	}
	t := &Text{seq: newSeq(), name: name, doc: d}
	d.put(key, t)
	return t
}

// Map returns the named shared key-value map, creating it when absent.
func (d *Doc) Map(name string) *Map {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := containerKey{KindMap, name}
	if c, ok := d.containers[key]; ok {
		return c.(*Map)
	}
	m := &Map{entries: make(map[string]mapEntry), name: name, doc: d}
	d.put(key, m)
	return m
}

// List returns the named shared ordered list, creating it when absent.
func (d *Doc) List(name string) *List {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := containerKey{KindList, name}
	if c, ok := d.containers[key]; ok {
		return c.(*List)
	}
	l := &List{seq: newSeq(), name: name, doc: d}
	d.put(key, l)
	return l
}

func (d *Doc) put(key containerKey, c container) {
	d.containers[key] = c
	d.names = append(d.names, key)
}

// nextID must be called under d.mu.
func (d *Doc) nextID() ID {
	d.clock++
	return ID{Clock: d.clock, Site: d.site}
}

// begin marks the start of one public mutation call. All ops committed
// before the next begin belong to the same undo step. Must be called
// under d.mu.
func (d *Doc) begin() { d.txn++ }

// commitLocal applies a locally produced op and queues its update for
// delivery. Must be called under d.mu; prev carries the overwritten
// state for the undo hook (map writes only).
func (d *Doc) commitLocal(c container, op Op, prev Op) {
	c.apply(op)
	d.seen[op.Id] = struct{}{}
	d.history = append(d.history, op)
	for _, hook := range d.hooks {
		hook(op, prev)
	}
	update, err := EncodeUpdate([]Op{op})
	if err != nil {
		return
	}
	d.queue = append(d.queue, notification{update: update, local: true})
}

// dispatch drains queued notifications and delivers them to the
// subscribers with the lock released, so a handler may read the
// document or edit it again.
func (d *Doc) dispatch() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		n := d.queue[0]
		d.queue = d.queue[1:]
		subs := make([]UpdateHandler, 0, len(d.subs))
		for _, fn := range d.subs {
			subs = append(subs, fn)
		}
		d.mu.Unlock()
		for _, fn := range subs {
			fn(n.update, n.local)
		}
	}
}

// OnUpdate subscribes to encoded update events. Handlers run outside
// the document lock and may call back into the document. The returned
// function removes the subscription.
func (d *Doc) OnUpdate(fn UpdateHandler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn
	return func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}
}

// ApplyUpdate merges a remote update into the document. Already seen
// ops are skipped, and ops whose dependencies have not arrived yet are
// parked until they can be integrated, so updates commute.
func (d *Doc) ApplyUpdate(update []byte) error {
	ops, err := DecodeUpdate(update)
	if err != nil {
		return err
	}
	d.mu.Lock()
	for _, op := range ops {
		d.ingest(op)
	}
	d.drainPending()
	d.queue = append(d.queue, notification{update: update})
	d.mu.Unlock()
	d.dispatch()
	return nil
}

// ingest must be called under d.mu.
func (d *Doc) ingest(op Op) {
	if _, ok := d.seen[op.Id]; ok {
		return
	}
	c := d.containerFor(op)
	if !c.ready(op) {
		d.pending = append(d.pending, op)
		return
	}
	c.apply(op)
	d.seen[op.Id] = struct{}{}
	d.history = append(d.history, op)
	if op.Id.Clock > d.clock {
		d.clock = op.Id.Clock
	}
}

// drainPending retries parked ops until no more can be integrated.
func (d *Doc) drainPending() {
	for {
		rest := d.pending[:0]
		applied := false
		for _, op := range d.pending {
			if _, ok := d.seen[op.Id]; ok {
				continue
			}
			c := d.containerFor(op)
			if !c.ready(op) {
				rest = append(rest, op)
				continue
			}
			c.apply(op)
			d.seen[op.Id] = struct{}{}
			d.history = append(d.history, op)
			if op.Id.Clock > d.clock {
				d.clock = op.Id.Clock
			}
			applied = true
		}
		d.pending = rest
		if !applied {
			return
		}
	}
}

// containerFor must be called under d.mu.
func (d *Doc) containerFor(op Op) container {
	key := containerKey{op.Kind, op.Container}
	if c, ok := d.containers[key]; ok {
		return c
	}
	var c container
	switch op.Kind {
	case KindMap:
		c = &Map{entries: make(map[string]mapEntry), name: op.Container, doc: d}
	case KindList:
		c = &List{seq: newSeq(), name: op.Container, doc: d}
	default:
		c = &Text{seq: newSeq(), name: op.Container, doc: d}
	}
	d.put(key, c)
	return c
}

// Snapshot encodes the full op history, enough to rebuild the document
// state on a fresh replica.
func (d *Doc) Snapshot() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return EncodeUpdate(d.history)
}

// ToJSON returns the document content as a plain nested structure.
func (d *Doc) ToJSON() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]any, len(d.containers))
	for _, key := range d.names {
		out[key.name] = d.containers[key].toJSON()
	}
	return out
}
