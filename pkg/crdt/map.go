package crdt

import (
	"github.com/goccy/go-json"
)

// Map is a collaboratively editable key-value map with
// last-writer-wins registers; "last" is decided by the (clock, site)
// order of the writing op, so all replicas pick the same winner.
type Map struct {
	entries map[string]mapEntry
	name    string
	doc     *Doc
}

type mapEntry struct {
	id      ID
	value   json.RawMessage
	removed bool
}

func (m *Map) ready(Op) bool { return true }

func (m *Map) apply(op Op) {
	cur, ok := m.entries[op.Key]
	if ok && op.Id.Less(cur.id) {
		return
	}
	switch op.Type {
	case OpSet:
		m.entries[op.Key] = mapEntry{id: op.Id, value: op.Value}
	case OpRemove:
		m.entries[op.Key] = mapEntry{id: op.Id, removed: true}
	}
}

// Set writes a JSON-encodable value under the key.
func (m *Map) Set(key string, value any) {
	v, err := json.Marshal(value)
	if err != nil {
		return
	}
	m.doc.mu.Lock()
	m.doc.begin()
	var prev Op
	if cur, ok := m.entries[key]; ok && !cur.removed {
		prev = Op{Container: m.name, Kind: KindMap, Type: OpSet, Key: key, Value: cur.value}
	}
	op := Op{
		Container: m.name,
		Kind:      KindMap,
		Type:      OpSet,
		Id:        m.doc.nextID(),
		Key:       key,
		Value:     v,
	}
	m.doc.commitLocal(m, op, prev)
	m.doc.mu.Unlock()
	m.doc.dispatch()
}

// Delete removes the key.
func (m *Map) Delete(key string) {
	m.doc.mu.Lock()
	m.doc.begin()
	var prev Op
	if cur, ok := m.entries[key]; ok && !cur.removed {
		prev = Op{Container: m.name, Kind: KindMap, Type: OpSet, Key: key, Value: cur.value}
	}
	op := Op{
		Container: m.name,
		Kind:      KindMap,
		Type:      OpRemove,
		Id:        m.doc.nextID(),
		Key:       key,
	}
	m.doc.commitLocal(m, op, prev)
	m.doc.mu.Unlock()
	m.doc.dispatch()
}

// Get decodes the value under the key into out.
func (m *Map) Get(key string, out any) bool {
	m.doc.mu.Lock()
	defer m.doc.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.removed {
		return false
	}
	return json.Unmarshal(e.value, out) == nil
}

func (m *Map) Has(key string) bool {
	m.doc.mu.Lock()
	defer m.doc.mu.Unlock()
	e, ok := m.entries[key]
	return ok && !e.removed
}

func (m *Map) Len() int {
	m.doc.mu.Lock()
	defer m.doc.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if !e.removed {
			n++
		}
	}
	return n
}

func (m *Map) toJSON() any {
	out := make(map[string]any, len(m.entries))
	for k, e := range m.entries {
		if e.removed {
			continue
		}
		var v any
		if err := json.Unmarshal(e.value, &v); err == nil {
			out[k] = v
		}
	}
	return out
}
