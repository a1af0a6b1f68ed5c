package crdt

import (
	"github.com/goccy/go-json"
)

// List is a collaboratively editable ordered list of arbitrary
// JSON-encodable values.
type List struct {
	*seq
	name string
	doc  *Doc
}

// Insert places the value before the visible index; an index at or
// past the end appends. Values that cannot be encoded are dropped.
func (l *List) Insert(index int, value any) {
	v, err := json.Marshal(value)
	if err != nil {
		return
	}
	l.doc.mu.Lock()
	l.doc.begin()
	op := Op{
		Container: l.name,
		Kind:      KindList,
		Type:      OpInsert,
		Id:        l.doc.nextID(),
		Origin:    l.originFor(index),
		Value:     v,
	}
	l.doc.commitLocal(l, op, Op{})
	l.doc.mu.Unlock()
	l.doc.dispatch()
}

// Append adds the value at the end of the list.
func (l *List) Append(value any) { l.Insert(l.Len(), value) }

// Delete removes the element at the visible index.
func (l *List) Delete(index int) {
	l.doc.mu.Lock()
	e := l.at(index)
	if e == nil {
		l.doc.mu.Unlock()
		return
	}
	l.doc.begin()
	op := Op{
		Container: l.name,
		Kind:      KindList,
		Type:      OpDelete,
		Id:        l.doc.nextID(),
		Target:    e.id,
	}
	l.doc.commitLocal(l, op, Op{})
	l.doc.mu.Unlock()
	l.doc.dispatch()
}

// Get decodes the element at the visible index into out.
func (l *List) Get(index int, out any) bool {
	l.doc.mu.Lock()
	defer l.doc.mu.Unlock()
	e := l.at(index)
	if e == nil {
		return false
	}
	return json.Unmarshal(e.value, out) == nil
}

func (l *List) Len() int {
	l.doc.mu.Lock()
	defer l.doc.mu.Unlock()
	return l.seq.len()
}

// Slice returns the decoded list content.
func (l *List) Slice() []any {
	l.doc.mu.Lock()
	defer l.doc.mu.Unlock()
	return l.slice()
}

func (l *List) slice() []any {
	out := make([]any, 0, l.seq.len())
	for _, v := range l.values() {
		var item any
		if err := json.Unmarshal(v, &item); err == nil {
			out = append(out, item)
		}
	}
	return out
}

func (l *List) toJSON() any { return l.slice() }
