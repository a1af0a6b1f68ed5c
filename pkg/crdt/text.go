package crdt

import (
	"strings"

	"github.com/goccy/go-json"
)

// Text is a collaboratively editable string. Each rune is one
// replicated element, so concurrent edits merge at character
// granularity.
type Text struct {
	*seq
	name string
	doc  *Doc
}

// Insert places s before the rune at the visible index; an index at or
// past the end appends.
func (t *Text) Insert(index int, s string) {
	if s == "" {
		return
	}
	t.doc.mu.Lock()
	t.doc.begin()
	origin := t.originFor(index)
	for _, r := range s {
		v, err := json.Marshal(string(r))
		if err != nil {
			continue
		}
		op := Op{
			Container: t.name,
			Kind:      KindText,
			Type:      OpInsert,
			Id:        t.doc.nextID(),
			Origin:    origin,
			Value:     v,
		}
		t.doc.commitLocal(t, op, Op{})
		origin = op.Id
	}
	t.doc.mu.Unlock()
	t.doc.dispatch()
}

// Delete removes n runes starting at the visible index.
func (t *Text) Delete(index, n int) {
	t.doc.mu.Lock()
	t.doc.begin()
	for i := 0; i < n; i++ {
		e := t.at(index) // the sequence shifts left after each removal
		if e == nil {
			break
		}
		op := Op{
			Container: t.name,
			Kind:      KindText,
			Type:      OpDelete,
			Id:        t.doc.nextID(),
			Target:    e.id,
		}
		t.doc.commitLocal(t, op, Op{})
	}
	t.doc.mu.Unlock()
	t.doc.dispatch()
}

func (t *Text) Len() int {
	t.doc.mu.Lock()
	defer t.doc.mu.Unlock()
	return t.seq.len()
}

func (t *Text) String() string {
	t.doc.mu.Lock()
	defer t.doc.mu.Unlock()
	return t.text()
}

func (t *Text) text() string {
	var b strings.Builder
	for _, v := range t.values() {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			b.WriteString(s)
		}
	}
	return b.String()
}

func (t *Text) toJSON() any { return t.text() }
