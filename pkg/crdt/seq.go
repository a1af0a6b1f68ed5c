package crdt

import (
	"sort"

	"github.com/goccy/go-json"
)

// seq is a replicated growable array: every element references the
// element it was inserted after, which makes the structure a tree with
// the document head as root. The visible order is a depth-first walk
// with siblings sorted newest-first, so concurrent inserts at the same
// spot land in a deterministic order on every replica. Deletes keep
// tombstones.
type seq struct {
	elems    map[ID]*selem
	children map[ID][]ID // sibling lists, sorted by ID descending
	order    []ID        // cached walk, tombstones included
	visible  int
}

type selem struct {
	id      ID
	origin  ID
	value   json.RawMessage
	removed bool
}

func newSeq() *seq {
	return &seq{
		elems:    make(map[ID]*selem),
		children: make(map[ID][]ID),
	}
}

func (s *seq) ready(op Op) bool {
	switch op.Type {
	case OpInsert:
		return op.Origin.IsZero() || s.elems[op.Origin] != nil
	case OpDelete:
		return s.elems[op.Target] != nil
	}
	return true
}

func (s *seq) apply(op Op) {
	switch op.Type {
	case OpInsert:
		s.integrate(&selem{id: op.Id, origin: op.Origin, value: op.Value})
	case OpDelete:
		if e := s.elems[op.Target]; e != nil && !e.removed {
			e.removed = true
			s.visible--
		}
	}
}

func (s *seq) integrate(e *selem) {
	s.elems[e.id] = e
	siblings := append(s.children[e.origin], e.id)
	sort.Slice(siblings, func(i, j int) bool { return siblings[j].Less(siblings[i]) })
	s.children[e.origin] = siblings
	s.rebuild()
	s.visible++
}

// rebuild rewrites the cached walk; linear in the sequence size.
func (s *seq) rebuild() {
	s.order = s.order[:0]
	s.walk(ID{})
}

func (s *seq) walk(parent ID) {
	for _, id := range s.children[parent] {
		s.order = append(s.order, id)
		s.walk(id)
	}
}

// at returns the element at the visible index.
func (s *seq) at(index int) *selem {
	if index < 0 {
		return nil
	}
	n := 0
	for _, id := range s.order {
		e := s.elems[id]
		if e.removed {
			continue
		}
		if n == index {
			return e
		}
		n++
	}
	return nil
}

// originFor maps "insert at visible index" to the element the new one
// goes after; a zero ID means the head of the sequence.
func (s *seq) originFor(index int) ID {
	if index <= 0 {
		return ID{}
	}
	if e := s.at(index - 1); e != nil {
		return e.id
	}
	// past the end appends after the last visible element
	for i := len(s.order) - 1; i >= 0; i-- {
		if e := s.elems[s.order[i]]; !e.removed {
			return e.id
		}
	}
	return ID{}
}

func (s *seq) len() int { return s.visible }

func (s *seq) values() []json.RawMessage {
	out := make([]json.RawMessage, 0, s.visible)
	for _, id := range s.order {
		if e := s.elems[id]; !e.removed {
			out = append(out, e.value)
		}
	}
	return out
}
