// Package crdt implements the conflict-free replicated containers
// behind a collaborative document: a shared text, an ordered list, and
// a last-writer-wins map. All containers of one Doc share a single
// operation history, and concurrent edits from any number of replicas
// converge to the same state without coordination.
package crdt

import (
	"github.com/goccy/go-json"
)

// ID identifies one operation and the element it created: a lamport
// clock paired with the originating site.
type ID struct {
	Clock uint64 `json:"c"`
	Site  string `json:"s"`
}

func (a ID) IsZero() bool { return a.Clock == 0 && a.Site == "" }

// Less orders IDs by (clock, site); the order is total across sites.
func (a ID) Less(b ID) bool {
	if a.Clock != b.Clock {
		return a.Clock < b.Clock
	}
	return a.Site < b.Site
}

type Kind uint8

const (
	KindText Kind = iota + 1
	KindMap
	KindList
)

type OpType uint8

const (
	OpInsert OpType = iota + 1
	OpDelete
	OpSet
	OpRemove
)

// Op is a single replicated operation. Sequence inserts reference the
// element they go after (Origin), deletes reference their victim
// (Target), and map writes carry a key.
type Op struct {
	Container string          `json:"n"`
	Kind      Kind            `json:"k"`
	Type      OpType          `json:"t"`
	Id        ID              `json:"id"`
	Origin    ID              `json:"o,omitempty"`
	Target    ID              `json:"tg,omitempty"`
	Key       string          `json:"key,omitempty"`
	Value     json.RawMessage `json:"v,omitempty"`
}

// EncodeUpdate packs ops into one update blob.
func EncodeUpdate(ops []Op) ([]byte, error) { return json.Marshal(ops) }

// DecodeUpdate unpacks an update blob.
func DecodeUpdate(update []byte) (ops []Op, err error) {
	err = json.Unmarshal(update, &ops)
	return
}
