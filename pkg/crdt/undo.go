package crdt

import (
	"github.com/goccy/go-json"
)

// Scope names the single container an UndoManager tracks.
type Scope interface {
	scopeKey() containerKey
}

func (t *Text) scopeKey() containerKey { return containerKey{KindText, t.name} }
func (l *List) scopeKey() containerKey { return containerKey{KindList, l.name} }
func (m *Map) scopeKey() containerKey  { return containerKey{KindMap, m.name} }

// action is one step of an undo/redo stack: the edit that reverts a
// previously applied edit.
type action struct {
	typ  OpType
	id   ID              // OpDelete: the element to remove
	from ID              // OpInsert: tombstone whose value comes back
	key  string          // map actions
	val  json.RawMessage // map restore value; nil removes the key
}

// group collects the actions reverting every op of one public
// mutation call, so a multi-rune insert or a multi-rune delete is a
// single undo step.
type group struct {
	txn     uint64
	actions []action
}

// UndoManager reverts local edits of one container. Remote edits are
// never touched: an undo is itself a fresh op that replicates like any
// other edit.
type UndoManager struct {
	doc   *Doc
	key   containerKey
	undo  []group
	redo  []group
	muted bool
}

// NewUndoManager tracks local edits of the scoped container from this
// point on.
func (d *Doc) NewUndoManager(scope Scope) *UndoManager {
	u := &UndoManager{doc: d, key: scope.scopeKey()}
	d.mu.Lock()
	d.hooks = append(d.hooks, u.record)
	d.mu.Unlock()
	return u
}

// record runs under doc.mu for every local op and pushes the edit's
// inverse onto the undo stack. Ops from the same mutation call share
// one group and revert together.
func (u *UndoManager) record(op Op, prev Op) {
	if u.muted {
		return
	}
	if (containerKey{op.Kind, op.Container}) != u.key {
		return
	}
	var inv action
	switch op.Type {
	case OpInsert:
		inv = action{typ: OpDelete, id: op.Id}
	case OpDelete:
		inv = action{typ: OpInsert, from: op.Target}
	case OpSet, OpRemove:
		inv = action{typ: OpSet, key: op.Key, val: prev.Value}
	default:
		return
	}
	if n := len(u.undo); n > 0 && u.undo[n-1].txn == u.doc.txn {
		u.undo[n-1].actions = append(u.undo[n-1].actions, inv)
	} else {
		u.undo = append(u.undo, group{txn: u.doc.txn, actions: []action{inv}})
	}
	u.redo = u.redo[:0]
}

func (u *UndoManager) CanUndo() bool {
	u.doc.mu.Lock()
	defer u.doc.mu.Unlock()
	return len(u.undo) > 0
}

func (u *UndoManager) CanRedo() bool {
	u.doc.mu.Lock()
	defer u.doc.mu.Unlock()
	return len(u.redo) > 0
}

// Clear drops both stacks without touching the document.
func (u *UndoManager) Clear() {
	u.doc.mu.Lock()
	u.undo = u.undo[:0]
	u.redo = u.redo[:0]
	u.doc.mu.Unlock()
}

// Undo reverts the most recent tracked edit in full. Returns false
// when there is nothing to undo.
func (u *UndoManager) Undo() bool {
	u.doc.mu.Lock()
	if len(u.undo) == 0 {
		u.doc.mu.Unlock()
		return false
	}
	g := u.undo[len(u.undo)-1]
	u.undo = u.undo[:len(u.undo)-1]
	u.redo = append(u.redo, u.performGroup(g))
	u.doc.mu.Unlock()
	u.doc.dispatch()
	return true
}

// Redo re-applies the most recently undone edit.
func (u *UndoManager) Redo() bool {
	u.doc.mu.Lock()
	if len(u.redo) == 0 {
		u.doc.mu.Unlock()
		return false
	}
	g := u.redo[len(u.redo)-1]
	u.redo = u.redo[:len(u.redo)-1]
	u.undo = append(u.undo, u.performGroup(g))
	u.doc.mu.Unlock()
	u.doc.dispatch()
	return true
}

// performGroup reverts a group's actions newest first and returns the
// counter-group that puts them back. Must be called under doc.mu.
func (u *UndoManager) performGroup(g group) group {
	u.doc.begin()
	counter := group{txn: u.doc.txn, actions: make([]action, 0, len(g.actions))}
	for i := len(g.actions) - 1; i >= 0; i-- {
		counter.actions = append(counter.actions, u.perform(g.actions[i]))
	}
	return counter
}

// perform executes the action as a fresh local op and returns its
// counter-action. Must be called under doc.mu.
func (u *UndoManager) perform(a action) action {
	c := u.doc.containers[u.key]
	u.muted = true
	defer func() { u.muted = false }()

	switch a.typ {
	case OpDelete:
		op := Op{
			Container: u.key.name, Kind: u.key.kind, Type: OpDelete,
			Id: u.doc.nextID(), Target: a.id,
		}
		u.doc.commitLocal(c, op, Op{})
		return action{typ: OpInsert, from: a.id}
	case OpInsert:
		var origin ID
		var value json.RawMessage
		if sq := seqOf(c); sq != nil {
			if victim := sq.elems[a.from]; victim != nil {
				origin = victim.origin
				value = victim.value
			}
		}
		op := Op{
			Container: u.key.name, Kind: u.key.kind, Type: OpInsert,
			Id: u.doc.nextID(), Origin: origin, Value: value,
		}
		u.doc.commitLocal(c, op, Op{})
		return action{typ: OpDelete, id: op.Id}
	case OpSet:
		cur := currentValue(c, a.key)
		var op Op
		if a.val != nil {
			op = Op{
				Container: u.key.name, Kind: u.key.kind, Type: OpSet,
				Id: u.doc.nextID(), Key: a.key, Value: a.val,
			}
		} else {
			op = Op{
				Container: u.key.name, Kind: u.key.kind, Type: OpRemove,
				Id: u.doc.nextID(), Key: a.key,
			}
		}
		u.doc.commitLocal(c, op, Op{})
		return action{typ: OpSet, key: a.key, val: cur}
	}
	return action{}
}

func seqOf(c container) *seq {
	switch v := c.(type) {
	case *Text:
		return v.seq
	case *List:
		return v.seq
	}
	return nil
}

// currentValue captures the present value of a map key; nil when the
// key is absent. Must be called under doc.mu.
func currentValue(c container, key string) json.RawMessage {
	m, ok := c.(*Map)
	if !ok {
		return nil
	}
	if e, ok := m.entries[key]; ok && !e.removed {
		return e.value
	}
	return nil
}
