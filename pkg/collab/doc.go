// Package collab binds a replicated document to a relay connection:
// one Doc owns a crdt.Doc, keeps it in sync with the room through the
// relay client, and tracks the room's awareness (presence) table.
package collab

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	"github.com/classkit/collab/pkg/api"
	"github.com/classkit/collab/pkg/com"
	"github.com/classkit/collab/pkg/crdt"
	"github.com/classkit/collab/pkg/logger"
	"github.com/classkit/collab/pkg/relay"
	"github.com/goccy/go-json"
)

var ErrNotInitialized = errors.New("document not initialized")

// palette provides a cursor color for users that did not pick one.
var palette = []string{
	"#f44336", "#e91e63", "#9c27b0", "#3f51b5", "#2196f3",
	"#009688", "#4caf50", "#ff9800", "#ff5722", "#795548",
}

type User struct {
	Id    string
	Name  string
	Color string
}

type Config struct {
	DocId    string
	Endpoint string
	// Room defaults to DocId when empty.
	Room string
	User User
}

// link is the slice of the relay client the document needs; swapped
// for an in-memory wire in tests.
type link interface {
	SendUpdate(update []byte) error
	SendAwareness(p api.AwarenessPayload) error
	Status() relay.Status
	Close()
}

type dialFunc func(ctx context.Context, conf Config, clientId string, h relay.Handlers, log *logger.Logger) (link, error)

func dialRelay(ctx context.Context, conf Config, clientId string, h relay.Handlers, log *logger.Logger) (link, error) {
	room := conf.Room
	if room == "" {
		room = conf.DocId
	}
	return relay.Dial(ctx, conf.Endpoint, room, clientId, h, log)
}

type peerState struct {
	clock uint64
	state api.AwarenessState
}

// Doc is a caller-owned collaborative document. Zero value is not
// usable, construct with NewDoc and call Initialize before access.
//
// Ephemeral state (cursors, user info) travels as awareness payloads
// and never enters the document history.
type Doc struct {
	log  *logger.Logger
	dial dialFunc

	mu       sync.Mutex
	conf     Config
	clientId string
	doc      *crdt.Doc
	link     link
	unsub    func()

	clock uint64
	state api.AwarenessState
	peers map[string]peerState

	awSubs  map[int]func([]Entry)
	upSubs  map[int]func(update []byte)
	nextSub int
}

func NewDoc(log *logger.Logger) *Doc {
	return &Doc{
		log:    log,
		dial:   dialRelay,
		peers:  make(map[string]peerState),
		awSubs: make(map[int]func([]Entry)),
		upSubs: make(map[int]func([]byte)),
	}
}

// Initialize creates the replica and connects it to the room. The
// local awareness entry is published right away; a random palette
// color is assigned when the user did not set one.
func (d *Doc) Initialize(ctx context.Context, conf Config) error {
	if conf.User.Color == "" {
		conf.User.Color = palette[rand.Intn(len(palette))]
	}

	d.mu.Lock()
	if d.doc != nil {
		d.mu.Unlock()
		return errors.New("document already initialized")
	}
	clientId := com.NewUid().String()
	doc := crdt.NewDoc(clientId)
	d.conf = conf
	d.clientId = clientId
	d.doc = doc
	d.clock = 0
	d.state = api.AwarenessState{User: api.UserInfo{
		Id: conf.User.Id, Name: conf.User.Name, Color: conf.User.Color,
	}}
	d.peers = make(map[string]peerState)
	d.mu.Unlock()

	// local ops go to the relay; every op reaches the raw subscribers
	unsub := doc.OnUpdate(func(update []byte, local bool) {
		if local {
			d.mu.Lock()
			l := d.link
			d.mu.Unlock()
			if l != nil {
				_ = l.SendUpdate(update)
			}
		}
		for _, fn := range d.updateSubs() {
			fn(update)
		}
	})

	h := relay.Handlers{
		OnUpdate: func(update []byte) { _ = doc.ApplyUpdate(update) },
		OnBacklog: func(updates [][]byte) {
			for _, u := range updates {
				_ = doc.ApplyUpdate(u)
			}
		},
		OnAwareness: d.applyAwareness,
		OnConnect:   d.republish,
	}
	l, err := d.dial(ctx, conf, clientId, h, d.log)
	if err != nil {
		unsub()
		d.mu.Lock()
		d.doc, d.conf = nil, Config{}
		d.mu.Unlock()
		return err
	}

	d.mu.Lock()
	d.link, d.unsub = l, unsub
	d.mu.Unlock()
	d.republish()
	return nil
}

// republish pushes the local awareness entry and the full document
// history, covering both the first connect and every reconnect (the
// receiving replicas skip ops they have already seen).
func (d *Doc) republish() {
	d.mu.Lock()
	l, doc := d.link, d.doc
	if l == nil || doc == nil {
		d.mu.Unlock()
		return
	}
	d.clock++
	p := d.localPayload()
	d.mu.Unlock()

	_ = l.SendAwareness(p)
	if snap, err := doc.Snapshot(); err == nil && len(snap) > len("[]") {
		_ = l.SendUpdate(snap)
	}
}

// localPayload must be called under d.mu.
func (d *Doc) localPayload() api.AwarenessPayload {
	state, _ := json.Marshal(d.state)
	return api.AwarenessPayload{ClientId: d.clientId, Clock: d.clock, State: state}
}

func (d *Doc) updateSubs() []func([]byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]func([]byte), 0, len(d.upSubs))
	for _, fn := range d.upSubs {
		out = append(out, fn)
	}
	return out
}

// GetText returns the named shared text; the name defaults to
// "content".
func (d *Doc) GetText(name string) (*crdt.Text, error) {
	if name == "" {
		name = "content"
	}
	d.mu.Lock()
	doc := d.doc
	d.mu.Unlock()
	if doc == nil {
		return nil, ErrNotInitialized
	}
	return doc.Text(name), nil
}

func (d *Doc) GetMap(name string) (*crdt.Map, error) {
	d.mu.Lock()
	doc := d.doc
	d.mu.Unlock()
	if doc == nil {
		return nil, ErrNotInitialized
	}
	return doc.Map(name), nil
}

func (d *Doc) GetArray(name string) (*crdt.List, error) {
	d.mu.Lock()
	doc := d.doc
	d.mu.Unlock()
	if doc == nil {
		return nil, ErrNotInitialized
	}
	return doc.List(name), nil
}

// CreateUndoManager makes an undo scope over one shared container.
func (d *Doc) CreateUndoManager(scope crdt.Scope) (*crdt.UndoManager, error) {
	d.mu.Lock()
	doc := d.doc
	d.mu.Unlock()
	if doc == nil {
		return nil, ErrNotInitialized
	}
	return doc.NewUndoManager(scope), nil
}

// OnUpdate subscribes to raw update blobs, local and remote alike.
func (d *Doc) OnUpdate(fn func(update []byte)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextSub
	d.nextSub++
	d.upSubs[id] = fn
	return func() {
		d.mu.Lock()
		delete(d.upSubs, id)
		d.mu.Unlock()
	}
}

// ToJSON returns the document content, or nil when not initialized.
func (d *Doc) ToJSON() map[string]any {
	d.mu.Lock()
	doc := d.doc
	d.mu.Unlock()
	if doc == nil {
		return nil
	}
	return doc.ToJSON()
}

func (d *Doc) ClientId() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clientId
}

func (d *Doc) Status() relay.Status {
	d.mu.Lock()
	l := d.link
	d.mu.Unlock()
	if l == nil {
		return relay.Disconnected
	}
	return l.Status()
}

func (d *Doc) IsConnected() bool { return d.Status() == relay.Connected }

// Disconnect drops the relay connection first and then the replica.
// Safe to call repeatedly; the document must be re-Initialized after.
func (d *Doc) Disconnect() {
	d.mu.Lock()
	l, unsub := d.link, d.unsub
	d.link, d.unsub, d.doc = nil, nil, nil
	d.peers = make(map[string]peerState)
	d.mu.Unlock()

	if l != nil {
		l.Close()
	}
	if unsub != nil {
		unsub()
	}
}
