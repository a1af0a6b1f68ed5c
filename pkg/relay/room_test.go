package relay

import (
	"testing"

	"github.com/classkit/collab/pkg/api"
	"github.com/classkit/collab/pkg/logger"
	"github.com/goccy/go-json"
)

type fakeMember struct {
	m      *member
	frames []api.In
}

func newFakeMember(id string) *fakeMember {
	f := &fakeMember{}
	f.m = &member{id: id, out: func(frame []byte) {
		var in api.In
		if err := json.Unmarshal(frame, &in); err != nil {
			panic(err)
		}
		f.frames = append(f.frames, in)
	}}
	return f
}

func (f *fakeMember) ofType(t api.PT) (out []api.In) {
	for _, in := range f.frames {
		if in.T == t {
			out = append(out, in)
		}
	}
	return
}

func encode(t *testing.T, out api.Out) []byte {
	t.Helper()
	frame, err := out.Encode()
	if err != nil {
		t.Fatal(err)
	}
	return frame
}

func update(t *testing.T, data string) []byte {
	return encode(t, api.Out{T: api.DocUpdate, Payload: api.UpdatePayload{Update: []byte(data)}})
}

func TestRoomBacklogReplay(t *testing.T) {
	r := newRoom("r1", 0, logger.Default())

	a := newFakeMember("a")
	r.join(a.m)
	r.route(a.m, update(t, "u1"))
	r.route(a.m, update(t, "u2"))

	b := newFakeMember("b")
	r.join(b.m)

	logs := b.ofType(api.DocBacklog)
	if len(logs) != 1 {
		t.Fatalf("expected one backlog frame, got %v", len(logs))
	}
	p := api.Unwrap[api.BacklogPayload](logs[0].Payload)
	if p == nil || len(p.Updates) != 2 {
		t.Fatalf("expected 2 replayed updates, got %+v", p)
	}
	if string(p.Updates[0]) != "u1" || string(p.Updates[1]) != "u2" {
		t.Errorf("backlog out of order: %q %q", p.Updates[0], p.Updates[1])
	}
	// the origin must not hear its own updates back
	if got := a.ofType(api.DocUpdate); len(got) != 0 {
		t.Errorf("origin received %v of its own updates", len(got))
	}
}

func TestRoomBacklogLimit(t *testing.T) {
	r := newRoom("r1", 2, logger.Default())
	a := newFakeMember("a")
	r.join(a.m)
	for _, u := range []string{"u1", "u2", "u3"} {
		r.route(a.m, update(t, u))
	}

	b := newFakeMember("b")
	r.join(b.m)
	p := api.Unwrap[api.BacklogPayload](b.ofType(api.DocBacklog)[0].Payload)
	if len(p.Updates) != 2 {
		t.Fatalf("expected trimmed backlog of 2, got %v", len(p.Updates))
	}
	if string(p.Updates[0]) != "u2" || string(p.Updates[1]) != "u3" {
		t.Errorf("wrong updates kept: %q %q", p.Updates[0], p.Updates[1])
	}
}

func TestRoomAwareness(t *testing.T) {
	r := newRoom("r1", 0, logger.Default())
	a := newFakeMember("a")
	b := newFakeMember("b")
	r.join(a.m)
	r.join(b.m)

	state := json.RawMessage(`{"user":{"id":"a","name":"Ann"}}`)
	r.route(a.m, encode(t, api.Out{T: api.Awareness, Payload: api.AwarenessPayload{
		ClientId: "a", Clock: 1, State: state,
	}}))

	got := b.ofType(api.Awareness)
	if len(got) != 1 {
		t.Fatalf("expected 1 awareness frame, got %v", len(got))
	}

	// a late joiner gets the stored entry on join
	c := newFakeMember("c")
	r.join(c.m)
	replayed := c.ofType(api.Awareness)
	if len(replayed) != 1 {
		t.Fatalf("expected replayed awareness, got %v frames", len(replayed))
	}
	p := api.Unwrap[api.AwarenessPayload](replayed[0].Payload)
	if p.ClientId != "a" || p.State == nil {
		t.Errorf("wrong replayed entry: %+v", p)
	}

	// leaving broadcasts a nil-state departure with a newer clock
	r.leave(a.m)
	last := b.ofType(api.Awareness)
	dep := api.Unwrap[api.AwarenessPayload](last[len(last)-1].Payload)
	if dep.ClientId != "a" || dep.State != nil {
		t.Errorf("expected departure for a, got %+v", dep)
	}
	if dep.Clock <= 1 {
		t.Errorf("departure clock %v not newer than 1", dep.Clock)
	}

	// and the entry is gone for the next joiner
	d := newFakeMember("d")
	r.join(d.m)
	if frames := d.ofType(api.Awareness); len(frames) != 0 {
		t.Errorf("stale awareness replayed: %v frames", len(frames))
	}
}

func TestRoomSignalRouting(t *testing.T) {
	r := newRoom("r1", 0, logger.Default())
	a := newFakeMember("a")
	b := newFakeMember("b")
	c := newFakeMember("c")
	r.join(a.m)
	r.join(b.m)
	r.join(c.m)

	r.route(a.m, encode(t, api.Out{T: api.Signal, Payload: api.SignalEnvelope{
		From: "a", To: "b", Data: "offer-blob",
	}}))

	got := b.ofType(api.Signal)
	if len(got) != 1 {
		t.Fatalf("expected 1 signal at b, got %v", len(got))
	}
	env := api.Unwrap[api.SignalEnvelope](got[0].Payload)
	if env.From != "a" || env.Data != "offer-blob" {
		t.Errorf("wrong envelope: %+v", env)
	}
	if len(c.ofType(api.Signal)) != 0 {
		t.Error("signal leaked to a third member")
	}

	// unknown target is dropped, not fatal
	r.route(a.m, encode(t, api.Out{T: api.Signal, Payload: api.SignalEnvelope{
		From: "a", To: "nobody", Data: "x",
	}}))
}

func TestRoomBadFrameIgnored(t *testing.T) {
	r := newRoom("r1", 0, logger.Default())
	a := newFakeMember("a")
	r.join(a.m)
	r.route(a.m, []byte("{not json"))
	r.route(a.m, encode(t, api.Out{T: api.DocUpdate, Payload: "bogus"}))
	if !r.members.Has("a") {
		t.Error("member dropped on bad frame")
	}
}
