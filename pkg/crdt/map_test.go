package crdt

import (
	"testing"
)

func TestMapSetGetDelete(t *testing.T) {
	m := NewDoc("a").Map("meta")
	m.Set("title", "notes")
	m.Set("rev", 3)

	var title string
	if !m.Get("title", &title) || title != "notes" {
		t.Errorf("title = %q", title)
	}
	var rev int
	if !m.Get("rev", &rev) || rev != 3 {
		t.Errorf("rev = %v", rev)
	}
	if m.Len() != 2 {
		t.Errorf("len = %d, want 2", m.Len())
	}

	m.Delete("title")
	if m.Has("title") {
		t.Error("deleted key still present")
	}
	if m.Get("title", &title) {
		t.Error("get of a deleted key should fail")
	}
}

func TestMapLastWriterWins(t *testing.T) {
	a, b := NewDoc("a"), NewDoc("b")
	aOut, bOut := pipe(a), pipe(b)

	a.Map("meta").Set("color", "red")
	b.Map("meta").Set("color", "blue")

	// both replicas see both writes, in opposite orders
	deliver(t, b, *aOut)
	deliver(t, a, *bOut)

	var va, vb string
	a.Map("meta").Get("color", &va)
	b.Map("meta").Get("color", &vb)
	if va != vb {
		t.Errorf("replicas diverged: %q vs %q", va, vb)
	}
	// same clock, site "b" > "a", so b's write wins everywhere
	if va != "blue" {
		t.Errorf("winner = %q, want blue", va)
	}
}

func TestMapDeleteVsConcurrentSet(t *testing.T) {
	a, b := NewDoc("a"), NewDoc("b")
	aOut := pipe(a)
	a.Map("meta").Set("k", 1)
	deliver(t, b, *aOut)
	*aOut = nil

	bOut := pipe(b)
	a.Map("meta").Delete("k")
	b.Map("meta").Set("k", 2)
	deliver(t, b, *aOut)
	deliver(t, a, *bOut)

	var va, vb int
	okA := a.Map("meta").Get("k", &va)
	okB := b.Map("meta").Get("k", &vb)
	if okA != okB || (okA && va != vb) {
		t.Errorf("replicas diverged: (%v,%v) vs (%v,%v)", okA, va, okB, vb)
	}
}
