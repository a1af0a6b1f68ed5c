package com

import (
	"sync/atomic"
	"testing"
)

type testPeer struct {
	id string
	c  int32
}

func (p *testPeer) change(n int) { atomic.AddInt32(&p.c, int32(n)) }

func TestPointerValue(t *testing.T) {
	m := NewMap[string, *testPeer]()
	p := testPeer{id: "1"}
	m.Put(p.id, &p)
	fp, _ := m.FindBy(func(c *testPeer) bool { return c.id == "1" })
	p.change(100)
	fp2, _ := m.Find("1")

	expected := p.c == fp.c && p.c == fp2.c
	if !expected {
		t.Errorf("not expected change, o: %v != %v != %v", p.c, fp.c, fp2.c)
	}
}

func TestRemoveByKeyIdempotent(t *testing.T) {
	m := NewMap[string, *testPeer]()
	m.Put("a", &testPeer{id: "a"})
	m.RemoveByKey("a")
	m.RemoveByKey("a")
	if !m.IsEmpty() {
		t.Errorf("map should be empty, has %v", m.Len())
	}
}
