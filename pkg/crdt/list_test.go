package crdt

import (
	"reflect"
	"testing"
)

func TestListBasics(t *testing.T) {
	l := NewDoc("a").List("todo")
	l.Append("one")
	l.Append("two")
	l.Insert(1, "between")

	want := []any{"one", "between", "two"}
	if got := l.Slice(); !reflect.DeepEqual(got, want) {
		t.Errorf("slice = %v, want %v", got, want)
	}
	if l.Len() != 3 {
		t.Errorf("len = %d, want 3", l.Len())
	}

	var item string
	if !l.Get(1, &item) || item != "between" {
		t.Errorf("get(1) = %q", item)
	}

	l.Delete(0)
	if got := l.Slice(); !reflect.DeepEqual(got, []any{"between", "two"}) {
		t.Errorf("after delete: %v", got)
	}
	if l.Get(5, &item) {
		t.Error("get past the end should fail")
	}
}

func TestListStructuredValues(t *testing.T) {
	type task struct {
		Name string `json:"name"`
		Done bool   `json:"done"`
	}
	l := NewDoc("a").List("tasks")
	l.Append(task{Name: "grade", Done: false})

	var got task
	if !l.Get(0, &got) || got.Name != "grade" {
		t.Errorf("get = %+v", got)
	}
}

func TestListConcurrentAppendConverges(t *testing.T) {
	a, b := NewDoc("a"), NewDoc("b")
	aOut, bOut := pipe(a), pipe(b)

	a.List("todo").Append("from-a")
	b.List("todo").Append("from-b")
	deliver(t, b, *aOut)
	deliver(t, a, *bOut)

	if !reflect.DeepEqual(a.List("todo").Slice(), b.List("todo").Slice()) {
		t.Errorf("replicas diverged: %v vs %v", a.List("todo").Slice(), b.List("todo").Slice())
	}
	if a.List("todo").Len() != 2 {
		t.Errorf("len = %d, want 2", a.List("todo").Len())
	}
}
