package heap

import (
	"errors"
	"testing"

	"github.com/funvibe/rol/internal/value"
)

func TestStringFromStr(t *testing.T) {
	h := New(4)
	hd := h.StringFromStr("héllo")
	s, ok := h.LookupString(hd)
	if !ok {
		t.Fatalf("string record not found")
	}
	if s.Len() != len("héllo") {
		t.Errorf("Len() = %d, want %d", s.Len(), len("héllo"))
	}
	if s.Str() != "héllo" {
		t.Errorf("Str() = %q", s.Str())
	}
	if s.SizeBytes() != 8+len("héllo") {
		t.Errorf("SizeBytes() = %d", s.SizeBytes())
	}
	count := 0
	s.TraceChildren(func(value.Var) { count++ })
	if count != 0 {
		t.Errorf("string traced %d children, want 0", count)
	}
}

func TestVectorFromSlice(t *testing.T) {
	h := New(4)
	a, b, c := value.Int(1), value.Float(2), value.Bool(true)
	hd := h.VectorFromSlice([]value.Var{a, b, c})
	vec, ok := h.LookupVector(hd)
	if !ok {
		t.Fatalf("vector record not found")
	}
	got := vec.AsSlice()
	want := []value.Var{a, b, c}
	if len(got) != len(want) || vec.Len() != 3 {
		t.Fatalf("length = %d, want 3", vec.Len())
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("slot %d = %s, want %s", i, got[i], want[i])
		}
	}
	if vec.SizeBytes() != 16+3*8 {
		t.Errorf("SizeBytes() = %d", vec.SizeBytes())
	}
}

func TestPushGrowth(t *testing.T) {
	h := New(0)
	hd := h.VectorWithCapacity(0)

	var err error
	for i := int32(0); i < 9; i++ {
		prev := hd
		vec, _ := h.LookupVector(prev)
		full := vec.Len() == vec.Cap()
		hd, err = h.Push(prev, value.Int(i))
		if err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
		if full && hd == prev {
			t.Errorf("push %d at capacity kept the same handle", i)
		}
		if !full && hd != prev {
			t.Errorf("push %d with room changed handle", i)
		}
		if full && h.Live(prev) {
			t.Errorf("push %d left the old record alive", i)
		}
	}

	vec, _ := h.LookupVector(hd)
	if vec.Len() != 9 || vec.Cap() != 16 {
		t.Errorf("len=%d cap=%d, want 9/16", vec.Len(), vec.Cap())
	}
	for i, v := range vec.AsSlice() {
		if n, _ := v.AsInt(); n != int32(i) {
			t.Errorf("slot %d = %s", i, v)
		}
	}
	if h.Stats().Live != 1 {
		t.Errorf("live records = %d, want 1", h.Stats().Live)
	}
}

func TestStaleHandleAndDoubleFree(t *testing.T) {
	h := New(1)
	hd := h.StringFromStr("gone")
	if err := h.Free(hd); err != nil {
		t.Fatalf("first free: %v", err)
	}
	if err := h.Free(hd); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("double free err = %v, want ErrStaleHandle", err)
	}
	if _, ok := h.Get(hd); ok {
		t.Errorf("stale handle resolved")
	}

	// The slot is reused with a new generation; the old handle stays dead.
	fresh := h.StringFromStr("new")
	if fresh.Index() != hd.Index() {
		t.Fatalf("slot not reused: %s vs %s", fresh, hd)
	}
	if fresh.Generation() == hd.Generation() {
		t.Errorf("generation not bumped")
	}
	if _, ok := h.LookupString(hd); ok {
		t.Errorf("stale handle resolved after reuse")
	}
	if s, ok := h.StringOf(value.String(fresh)); !ok || s != "new" {
		t.Errorf("fresh handle = %q, %v", s, ok)
	}
}

func TestWrongKindLookup(t *testing.T) {
	h := New(1)
	hd := h.StringFromStr("x")
	if _, ok := h.LookupVector(hd); ok {
		t.Errorf("string resolved as vector")
	}
	if _, ok := h.ListOf(value.String(hd)); ok {
		t.Errorf("ListOf accepted a string Var")
	}
	if err := h.FreeVar(value.Int(3)); !errors.Is(err, ErrWrongKind) {
		t.Errorf("FreeVar(int) err = %v", err)
	}
}

func TestFrameTracing(t *testing.T) {
	h := New(2)
	parent := value.Environment(h.NewFrame(1, value.None()))
	child := h.NewFrame(2, parent)
	f, ok := h.LookupFrame(child)
	if !ok {
		t.Fatalf("frame not found")
	}
	if !f.HasParent() {
		t.Errorf("frame lost its parent")
	}
	var seen []value.Var
	f.TraceChildren(func(v value.Var) { seen = append(seen, v) })
	if len(seen) != 3 || seen[2] != parent {
		t.Errorf("frame children = %v", seen)
	}
	for _, s := range f.Slots {
		if !s.IsNone() {
			t.Errorf("frame slot initialised to %s", s)
		}
	}

	orphan, _ := h.LookupFrame(h.NewFrame(0, value.Float(0)))
	if orphan.HasParent() {
		t.Errorf("non-environment parent kept")
	}
}
