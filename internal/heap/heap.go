// Package heap owns every variable-length runtime record in a
// generation-checked arena. Vars reference records by Handle, so a stale
// reference or a double free is detected instead of corrupting memory.
package heap

import (
	"errors"
	"fmt"

	"github.com/funvibe/rol/internal/value"
)

var (
	ErrStaleHandle = errors.New("stale heap handle")
	ErrWrongKind   = errors.New("heap record has wrong kind")
)

const maxGeneration = 0xFFFF

type slot struct {
	gen uint16
	rec Record // nil when free
}

// Stats summarises arena occupancy.
type Stats struct {
	Live   int
	Bytes  int
	Slots  int
	Allocs int
	Frees  int
}

// Heap is a single-threaded arena. It performs no internal locking.
type Heap struct {
	slots  []slot
	free   []uint32
	live   int
	allocs int
	frees  int
}

// New creates a heap with room for initialSlots records before growing.
func New(initialSlots int) *Heap {
	if initialSlots < 0 {
		initialSlots = 0
	}
	return &Heap{slots: make([]slot, 0, initialSlots)}
}

func (h *Heap) alloc(rec Record) value.Handle {
	h.allocs++
	h.live++
	if n := len(h.free); n > 0 {
		idx := h.free[n-1]
		h.free = h.free[:n-1]
		h.slots[idx].rec = rec
		return value.MakeHandle(idx, h.slots[idx].gen)
	}
	idx := uint32(len(h.slots))
	h.slots = append(h.slots, slot{gen: 1, rec: rec})
	return value.MakeHandle(idx, 1)
}

// Get resolves hd, reporting false if it is stale or was never issued.
func (h *Heap) Get(hd value.Handle) (Record, bool) {
	idx := hd.Index()
	if int(idx) >= len(h.slots) {
		return nil, false
	}
	s := h.slots[idx]
	if s.rec == nil || s.gen != hd.Generation() {
		return nil, false
	}
	return s.rec, true
}

// Live reports whether hd currently names a record.
func (h *Heap) Live(hd value.Handle) bool {
	_, ok := h.Get(hd)
	return ok
}

// Free releases the record behind hd. Freeing twice returns ErrStaleHandle.
func (h *Heap) Free(hd value.Handle) error {
	if !h.Live(hd) {
		return fmt.Errorf("%w: free %s", ErrStaleHandle, hd)
	}
	idx := hd.Index()
	s := &h.slots[idx]
	s.rec = nil
	h.live--
	h.frees++
	if s.gen == maxGeneration {
		// Retire the slot rather than let the generation wrap.
		return nil
	}
	s.gen++
	h.free = append(h.free, idx)
	return nil
}

// FreeVar releases the record v references.
func (h *Heap) FreeVar(v value.Var) error {
	hd, ok := v.AsHandle()
	if !ok {
		return fmt.Errorf("%w: %s is not a heap value", ErrWrongKind, v.Type())
	}
	return h.Free(hd)
}

// Each visits every live record in slot order.
func (h *Heap) Each(fn func(value.Handle, Record)) {
	for i, s := range h.slots {
		if s.rec != nil {
			fn(value.MakeHandle(uint32(i), s.gen), s.rec)
		}
	}
}

func (h *Heap) Stats() Stats {
	st := Stats{Live: h.live, Slots: len(h.slots), Allocs: h.allocs, Frees: h.frees}
	for _, s := range h.slots {
		if s.rec != nil {
			st.Bytes += s.rec.SizeBytes()
		}
	}
	return st
}

func (h *Heap) lookup(hd value.Handle, kind Kind) (Record, error) {
	rec, ok := h.Get(hd)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStaleHandle, hd)
	}
	if rec.Kind() != kind {
		return nil, fmt.Errorf("%w: %s is %s, want %s", ErrWrongKind, hd, rec.Kind(), kind)
	}
	return rec, nil
}

// Typed resolution. A nil result with false means stale or wrong kind.

func (h *Heap) LookupString(hd value.Handle) (*String, bool) {
	rec, err := h.lookup(hd, KindString)
	if err != nil {
		return nil, false
	}
	return rec.(*String), true
}

func (h *Heap) LookupVector(hd value.Handle) (*Vector, bool) {
	rec, err := h.lookup(hd, KindVector)
	if err != nil {
		return nil, false
	}
	return rec.(*Vector), true
}

func (h *Heap) LookupFrame(hd value.Handle) (*Frame, bool) {
	rec, err := h.lookup(hd, KindFrame)
	if err != nil {
		return nil, false
	}
	return rec.(*Frame), true
}

func (h *Heap) LookupClosure(hd value.Handle) (*Closure, bool) {
	rec, err := h.lookup(hd, KindClosure)
	if err != nil {
		return nil, false
	}
	return rec.(*Closure), true
}

// Factories. The caller owns the returned handle and frees it exactly once.

// StringFromStr copies s into a new string record.
func (h *Heap) StringFromStr(s string) value.Handle {
	data := make([]byte, len(s))
	copy(data, s)
	return h.alloc(&String{length: uint64(len(s)), data: data})
}

// VectorWithCapacity allocates an empty vector with zeroed slots.
func (h *Heap) VectorWithCapacity(capacity int) value.Handle {
	if capacity < 0 {
		capacity = 0
	}
	return h.alloc(&Vector{capacity: uint64(capacity), slots: make([]value.Var, capacity)})
}

// VectorFromSlice copies elems into a vector whose capacity equals its length.
func (h *Heap) VectorFromSlice(elems []value.Var) value.Handle {
	hd := h.VectorWithCapacity(len(elems))
	vec, _ := h.LookupVector(hd)
	copy(vec.slots, elems)
	vec.length = uint64(len(elems))
	return hd
}

// Push appends elem and returns the vector's handle. A full vector is
// reallocated at double capacity (4 when empty) and the old handle is
// freed, so callers must switch to the returned handle.
func (h *Heap) Push(hd value.Handle, elem value.Var) (value.Handle, error) {
	vec, ok := h.LookupVector(hd)
	if !ok {
		return hd, fmt.Errorf("%w: push to %s", ErrStaleHandle, hd)
	}
	if vec.length < vec.capacity {
		vec.slots[vec.length] = elem
		vec.length++
		return hd, nil
	}

	newCap := vec.capacity * 2
	if newCap == 0 {
		newCap = 4
	}
	grown := &Vector{length: vec.length + 1, capacity: newCap, slots: make([]value.Var, newCap)}
	copy(grown.slots, vec.slots[:vec.length])
	grown.slots[vec.length] = elem
	newHd := h.alloc(grown)
	if err := h.Free(hd); err != nil {
		return newHd, err
	}
	return newHd, nil
}

// NewFrame allocates a frame of n none-initialised slots.
func (h *Heap) NewFrame(n int, parent value.Var) value.Handle {
	if n < 0 {
		n = 0
	}
	slots := make([]value.Var, n)
	for i := range slots {
		slots[i] = value.None()
	}
	if !parent.IsEnvironment() {
		parent = value.None()
	}
	return h.alloc(&Frame{Slots: slots, Parent: parent})
}

func (h *Heap) NewClosureRecord(arity int, env value.Var) value.Handle {
	return h.alloc(&Closure{Arity: arity, Env: env})
}

// Var-level conveniences

func (h *Heap) NewString(s string) value.Var { return value.String(h.StringFromStr(s)) }

func (h *Heap) NewList(elems []value.Var) value.Var {
	return value.List(h.VectorFromSlice(elems))
}

// StringOf returns the contents of a string Var.
func (h *Heap) StringOf(v value.Var) (string, bool) {
	hd, ok := v.AsStringHandle()
	if !ok {
		return "", false
	}
	s, ok := h.LookupString(hd)
	if !ok {
		return "", false
	}
	return s.Str(), true
}

// ListOf borrows the elements of a list Var.
func (h *Heap) ListOf(v value.Var) ([]value.Var, bool) {
	hd, ok := v.AsListHandle()
	if !ok {
		return nil, false
	}
	vec, ok := h.LookupVector(hd)
	if !ok {
		return nil, false
	}
	return vec.AsSlice(), true
}

// Resolve returns the record behind any heap-referencing Var.
func (h *Heap) Resolve(v value.Var) (value.Handle, Record, bool) {
	hd, ok := v.AsHandle()
	if !ok {
		return 0, nil, false
	}
	rec, ok := h.Get(hd)
	if !ok {
		return 0, nil, false
	}
	return hd, rec, true
}
