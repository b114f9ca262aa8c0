// Package env implements chained lexical frames addressed by (depth, offset).
package env

import (
	"errors"
	"fmt"

	"github.com/funvibe/rol/internal/heap"
	"github.com/funvibe/rol/internal/value"
)

var (
	ErrNotEnvironment = errors.New("not an environment")
	ErrDepth          = errors.New("lexical depth out of range")
	ErrOffset         = errors.New("lexical offset out of range")
)

// LexicalAddress locates a binding: Depth frame hops from the use site,
// then Offset within that frame. It is fixed once computed.
type LexicalAddress struct {
	Depth  uint32
	Offset uint32
}

func (a LexicalAddress) String() string {
	return fmt.Sprintf("(%d,%d)", a.Depth, a.Offset)
}

// New allocates a frame with slots none-initialised slots. A parent that is
// not an environment means the frame has no enclosing scope.
func New(h *heap.Heap, slots int, parent value.Var) value.Var {
	return value.Environment(h.NewFrame(slots, parent))
}

// FromValues allocates a frame holding a copy of vals.
func FromValues(h *heap.Heap, vals []value.Var, parent value.Var) value.Var {
	e := New(h, len(vals), parent)
	f, _ := frame(h, e)
	copy(f.Slots, vals)
	return e
}

// Free releases a single frame. Enclosing frames are left alone.
func Free(h *heap.Heap, e value.Var) error {
	if !e.IsEnvironment() {
		return fmt.Errorf("%w: %s", ErrNotEnvironment, e.Type())
	}
	return h.FreeVar(e)
}

func frame(h *heap.Heap, e value.Var) (*heap.Frame, error) {
	hd, ok := e.AsEnvironmentHandle()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotEnvironment, e.Type())
	}
	f, ok := h.LookupFrame(hd)
	if !ok {
		return nil, fmt.Errorf("%w: %s", heap.ErrStaleHandle, hd)
	}
	return f, nil
}

// walk follows depth parent links from e.
func walk(h *heap.Heap, e value.Var, depth uint32) (*heap.Frame, error) {
	f, err := frame(h, e)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < depth; i++ {
		if !f.HasParent() {
			return nil, fmt.Errorf("%w: %d hops from a chain of %d", ErrDepth, depth, i+1)
		}
		if f, err = frame(h, f.Parent); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Lookup reads the slot at addr.
func Lookup(h *heap.Heap, e value.Var, addr LexicalAddress) (value.Var, error) {
	f, err := walk(h, e, addr.Depth)
	if err != nil {
		return value.None(), err
	}
	if int(addr.Offset) >= len(f.Slots) {
		return value.None(), fmt.Errorf("%w: %s in frame of %d", ErrOffset, addr, len(f.Slots))
	}
	return f.Slots[addr.Offset], nil
}

// Store writes v into the slot at addr.
func Store(h *heap.Heap, e value.Var, addr LexicalAddress, v value.Var) error {
	f, err := walk(h, e, addr.Depth)
	if err != nil {
		return err
	}
	if int(addr.Offset) >= len(f.Slots) {
		return fmt.Errorf("%w: %s in frame of %d", ErrOffset, addr, len(f.Slots))
	}
	f.Slots[addr.Offset] = v
	return nil
}

// Parent returns the enclosing environment or none.
func Parent(h *heap.Heap, e value.Var) value.Var {
	f, err := frame(h, e)
	if err != nil || !f.HasParent() {
		return value.None()
	}
	return f.Parent
}

// Size returns the slot count of the frame e.
func Size(h *heap.Heap, e value.Var) int {
	f, err := frame(h, e)
	if err != nil {
		return 0
	}
	return len(f.Slots)
}

// Chain returns the number of frames from e to the outermost one.
func Chain(h *heap.Heap, e value.Var) int {
	n := 0
	for e.IsEnvironment() {
		if _, err := frame(h, e); err != nil {
			break
		}
		n++
		e = Parent(h, e)
	}
	return n
}
