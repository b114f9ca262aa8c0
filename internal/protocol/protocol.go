// Package protocol provides the per-type operation tables used for
// polymorphic operations on Vars (printing, hashing, equality, ordering,
// indexing, truthiness). Adding a value kind means adding one table.
package protocol

import (
	"github.com/funvibe/rol/internal/heap"
	"github.com/funvibe/rol/internal/value"
)

// TypeProtocol is the uniform operation set of one value tag. Every
// function assumes its Var arguments carry the table's tag; callers route
// through For to guarantee that. Optional operations are nil when the
// type does not support them.
type TypeProtocol struct {
	Name string

	ToString func(h *heap.Heap, v value.Var) string
	Hash     func(h *heap.Heap, v value.Var) uint64
	Equals   func(h *heap.Heap, a, b value.Var) bool
	// Compare returns -1, 0 or 1.
	Compare func(h *heap.Heap, a, b value.Var) int

	Length func(h *heap.Heap, v value.Var) int
	Get    func(h *heap.Heap, v, key value.Var) value.Var
	Put    func(h *heap.Heap, v, key, val value.Var) bool
	// Next returns the key after key, or none when iteration is done.
	// Passing none yields the first key.
	Next func(h *heap.Heap, v, key value.Var) value.Var
	Call func(h *heap.Heap, v value.Var, args []value.Var) value.Var

	IsTruthy func(h *heap.Heap, v value.Var) bool
	Clone    func(h *heap.Heap, v value.Var) value.Var
	Drop     func(h *heap.Heap, v value.Var)
}

// tables is filled in init: the table functions dispatch back through it.
var tables map[value.Type]*TypeProtocol

func init() {
	tables = map[value.Type]*TypeProtocol{
		value.TypeNone:        &noneProtocol,
		value.TypeBool:        &boolProtocol,
		value.TypeInt:         &intProtocol,
		value.TypeFloat:       &floatProtocol,
		value.TypeSymbol:      &symbolProtocol,
		value.TypeList:        &listProtocol,
		value.TypeString:      &stringProtocol,
		value.TypePointer:     &pointerProtocol,
		value.TypeEnvironment: &environmentProtocol,
		value.TypeClosure:     &closureProtocol,
	}
}

// Register installs or replaces the table for t. It is not safe to call
// concurrently with dispatch.
func Register(t value.Type, p *TypeProtocol) {
	tables[t] = p
}

// Get returns the table registered for t, falling back to the pointer table.
func Get(t value.Type) *TypeProtocol {
	if p, ok := tables[t]; ok {
		return p
	}
	return &pointerProtocol
}

// For returns the table for v's own tag.
func For(v value.Var) *TypeProtocol { return Get(v.Type()) }

// Dispatch helpers. These pick the table from the first operand and handle
// cross-type cases the per-type tables do not see.

func ToString(h *heap.Heap, v value.Var) string { return For(v).ToString(h, v) }

func Hash(h *heap.Heap, v value.Var) uint64 { return For(v).Hash(h, v) }

func Truthy(h *heap.Heap, v value.Var) bool { return For(v).IsTruthy(h, v) }

// Equal compares values of any tags. Ints and floats compare numerically;
// other mismatched tags are unequal.
func Equal(h *heap.Heap, a, b value.Var) bool {
	if a.Type() != b.Type() {
		if x, y, ok := numericPair(a, b); ok {
			return x == y
		}
		return false
	}
	return For(a).Equals(h, a, b)
}

// Compare orders values of any tags. ok is false when the tags differ and
// are not both numeric.
func Compare(h *heap.Heap, a, b value.Var) (int, bool) {
	if a.Type() != b.Type() {
		x, y, ok := numericPair(a, b)
		if !ok {
			return 0, false
		}
		return compareFloat(x, y), true
	}
	return For(a).Compare(h, a, b), true
}

// Len returns the length of v when its type has one.
func Len(h *heap.Heap, v value.Var) (int, bool) {
	p := For(v)
	if p.Length == nil {
		return 0, false
	}
	return p.Length(h, v), true
}

// Index reads v[key] when v's type is indexable.
func Index(h *heap.Heap, v, key value.Var) (value.Var, bool) {
	p := For(v)
	if p.Get == nil {
		return value.None(), false
	}
	return p.Get(h, v, key), true
}

func numericPair(a, b value.Var) (float64, float64, bool) {
	x, ok := toFloat(a)
	if !ok {
		return 0, 0, false
	}
	y, ok := toFloat(b)
	if !ok {
		return 0, 0, false
	}
	return x, y, true
}

func toFloat(v value.Var) (float64, bool) {
	if i, ok := v.AsInt(); ok {
		return float64(i), true
	}
	return v.AsDouble()
}
