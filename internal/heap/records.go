package heap

import (
	"github.com/funvibe/rol/internal/value"
)

// Kind identifies a record layout.
type Kind uint8

const (
	KindString Kind = iota + 1
	KindVector
	KindFrame
	KindClosure
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "LispString"
	case KindVector:
		return "LispVector"
	case KindFrame:
		return "Environment"
	case KindClosure:
		return "Closure"
	default:
		return "Unknown"
	}
}

const (
	wordSize     = 8
	stringHeader = wordSize     // length
	vectorHeader = 2 * wordSize // length, capacity
	frameHeader  = 2 * wordSize // slot count, parent
	closureSize  = 2 * wordSize // arity, env
)

// Record is implemented by every arena-resident object.
type Record interface {
	Kind() Kind
	// TraceChildren calls visit once for every Var slot the record holds
	// directly, in slot order.
	TraceChildren(visit func(value.Var))
	SizeBytes() int
	TypeName() string
}

// String is an immutable byte string: a length header followed by the bytes.
type String struct {
	length uint64
	data   []byte
}

func (s *String) Kind() Kind                    { return KindString }
func (s *String) TraceChildren(func(value.Var)) {}
func (s *String) SizeBytes() int                { return stringHeader + int(s.length) }
func (s *String) TypeName() string              { return KindString.String() }
func (s *String) Len() int                      { return int(s.length) }
func (s *String) Bytes() []byte                 { return s.data[:s.length:s.length] }
func (s *String) Str() string                   { return string(s.data[:s.length]) }

// Vector is a growable run of Var slots. Only the first length slots are
// populated; capacity slots are allocated.
type Vector struct {
	length   uint64
	capacity uint64
	slots    []value.Var
}

func (v *Vector) Kind() Kind       { return KindVector }
func (v *Vector) SizeBytes() int   { return vectorHeader + int(v.capacity)*wordSize }
func (v *Vector) TypeName() string { return KindVector.String() }
func (v *Vector) Len() int         { return int(v.length) }
func (v *Vector) Cap() int         { return int(v.capacity) }

func (v *Vector) TraceChildren(visit func(value.Var)) {
	for _, elem := range v.slots[:v.length] {
		visit(elem)
	}
}

// AsSlice borrows the populated slots. The slice aliases the record and is
// valid until the record is freed or reallocated by a push.
func (v *Vector) AsSlice() []value.Var { return v.slots[:v.length:v.length] }

// Set overwrites a populated slot, reporting false when i is out of range.
func (v *Vector) Set(i int, x value.Var) bool {
	if i < 0 || uint64(i) >= v.length {
		return false
	}
	v.slots[i] = x
	return true
}

// Frame is one lexical scope: a fixed number of slots and an optional
// enclosing frame.
type Frame struct {
	Slots  []value.Var
	Parent value.Var
}

func (f *Frame) Kind() Kind       { return KindFrame }
func (f *Frame) SizeBytes() int   { return frameHeader + len(f.Slots)*wordSize }
func (f *Frame) TypeName() string { return KindFrame.String() }

// HasParent reports whether the frame links to an enclosing environment.
func (f *Frame) HasParent() bool { return f.Parent.IsEnvironment() }

func (f *Frame) TraceChildren(visit func(value.Var)) {
	for _, slot := range f.Slots {
		visit(slot)
	}
	if f.HasParent() {
		visit(f.Parent)
	}
}

// Closure pairs an arity with a captured environment chain.
type Closure struct {
	Arity int
	Env   value.Var
}

func (c *Closure) Kind() Kind       { return KindClosure }
func (c *Closure) SizeBytes() int   { return closureSize }
func (c *Closure) TypeName() string { return KindClosure.String() }

func (c *Closure) TraceChildren(visit func(value.Var)) {
	visit(c.Env)
}
