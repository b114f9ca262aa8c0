// Package value implements the NaN-boxed runtime word shared by the heap,
// the compiler and code emitted by the JIT.
package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Type identifies the kind of value stored in a Var.
type Type uint8

const (
	TypeNone Type = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeSymbol
	TypePointer
	TypeString
	TypeList
	TypeEnvironment
	TypeClosure
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeSymbol:
		return "symbol"
	case TypePointer:
		return "pointer"
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeEnvironment:
		return "environment"
	case TypeClosure:
		return "closure"
	default:
		return "unknown"
	}
}

// Var is a single 64-bit word holding any runtime value.
//
// Encoding scheme:
//   - Float: any IEEE 754 double whose top 16 bits are not a tag prefix
//   - Tagged: exponent all 1s, quiet bit clear, 3-bit tag in bits 48-50.
//     These are signaling NaN patterns, which arithmetic never produces.
//   - Sign bit clear: scalars (none, bool, int, symbol, pointer)
//   - Sign bit set: heap references carrying an arena Handle
type Var uint64

const (
	// PointerTagMask separates tag bits from payload bits.
	PointerTagMask uint64 = 0xFFFF000000000000
	// PayloadMask selects the 48 payload bits.
	PayloadMask uint64 = 0x0000FFFFFFFFFFFF

	// CanonicalNaN is the only NaN pattern a float Var ever carries.
	CanonicalNaN uint64 = 0x7FF8000000000000

	tagNone    uint64 = 0x7FF1000000000000
	tagBool    uint64 = 0x7FF2000000000000
	tagInt     uint64 = 0x7FF3000000000000
	tagSymbol  uint64 = 0x7FF4000000000000
	tagPointer uint64 = 0x7FF5000000000000

	tagString      uint64 = 0xFFF1000000000000
	tagList        uint64 = 0xFFF2000000000000
	tagEnvironment uint64 = 0xFFF3000000000000
	tagClosure     uint64 = 0xFFF4000000000000

	heapBit uint64 = 0x8000000000000000
)

// Raw tag prefixes, exported for code generators that test tags inline.
const (
	NoneBits  = tagNone
	FalseBits = tagBool
	TrueBits  = tagBool | 1
	IntTag    = tagInt
)

// Constructors

func None() Var { return Var(tagNone) }

func Bool(b bool) Var {
	if b {
		return Var(TrueBits)
	}
	return Var(FalseBits)
}

func Int(i int32) Var {
	return Var(tagInt | uint64(uint32(i)))
}

// Float boxes d. NaN inputs collapse to CanonicalNaN so no float can
// alias a tagged word.
func Float(d float64) Var {
	if d != d {
		return Var(CanonicalNaN)
	}
	return Var(math.Float64bits(d))
}

func Symbol(id uint32) Var {
	return Var(tagSymbol | uint64(id))
}

// Pointer boxes an opaque 48-bit payload. Bits above 48 are discarded.
func Pointer(addr uint64) Var {
	return Var(tagPointer | (addr & PayloadMask))
}

func String(h Handle) Var      { return Var(tagString | uint64(h)&PayloadMask) }
func List(h Handle) Var        { return Var(tagList | uint64(h)&PayloadMask) }
func Environment(h Handle) Var { return Var(tagEnvironment | uint64(h)&PayloadMask) }
func Closure(h Handle) Var     { return Var(tagClosure | uint64(h)&PayloadMask) }

// FromU64 reinterprets a raw word, as returned by compiled code.
func FromU64(bits uint64) Var { return Var(bits) }

// U64 returns the raw word.
func (v Var) U64() uint64 { return uint64(v) }

func (v Var) tag() uint64 { return uint64(v) & PointerTagMask }

// IsTagged reports whether v carries a non-float tag.
func IsTagged(bits uint64) bool {
	top := bits >> 48
	return top&0x7FF8 == 0x7FF0 && top&0x7 != 0
}

// Type checking helpers

func (v Var) IsFloat() bool       { return !IsTagged(uint64(v)) }
func (v Var) IsNone() bool        { return v.tag() == tagNone }
func (v Var) IsBool() bool        { return v.tag() == tagBool }
func (v Var) IsInt() bool         { return v.tag() == tagInt }
func (v Var) IsSymbol() bool      { return v.tag() == tagSymbol }
func (v Var) IsPointer() bool     { return v.tag() == tagPointer }
func (v Var) IsString() bool      { return v.tag() == tagString }
func (v Var) IsList() bool        { return v.tag() == tagList }
func (v Var) IsEnvironment() bool { return v.tag() == tagEnvironment }
func (v Var) IsClosure() bool     { return v.tag() == tagClosure }
func (v Var) IsNumber() bool      { return v.IsInt() || v.IsFloat() }

// IsHeap reports whether v references an arena record.
func (v Var) IsHeap() bool {
	return uint64(v)&heapBit != 0 && IsTagged(uint64(v))
}

// Type decodes the tag.
func (v Var) Type() Type {
	if !IsTagged(uint64(v)) {
		return TypeFloat
	}
	switch v.tag() {
	case tagNone:
		return TypeNone
	case tagBool:
		return TypeBool
	case tagInt:
		return TypeInt
	case tagSymbol:
		return TypeSymbol
	case tagPointer:
		return TypePointer
	case tagString:
		return TypeString
	case tagList:
		return TypeList
	case tagEnvironment:
		return TypeEnvironment
	case tagClosure:
		return TypeClosure
	}
	// Tagged prefix with an unassigned tag: treat as an opaque pointer.
	return TypePointer
}

func (v Var) payload() uint64 { return uint64(v) & PayloadMask }

// Accessors. Each reports false on a tag mismatch.

func (v Var) AsInt() (int32, bool) {
	if !v.IsInt() {
		return 0, false
	}
	return int32(uint32(v.payload())), true
}

func (v Var) AsDouble() (float64, bool) {
	if !v.IsFloat() {
		return 0, false
	}
	return math.Float64frombits(uint64(v)), true
}

func (v Var) AsBool() (bool, bool) {
	if !v.IsBool() {
		return false, false
	}
	return v.payload() == 1, true
}

func (v Var) AsSymbol() (uint32, bool) {
	if !v.IsSymbol() {
		return 0, false
	}
	return uint32(v.payload()), true
}

func (v Var) AsPointer() (uint64, bool) {
	if !v.IsPointer() {
		return 0, false
	}
	return v.payload(), true
}

// AsHandle returns the arena handle of any heap-referencing value.
func (v Var) AsHandle() (Handle, bool) {
	if !v.IsHeap() {
		return 0, false
	}
	return Handle(v.payload()), true
}

func (v Var) handleIf(ok bool) (Handle, bool) {
	if !ok {
		return 0, false
	}
	return Handle(v.payload()), true
}

func (v Var) AsStringHandle() (Handle, bool)      { return v.handleIf(v.IsString()) }
func (v Var) AsListHandle() (Handle, bool)        { return v.handleIf(v.IsList()) }
func (v Var) AsEnvironmentHandle() (Handle, bool) { return v.handleIf(v.IsEnvironment()) }
func (v Var) AsClosureHandle() (Handle, bool)     { return v.handleIf(v.IsClosure()) }

// String renders v without consulting the heap. Heap values show their
// handle; use the protocol table for a full rendering.
func (v Var) String() string {
	switch v.Type() {
	case TypeNone:
		return "none"
	case TypeBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b)
	case TypeInt:
		i, _ := v.AsInt()
		return strconv.FormatInt(int64(i), 10)
	case TypeFloat:
		d, _ := v.AsDouble()
		return FormatFloat(d)
	case TypeSymbol:
		id, _ := v.AsSymbol()
		return fmt.Sprintf("sym(%d)", id)
	case TypePointer:
		p, _ := v.AsPointer()
		return fmt.Sprintf("ptr(0x%x)", p)
	default:
		h, _ := v.AsHandle()
		return fmt.Sprintf("<%s %s>", v.Type(), h)
	}
}

// FormatFloat prints integral floats with a trailing ".0" so they stay
// distinguishable from ints.
func FormatFloat(d float64) string {
	s := strconv.FormatFloat(d, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eIN") {
		return s + ".0"
	}
	return s
}
