package protocol

import (
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"

	"github.com/funvibe/rol/internal/heap"
	"github.com/funvibe/rol/internal/symbol"
	"github.com/funvibe/rol/internal/value"
)

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareFloat treats unordered (NaN) pairs as equal.
func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func same(_ *heap.Heap, v value.Var) value.Var { return v }
func noDrop(*heap.Heap, value.Var)             {}
func alwaysTrue(*heap.Heap, value.Var) bool    { return true }
func rawEquals(_ *heap.Heap, a, b value.Var) bool {
	return a == b
}

func mustInt(v value.Var) int32 {
	i, _ := v.AsInt()
	return i
}

func mustFloat(v value.Var) float64 {
	d, _ := v.AsDouble()
	return d
}

func mustBool(v value.Var) bool {
	b, _ := v.AsBool()
	return b
}

var noneProtocol = TypeProtocol{
	Name:     "none",
	ToString: func(*heap.Heap, value.Var) string { return "none" },
	Hash:     func(*heap.Heap, value.Var) uint64 { return 0 },
	Equals:   func(*heap.Heap, value.Var, value.Var) bool { return true },
	Compare:  func(*heap.Heap, value.Var, value.Var) int { return 0 },
	IsTruthy: func(*heap.Heap, value.Var) bool { return false },
	Clone:    same,
	Drop:     noDrop,
}

var boolProtocol = TypeProtocol{
	Name:     "bool",
	ToString: func(_ *heap.Heap, v value.Var) string { return strconv.FormatBool(mustBool(v)) },
	Hash: func(_ *heap.Heap, v value.Var) uint64 {
		if mustBool(v) {
			return 1
		}
		return 0
	},
	Equals: rawEquals,
	Compare: func(_ *heap.Heap, a, b value.Var) int {
		x, y := mustBool(a), mustBool(b)
		switch {
		case !x && y:
			return -1
		case x && !y:
			return 1
		}
		return 0
	},
	IsTruthy: func(_ *heap.Heap, v value.Var) bool { return mustBool(v) },
	Clone:    same,
	Drop:     noDrop,
}

var intProtocol = TypeProtocol{
	Name:     "int",
	ToString: func(_ *heap.Heap, v value.Var) string { return strconv.FormatInt(int64(mustInt(v)), 10) },
	Hash:     func(_ *heap.Heap, v value.Var) uint64 { return uint64(int64(mustInt(v))) },
	Equals:   rawEquals,
	Compare: func(_ *heap.Heap, a, b value.Var) int {
		return compareInt(int64(mustInt(a)), int64(mustInt(b)))
	},
	IsTruthy: func(_ *heap.Heap, v value.Var) bool { return mustInt(v) != 0 },
	Clone:    same,
	Drop:     noDrop,
}

var floatProtocol = TypeProtocol{
	Name:     "float",
	ToString: func(_ *heap.Heap, v value.Var) string { return value.FormatFloat(mustFloat(v)) },
	Hash: func(_ *heap.Heap, v value.Var) uint64 {
		d := mustFloat(v)
		if d == math.Trunc(d) && d >= math.MinInt32 && d <= math.MaxInt32 {
			// Integral floats equal an int (and -0.0 equals 0), so they hash as one.
			return uint64(int64(d))
		}
		return math.Float64bits(d)
	},
	Equals:   func(_ *heap.Heap, a, b value.Var) bool { return mustFloat(a) == mustFloat(b) },
	Compare:  func(_ *heap.Heap, a, b value.Var) int { return compareFloat(mustFloat(a), mustFloat(b)) },
	IsTruthy: func(_ *heap.Heap, v value.Var) bool { d := mustFloat(v); return d != 0 && !math.IsNaN(d) },
	Clone:    same,
	Drop:     noDrop,
}

var symbolProtocol = TypeProtocol{
	Name: "symbol",
	ToString: func(_ *heap.Heap, v value.Var) string {
		s, _ := symbol.FromVar(v)
		if name, ok := symbol.Global().Name(s); ok {
			return name
		}
		return fmt.Sprintf("sym(%d)", uint32(s))
	},
	Hash: func(_ *heap.Heap, v value.Var) uint64 {
		id, _ := v.AsSymbol()
		return uint64(id)
	},
	Equals: rawEquals,
	Compare: func(_ *heap.Heap, a, b value.Var) int {
		x, _ := a.AsSymbol()
		y, _ := b.AsSymbol()
		return compareInt(int64(x), int64(y))
	},
	IsTruthy: alwaysTrue,
	Clone:    same,
	Drop:     noDrop,
}

func listElems(h *heap.Heap, v value.Var) []value.Var {
	elems, _ := h.ListOf(v)
	return elems
}

// sequenceNext walks the integer keys 0..n-1.
func sequenceNext(n int, key value.Var) value.Var {
	if key.IsNone() {
		if n == 0 {
			return value.None()
		}
		return value.Int(0)
	}
	i, ok := key.AsInt()
	if !ok || int(i)+1 >= n || i < 0 {
		return value.None()
	}
	return value.Int(i + 1)
}

var listProtocol = TypeProtocol{
	Name:     "list",
	ToString: func(h *heap.Heap, v value.Var) string { return listString(h, v, nil) },
	Hash: func(h *heap.Heap, v value.Var) uint64 {
		elems := listElems(h, v)
		hash := uint64(len(elems))
		for i, item := range elems {
			if i == 3 {
				break
			}
			// Nested lists contribute their length only, so cycles terminate.
			eh := uint64(len(listElems(h, item)))
			if !item.IsList() {
				eh = Hash(h, item)
			}
			hash ^= eh * uint64(i+1)
		}
		return hash
	},
	Equals:  func(h *heap.Heap, a, b value.Var) bool { return listEqual(h, a, b, nil) },
	Compare: func(h *heap.Heap, a, b value.Var) int { return listCompare(h, a, b, nil) },
	Length:  func(h *heap.Heap, v value.Var) int { return len(listElems(h, v)) },
	Get: func(h *heap.Heap, v, key value.Var) value.Var {
		elems := listElems(h, v)
		if i, ok := key.AsInt(); ok && i >= 0 && int(i) < len(elems) {
			return elems[i]
		}
		return value.None()
	},
	Put: func(h *heap.Heap, v, key, val value.Var) bool {
		hd, _ := v.AsListHandle()
		vec, ok := h.LookupVector(hd)
		if !ok {
			return false
		}
		i, ok := key.AsInt()
		return ok && vec.Set(int(i), val)
	},
	Next: func(h *heap.Heap, v, key value.Var) value.Var {
		return sequenceNext(len(listElems(h, v)), key)
	},
	IsTruthy: func(h *heap.Heap, v value.Var) bool { return len(listElems(h, v)) > 0 },
	// Vectors are mutable, so a clone is a fresh shallow copy.
	Clone: func(h *heap.Heap, v value.Var) value.Var { return h.NewList(listElems(h, v)) },
	Drop:  func(h *heap.Heap, v value.Var) { _ = h.FreeVar(v) },
}

// listString prints v, writing [...] for a list already open on the
// current path.
func listString(h *heap.Heap, v value.Var, open map[value.Handle]bool) string {
	hd, _ := v.AsHandle()
	elems, ok := h.ListOf(v)
	if !ok {
		return fmt.Sprintf("<freed list %s>", hd)
	}
	if open[hd] {
		return "[...]"
	}
	if open == nil {
		open = make(map[value.Handle]bool)
	}
	open[hd] = true
	defer delete(open, hd)

	var sb strings.Builder
	sb.WriteByte('[')
	for i, item := range elems {
		if i > 0 {
			sb.WriteString(", ")
		}
		if item.IsList() {
			sb.WriteString(listString(h, item, open))
			continue
		}
		sb.WriteString(ToString(h, item))
	}
	sb.WriteByte(']')
	return sb.String()
}

type listPair struct{ a, b value.Handle }

func pairOf(a, b value.Var) listPair {
	x, _ := a.AsHandle()
	y, _ := b.AsHandle()
	return listPair{x, y}
}

// listEqual treats a pair already under comparison as equal, so cyclic
// lists of the same shape compare equal.
func listEqual(h *heap.Heap, a, b value.Var, active map[listPair]bool) bool {
	if a == b {
		return true
	}
	x, y := listElems(h, a), listElems(h, b)
	if len(x) != len(y) {
		return false
	}
	p := pairOf(a, b)
	if active[p] {
		return true
	}
	if active == nil {
		active = make(map[listPair]bool)
	}
	active[p] = true
	defer delete(active, p)

	for i := range x {
		if x[i].IsList() && y[i].IsList() {
			if !listEqual(h, x[i], y[i], active) {
				return false
			}
			continue
		}
		if !Equal(h, x[i], y[i]) {
			return false
		}
	}
	return true
}

// listCompare orders lists element by element. A pair already under
// comparison orders as equal.
func listCompare(h *heap.Heap, a, b value.Var, active map[listPair]bool) int {
	p := pairOf(a, b)
	if a == b || active[p] {
		return 0
	}
	if active == nil {
		active = make(map[listPair]bool)
	}
	active[p] = true
	defer delete(active, p)

	x, y := listElems(h, a), listElems(h, b)
	for i := 0; i < len(x) && i < len(y); i++ {
		var c int
		if x[i].IsList() && y[i].IsList() {
			c = listCompare(h, x[i], y[i], active)
		} else {
			var ok bool
			c, ok = Compare(h, x[i], y[i])
			if !ok {
				c = compareInt(int64(x[i].Type()), int64(y[i].Type()))
			}
		}
		if c != 0 {
			return c
		}
	}
	return compareInt(int64(len(x)), int64(len(y)))
}

func stringOf(h *heap.Heap, v value.Var) string {
	s, _ := h.StringOf(v)
	return s
}

var stringProtocol = TypeProtocol{
	Name:     "string",
	ToString: func(h *heap.Heap, v value.Var) string { return stringOf(h, v) },
	Hash: func(h *heap.Heap, v value.Var) uint64 {
		f := fnv.New64a()
		f.Write([]byte(stringOf(h, v)))
		return f.Sum64()
	},
	Equals:  func(h *heap.Heap, a, b value.Var) bool { return stringOf(h, a) == stringOf(h, b) },
	Compare: func(h *heap.Heap, a, b value.Var) int { return strings.Compare(stringOf(h, a), stringOf(h, b)) },
	Length:  func(h *heap.Heap, v value.Var) int { return len(stringOf(h, v)) },
	// Get indexes by character and returns a one-character string.
	Get: func(h *heap.Heap, v, key value.Var) value.Var {
		i, ok := key.AsInt()
		if !ok || i < 0 {
			return value.None()
		}
		runes := []rune(stringOf(h, v))
		if int(i) >= len(runes) {
			return value.None()
		}
		return h.NewString(string(runes[i]))
	},
	Next: func(h *heap.Heap, v, key value.Var) value.Var {
		return sequenceNext(len([]rune(stringOf(h, v))), key)
	},
	IsTruthy: func(h *heap.Heap, v value.Var) bool { return len(stringOf(h, v)) > 0 },
	// Strings are immutable and can be shared.
	Clone: same,
	Drop:  func(h *heap.Heap, v value.Var) { _ = h.FreeVar(v) },
}

var pointerProtocol = TypeProtocol{
	Name: "pointer",
	ToString: func(_ *heap.Heap, v value.Var) string {
		return fmt.Sprintf("ptr(0x%x)", v.U64()&value.PayloadMask)
	},
	Hash:   func(_ *heap.Heap, v value.Var) uint64 { return v.U64() & value.PayloadMask },
	Equals: rawEquals,
	Compare: func(_ *heap.Heap, a, b value.Var) int {
		x, y := a.U64()&value.PayloadMask, b.U64()&value.PayloadMask
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	},
	IsTruthy: alwaysTrue,
	Clone:    same,
	Drop:     noDrop,
}

func handleCompare(_ *heap.Heap, a, b value.Var) int {
	x, _ := a.AsHandle()
	y, _ := b.AsHandle()
	return compareInt(int64(x), int64(y))
}

func handleHash(_ *heap.Heap, v value.Var) uint64 {
	hd, _ := v.AsHandle()
	return uint64(hd)
}

var environmentProtocol = TypeProtocol{
	Name: "environment",
	ToString: func(h *heap.Heap, v value.Var) string {
		hd, _ := v.AsEnvironmentHandle()
		f, ok := h.LookupFrame(hd)
		if !ok {
			return fmt.Sprintf("<freed environment %s>", hd)
		}
		return fmt.Sprintf("<environment %s slots=%d>", hd, len(f.Slots))
	},
	Hash:    handleHash,
	Equals:  rawEquals,
	Compare: handleCompare,
	Length: func(h *heap.Heap, v value.Var) int {
		hd, _ := v.AsEnvironmentHandle()
		if f, ok := h.LookupFrame(hd); ok {
			return len(f.Slots)
		}
		return 0
	},
	IsTruthy: alwaysTrue,
	Clone:    same,
	Drop:     func(h *heap.Heap, v value.Var) { _ = h.FreeVar(v) },
}

var closureProtocol = TypeProtocol{
	Name: "closure",
	ToString: func(h *heap.Heap, v value.Var) string {
		hd, _ := v.AsClosureHandle()
		c, ok := h.LookupClosure(hd)
		if !ok {
			return fmt.Sprintf("<freed closure %s>", hd)
		}
		return fmt.Sprintf("<closure %s arity=%d>", hd, c.Arity)
	},
	Hash:     handleHash,
	Equals:   rawEquals,
	Compare:  handleCompare,
	IsTruthy: alwaysTrue,
	Clone:    same,
	Drop:     func(h *heap.Heap, v value.Var) { _ = h.FreeVar(v) },
}
