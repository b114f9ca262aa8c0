package compiler

import (
	"math"

	"github.com/funvibe/rol/internal/config"
	"github.com/funvibe/rol/internal/env"
	"github.com/funvibe/rol/internal/heap"
	"github.com/funvibe/rol/internal/ir"
	"github.com/funvibe/rol/internal/jit"
	"github.com/funvibe/rol/internal/protocol"
	"github.com/funvibe/rol/internal/value"
)

// runtimeFunc is a host helper callable from compiled code.
type runtimeFunc struct {
	name  string
	arity int
	impl  func(h *heap.Heap, args []uint64) uint64
}

var runtimeFuncs = []runtimeFunc{
	{config.EnvGetSymbol, 3, envGet},
	{config.EnvCreateSymbol, 2, envCreate},
	{config.EnvSetSymbol, 4, envSet},
	{config.TruthySymbol, 1, rtTruthy},
	{config.EqualsSymbol, 2, rtEquals},
	{config.CompareSymbol, 3, rtCompare},
	{config.ModSymbol, 2, rtMod},
}

func (f runtimeFunc) sig() ir.Signature { return ir.WordSignature(f.arity) }

// registerRuntime binds every helper to h.
func registerRuntime(b *jit.Builder, h *heap.Heap) {
	for _, f := range runtimeFuncs {
		impl := f.impl
		b.Symbol(f.name, func(args []uint64) uint64 { return impl(h, args) })
	}
}

func envGet(h *heap.Heap, args []uint64) uint64 {
	return env.WordGet(h, args[0], uint32(args[1]), uint32(args[2]))
}

func envCreate(h *heap.Heap, args []uint64) uint64 {
	return env.WordCreate(h, uint32(args[0]), args[1])
}

func envSet(h *heap.Heap, args []uint64) uint64 {
	return env.WordSet(h, args[0], uint32(args[1]), uint32(args[2]), args[3])
}

// rtTruthy returns 1 for a truthy word and 0 otherwise.
func rtTruthy(h *heap.Heap, args []uint64) uint64 {
	if protocol.Truthy(h, value.FromU64(args[0])) {
		return 1
	}
	return 0
}

func rtEquals(h *heap.Heap, args []uint64) uint64 {
	return value.Bool(protocol.Equal(h, value.FromU64(args[0]), value.FromU64(args[1]))).U64()
}

// rtCompare applies the float condition code in args[0] to the ordering of
// two non-numeric words. Incomparable operands give none.
func rtCompare(h *heap.Heap, args []uint64) uint64 {
	c, ok := protocol.Compare(h, value.FromU64(args[1]), value.FromU64(args[2]))
	if !ok {
		return value.None().U64()
	}
	var r bool
	switch ir.FloatCC(args[0]) {
	case ir.FloatLt:
		r = c < 0
	case ir.FloatLe:
		r = c <= 0
	case ir.FloatGt:
		r = c > 0
	case ir.FloatGe:
		r = c >= 0
	case ir.FloatEq:
		r = c == 0
	case ir.FloatNe:
		r = c != 0
	default:
		return value.None().U64()
	}
	return value.Bool(r).U64()
}

// rtMod is the remainder with the sign of the dividend. Two ints with a
// non-zero divisor give an int; other numeric pairs give a float.
func rtMod(_ *heap.Heap, args []uint64) uint64 {
	a, b := value.FromU64(args[0]), value.FromU64(args[1])
	if x, ok := a.AsInt(); ok {
		if y, ok := b.AsInt(); ok && y != 0 {
			return value.Int(x % y).U64()
		}
	}
	x, okA := numeric(a)
	y, okB := numeric(b)
	if !okA || !okB {
		return value.None().U64()
	}
	return value.Float(math.Mod(x, y)).U64()
}

func numeric(v value.Var) (float64, bool) {
	if i, ok := v.AsInt(); ok {
		return float64(i), true
	}
	return v.AsDouble()
}
