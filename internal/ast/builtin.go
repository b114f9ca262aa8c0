package ast

import (
	"github.com/funvibe/rol/internal/config"
	"github.com/funvibe/rol/internal/symbol"
)

// BuiltinOp is an operator the compiler lowers inline.
type BuiltinOp uint8

const (
	OpAdd BuiltinOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpNot
)

var builtinNames = [...]string{
	OpAdd: config.AddOpName,
	OpSub: config.SubOpName,
	OpMul: config.MulOpName,
	OpDiv: config.DivOpName,
	OpMod: config.ModOpName,
	OpEq:  config.EqOpName,
	OpNe:  config.NeOpName,
	OpLt:  config.LtOpName,
	OpLe:  config.LeOpName,
	OpGt:  config.GtOpName,
	OpGe:  config.GeOpName,
	OpAnd: config.AndOpName,
	OpOr:  config.OrOpName,
	OpNot: config.NotOpName,
}

var builtinBySymbol map[symbol.Symbol]BuiltinOp

func init() {
	builtinBySymbol = make(map[symbol.Symbol]BuiltinOp, len(builtinNames))
	for op, name := range builtinNames {
		builtinBySymbol[symbol.Mk(name)] = BuiltinOp(op)
	}
}

func (op BuiltinOp) String() string {
	if int(op) < len(builtinNames) {
		return builtinNames[op]
	}
	return "?"
}

// Arity is the exact number of arguments op takes.
func (op BuiltinOp) Arity() int {
	if op == OpNot {
		return 1
	}
	return 2
}

// BuiltinFromSymbol reports the operator named by s.
func BuiltinFromSymbol(s symbol.Symbol) (BuiltinOp, bool) {
	op, ok := builtinBySymbol[s]
	return op, ok
}

// Builtins lists every operator.
func Builtins() []BuiltinOp {
	ops := make([]BuiltinOp, len(builtinNames))
	for i := range ops {
		ops[i] = BuiltinOp(i)
	}
	return ops
}
