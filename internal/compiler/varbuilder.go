package compiler

import (
	"github.com/funvibe/rol/internal/ir"
	"github.com/funvibe/rol/internal/value"
)

const (
	tagShift   = 48
	tagPrefix  = 0x7FF0
	prefixMask = 0x7FF8
	tagBits    = 0x7
)

// VarBuilder emits inline tag tests and boxing for Var words.
type VarBuilder struct {
	b *ir.FunctionBuilder
}

func NewVarBuilder(b *ir.FunctionBuilder) VarBuilder { return VarBuilder{b: b} }

func (v VarBuilder) ins() ir.InstBuilder { return v.b.Ins() }

// Const loads the raw word of x.
func (v VarBuilder) Const(x value.Var) ir.Value { return v.ins().Iconst(ir.I64, x.U64()) }

// IsInt tests the int tag.
func (v VarBuilder) IsInt(w ir.Value) ir.Value {
	tag := v.ins().Band(w, v.ins().Iconst(ir.I64, value.PointerTagMask))
	return v.ins().IcmpImm(ir.IntEq, tag, value.IntTag)
}

// IsFloat is true unless w carries the tagged signaling-NaN prefix.
func (v VarBuilder) IsFloat(w ir.Value) ir.Value {
	top := v.ins().Ushr(w, tagShift)
	prefix := v.ins().Band(top, v.ins().Iconst(ir.I64, prefixMask))
	notPrefix := v.ins().IcmpImm(ir.IntNe, prefix, tagPrefix)
	tag := v.ins().Band(top, v.ins().Iconst(ir.I64, tagBits))
	noTag := v.ins().IcmpImm(ir.IntEq, tag, 0)
	return v.ins().Bor(notPrefix, noTag)
}

func (v VarBuilder) IsNumber(w ir.Value) ir.Value {
	return v.ins().Bor(v.IsInt(w), v.IsFloat(w))
}

// IntPayload sign-extends the int32 payload of an int word.
func (v VarBuilder) IntPayload(w ir.Value) ir.Value { return v.ins().Sextend32(w) }

// BoxInt keeps the low 32 bits of x and tags them as an int.
func (v VarBuilder) BoxInt(x ir.Value) ir.Value {
	return v.ins().Bor(v.ins().Ireduce32(x), v.ins().Iconst(ir.I64, value.IntTag))
}

// ToFloat returns the float bits of a numeric word.
func (v VarBuilder) ToFloat(w ir.Value) ir.Value {
	converted := v.ins().FcvtFromSint(v.IntPayload(w))
	return v.ins().Select(v.IsInt(w), converted, w)
}

// BoxBool turns a flag into a bool word.
func (v VarBuilder) BoxBool(flag ir.Value) ir.Value {
	return v.ins().Select(flag, v.Const(value.Bool(true)), v.Const(value.Bool(false)))
}

// Truthy turns a 0/1 word returned by a runtime helper into a flag.
func (v VarBuilder) Truthy(word ir.Value) ir.Value { return v.ins().IcmpImm(ir.IntNe, word, 0) }

type arithOp uint8

const (
	arithAdd arithOp = iota
	arithSub
	arithMul
	arithDiv
)

// Arith emits a numeric binary operation. Two ints give a wrapped int32
// except for division; any float operand gives a float; anything else
// gives none.
func (v VarBuilder) Arith(op arithOp, a, b ir.Value) ir.Value {
	fb := v.b
	floatBlk := fb.CreateBlock()
	noneBlk := fb.CreateBlock()
	merge := fb.CreateBlock()
	result := fb.AppendBlockParam(merge, ir.I64)

	if op != arithDiv {
		intBlk := fb.CreateBlock()
		checkBlk := fb.CreateBlock()
		bothInt := v.ins().Band(v.IsInt(a), v.IsInt(b))
		v.ins().Brif(bothInt, intBlk, nil, checkBlk, nil)
		fb.SealBlock(intBlk)
		fb.SealBlock(checkBlk)

		fb.SwitchToBlock(intBlk)
		x, y := v.IntPayload(a), v.IntPayload(b)
		var r ir.Value
		switch op {
		case arithAdd:
			r = v.ins().Iadd(x, y)
		case arithSub:
			r = v.ins().Isub(x, y)
		default:
			r = v.ins().Imul(x, y)
		}
		v.ins().Jump(merge, v.BoxInt(r))

		fb.SwitchToBlock(checkBlk)
	}

	bothNum := v.ins().Band(v.IsNumber(a), v.IsNumber(b))
	v.ins().Brif(bothNum, floatBlk, nil, noneBlk, nil)
	fb.SealBlock(floatBlk)
	fb.SealBlock(noneBlk)

	fb.SwitchToBlock(floatBlk)
	x, y := v.ToFloat(a), v.ToFloat(b)
	var r ir.Value
	switch op {
	case arithAdd:
		r = v.ins().Fadd(x, y)
	case arithSub:
		r = v.ins().Fsub(x, y)
	case arithMul:
		r = v.ins().Fmul(x, y)
	default:
		r = v.ins().Fdiv(x, y)
	}
	v.ins().Jump(merge, r)

	fb.SwitchToBlock(noneBlk)
	v.ins().Jump(merge, v.Const(value.None()))

	fb.SwitchToBlock(merge)
	fb.SealBlock(merge)
	return result
}

// Compare emits an ordering test with an inline numeric fast path. When
// either operand is not a number, slow(code, a, b) is called instead.
func (v VarBuilder) Compare(cc ir.FloatCC, a, b ir.Value, slow ir.FuncRef) ir.Value {
	fb := v.b
	fastBlk := fb.CreateBlock()
	slowBlk := fb.CreateBlock()
	merge := fb.CreateBlock()
	result := fb.AppendBlockParam(merge, ir.I64)

	bothNum := v.ins().Band(v.IsNumber(a), v.IsNumber(b))
	v.ins().Brif(bothNum, fastBlk, nil, slowBlk, nil)
	fb.SealBlock(fastBlk)
	fb.SealBlock(slowBlk)

	fb.SwitchToBlock(fastBlk)
	flag := v.ins().Fcmp(cc, v.ToFloat(a), v.ToFloat(b))
	v.ins().Jump(merge, v.BoxBool(flag))

	fb.SwitchToBlock(slowBlk)
	code := v.ins().Iconst(ir.I64, uint64(cc))
	v.ins().Jump(merge, v.ins().Call(slow, code, a, b))

	fb.SwitchToBlock(merge)
	fb.SealBlock(merge)
	return result
}
