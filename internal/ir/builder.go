package ir

import (
	"errors"
	"fmt"
)

var (
	ErrNoCurrentBlock   = errors.New("no current block")
	ErrBlockTerminated  = errors.New("block already terminated")
	ErrBranchToSealed   = errors.New("branch to sealed block")
	ErrParamAfterInsts  = errors.New("block parameter added after instructions")
	ErrUnknownBlock     = errors.New("unknown block")
	ErrAlreadyFinalized = errors.New("builder already finalized")
)

// FunctionBuilder constructs a Function one instruction at a time. The
// first error is kept and reported by Finalize; later calls become
// no-ops that return placeholder values.
type FunctionBuilder struct {
	fn        *Function
	current   Block
	hasBlock  bool
	finalized bool
	err       error
}

func NewFunctionBuilder(name string, sig Signature) *FunctionBuilder {
	return &FunctionBuilder{fn: &Function{Name: name, Sig: sig}}
}

func (b *FunctionBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Err returns the first error recorded so far.
func (b *FunctionBuilder) Err() error { return b.err }

func (b *FunctionBuilder) Func() *Function { return b.fn }

func (b *FunctionBuilder) newValue(t Type) Value {
	b.fn.ValueTypes = append(b.fn.ValueTypes, t)
	return Value(len(b.fn.ValueTypes) - 1)
}

// CreateBlock adds an empty block. The first block created is the entry.
func (b *FunctionBuilder) CreateBlock() Block {
	b.fn.Blocks = append(b.fn.Blocks, &BlockData{})
	return Block(len(b.fn.Blocks) - 1)
}

func (b *FunctionBuilder) block(blk Block) *BlockData {
	data := b.fn.Block(blk)
	if data == nil {
		b.fail(fmt.Errorf("%w: %s", ErrUnknownBlock, blk))
	}
	return data
}

// AppendBlockParam adds a parameter of type t to blk.
func (b *FunctionBuilder) AppendBlockParam(blk Block, t Type) Value {
	data := b.block(blk)
	if data == nil {
		return 0
	}
	if len(data.Insts) > 0 {
		b.fail(fmt.Errorf("%w: %s", ErrParamAfterInsts, blk))
	}
	v := b.newValue(t)
	data.Params = append(data.Params, v)
	return v
}

// AppendBlockParamsForFunctionParams gives blk one parameter per function
// parameter.
func (b *FunctionBuilder) AppendBlockParamsForFunctionParams(blk Block) {
	for _, t := range b.fn.Sig.Params {
		b.AppendBlockParam(blk, t)
	}
}

func (b *FunctionBuilder) BlockParams(blk Block) []Value {
	if data := b.block(blk); data != nil {
		return data.Params
	}
	return nil
}

// SwitchToBlock makes blk the insertion point.
func (b *FunctionBuilder) SwitchToBlock(blk Block) {
	if b.block(blk) == nil {
		return
	}
	b.current = blk
	b.hasBlock = true
}

func (b *FunctionBuilder) CurrentBlock() (Block, bool) { return b.current, b.hasBlock }

// SealBlock declares that every branch into blk has been emitted.
func (b *FunctionBuilder) SealBlock(blk Block) {
	if data := b.block(blk); data != nil {
		data.Sealed = true
	}
}

func (b *FunctionBuilder) SealAllBlocks() {
	for _, data := range b.fn.Blocks {
		data.Sealed = true
	}
}

// ImportFunction makes name callable from this function.
func (b *FunctionBuilder) ImportFunction(name string, sig Signature) FuncRef {
	for i, ext := range b.fn.ExtFuncs {
		if ext.Name == name && ext.Sig.Equal(sig) {
			return FuncRef(i)
		}
	}
	b.fn.ExtFuncs = append(b.fn.ExtFuncs, ExtFunc{Name: name, Sig: sig})
	return FuncRef(len(b.fn.ExtFuncs) - 1)
}

// Finalize returns the built function. It does not verify it.
func (b *FunctionBuilder) Finalize() (*Function, error) {
	if b.finalized {
		return nil, ErrAlreadyFinalized
	}
	b.finalized = true
	if b.err != nil {
		return nil, b.err
	}
	return b.fn, nil
}

func (b *FunctionBuilder) insert(inst Inst) {
	if !b.hasBlock {
		b.fail(ErrNoCurrentBlock)
		return
	}
	data := b.fn.Blocks[b.current]
	if _, done := data.Terminator(); done {
		b.fail(fmt.Errorf("%w: %s", ErrBlockTerminated, b.current))
		return
	}
	for _, t := range inst.Targets {
		if target := b.block(t.Block); target != nil && target.Sealed {
			b.fail(fmt.Errorf("%w: %s", ErrBranchToSealed, t.Block))
		}
	}
	data.Insts = append(data.Insts, inst)
}

func (b *FunctionBuilder) emit(op Opcode, t Type, args ...Value) Value {
	v := b.newValue(t)
	b.insert(Inst{Op: op, Result: v, HasResult: true, Args: args})
	return v
}

func (b *FunctionBuilder) typeOf(v Value) Type {
	t, ok := b.fn.valueType(v)
	if !ok {
		b.fail(fmt.Errorf("use of undefined value %s", v))
		return I64
	}
	return t
}

// InstBuilder appends instructions at the builder's current block.
type InstBuilder struct{ b *FunctionBuilder }

func (b *FunctionBuilder) Ins() InstBuilder { return InstBuilder{b} }

func (i InstBuilder) Iconst(t Type, imm uint64) Value {
	v := i.b.newValue(t)
	i.b.insert(Inst{Op: OpIconst, Result: v, HasResult: true, Imm: imm})
	return v
}

func (i InstBuilder) Band(x, y Value) Value { return i.b.emit(OpBand, i.b.typeOf(x), x, y) }
func (i InstBuilder) Bor(x, y Value) Value  { return i.b.emit(OpBor, i.b.typeOf(x), x, y) }
func (i InstBuilder) Bxor(x, y Value) Value { return i.b.emit(OpBxor, i.b.typeOf(x), x, y) }

func (i InstBuilder) Ushr(x Value, amount uint64) Value {
	v := i.b.newValue(I64)
	i.b.insert(Inst{Op: OpUshr, Result: v, HasResult: true, Args: []Value{x}, Imm: amount})
	return v
}

func (i InstBuilder) Iadd(x, y Value) Value { return i.b.emit(OpIadd, I64, x, y) }
func (i InstBuilder) Isub(x, y Value) Value { return i.b.emit(OpIsub, I64, x, y) }
func (i InstBuilder) Imul(x, y Value) Value { return i.b.emit(OpImul, I64, x, y) }

func (i InstBuilder) Icmp(cc IntCC, x, y Value) Value {
	v := i.b.newValue(I8)
	i.b.insert(Inst{Op: OpIcmp, Result: v, HasResult: true, Args: []Value{x, y}, Cond: uint8(cc)})
	return v
}

// IcmpImm compares x against an I64 constant.
func (i InstBuilder) IcmpImm(cc IntCC, x Value, imm uint64) Value {
	return i.Icmp(cc, x, i.Iconst(i.b.typeOf(x), imm))
}

func (i InstBuilder) Select(cond, x, y Value) Value {
	return i.b.emit(OpSelect, i.b.typeOf(x), cond, x, y)
}

func (i InstBuilder) Sextend32(x Value) Value    { return i.b.emit(OpSextend32, I64, x) }
func (i InstBuilder) Ireduce32(x Value) Value    { return i.b.emit(OpIreduce32, I64, x) }
func (i InstBuilder) FcvtFromSint(x Value) Value { return i.b.emit(OpFcvtFromSint, I64, x) }

func (i InstBuilder) Fadd(x, y Value) Value { return i.b.emit(OpFadd, I64, x, y) }
func (i InstBuilder) Fsub(x, y Value) Value { return i.b.emit(OpFsub, I64, x, y) }
func (i InstBuilder) Fmul(x, y Value) Value { return i.b.emit(OpFmul, I64, x, y) }
func (i InstBuilder) Fdiv(x, y Value) Value { return i.b.emit(OpFdiv, I64, x, y) }

func (i InstBuilder) Fcmp(cc FloatCC, x, y Value) Value {
	v := i.b.newValue(I8)
	i.b.insert(Inst{Op: OpFcmp, Result: v, HasResult: true, Args: []Value{x, y}, Cond: uint8(cc)})
	return v
}

// Call calls fn and returns its result. Functions without a return value
// yield a value that must not be used.
func (i InstBuilder) Call(fn FuncRef, args ...Value) Value {
	inst := Inst{Op: OpCall, Func: fn, Args: args}
	if int(fn) < len(i.b.fn.ExtFuncs) {
		if rets := i.b.fn.ExtFuncs[fn].Sig.Returns; len(rets) > 0 {
			inst.Result = i.b.newValue(rets[0])
			inst.HasResult = true
		}
	} else {
		i.b.fail(fmt.Errorf("call to undeclared %s", fn))
	}
	i.b.insert(inst)
	return inst.Result
}

func (i InstBuilder) Jump(blk Block, args ...Value) {
	i.b.insert(Inst{Op: OpJump, Targets: []BlockCall{{Block: blk, Args: args}}})
}

// Brif branches to thenBlk when cond is non-zero and to elseBlk otherwise.
func (i InstBuilder) Brif(cond Value, thenBlk Block, thenArgs []Value, elseBlk Block, elseArgs []Value) {
	i.b.insert(Inst{
		Op:   OpBrif,
		Args: []Value{cond},
		Targets: []BlockCall{
			{Block: thenBlk, Args: thenArgs},
			{Block: elseBlk, Args: elseArgs},
		},
	})
}

func (i InstBuilder) Return(vals ...Value) {
	i.b.insert(Inst{Op: OpReturn, Args: vals})
}
