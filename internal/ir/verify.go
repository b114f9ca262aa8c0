package ir

import "fmt"

// VerifyError reports the first structural problem found in a function.
type VerifyError struct {
	Func  string
	Block Block
	// Inst is the instruction index within Block, or -1 for the block itself.
	Inst int
	Msg  string
}

func (e *VerifyError) Error() string {
	if e.Inst < 0 {
		return fmt.Sprintf("verify %s: %s: %s", e.Func, e.Block, e.Msg)
	}
	return fmt.Sprintf("verify %s: %s inst %d: %s", e.Func, e.Block, e.Inst, e.Msg)
}

type verifier struct {
	f *Function
	// def records where each value is defined: its block and instruction
	// index, with -1 meaning a block parameter.
	defBlock []int
	defInst  []int
}

// Verify checks that f is well formed: every block is sealed and ends in
// exactly one terminator, every use refers to a defined value, branch
// arguments match the target's parameters and operand types are
// consistent.
func Verify(f *Function) error {
	if len(f.Blocks) == 0 {
		return &VerifyError{Func: f.Name, Inst: -1, Msg: "function has no blocks"}
	}
	v := &verifier{f: f, defBlock: make([]int, len(f.ValueTypes)), defInst: make([]int, len(f.ValueTypes))}
	for i := range v.defBlock {
		v.defBlock[i] = -1
	}
	for bi, blk := range f.Blocks {
		for _, p := range blk.Params {
			if err := v.define(Block(bi), -1, p); err != nil {
				return err
			}
		}
		for ii := range blk.Insts {
			if inst := &blk.Insts[ii]; inst.HasResult {
				if err := v.define(Block(bi), ii, inst.Result); err != nil {
					return err
				}
			}
		}
	}

	entry := f.Blocks[0]
	if len(entry.Params) != len(f.Sig.Params) {
		return v.errf(0, -1, "entry block has %d params, signature has %d", len(entry.Params), len(f.Sig.Params))
	}
	for i, p := range entry.Params {
		if f.ValueTypes[p] != f.Sig.Params[i] {
			return v.errf(0, -1, "entry param %s is %s, signature wants %s", p, f.ValueTypes[p], f.Sig.Params[i])
		}
	}

	for bi, blk := range f.Blocks {
		b := Block(bi)
		if !blk.Sealed {
			return v.errf(b, -1, "block is not sealed")
		}
		if len(blk.Insts) == 0 {
			return v.errf(b, -1, "block is empty")
		}
		for ii := range blk.Insts {
			inst := &blk.Insts[ii]
			last := ii == len(blk.Insts)-1
			if inst.Op.IsTerminator() != last {
				if last {
					return v.errf(b, ii, "block does not end in a terminator")
				}
				return v.errf(b, ii, "%s before end of block", inst.Op)
			}
			if err := v.checkInst(b, ii, inst); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *verifier) errf(b Block, inst int, format string, args ...any) error {
	return &VerifyError{Func: v.f.Name, Block: b, Inst: inst, Msg: fmt.Sprintf(format, args...)}
}

func (v *verifier) define(b Block, inst int, val Value) error {
	if int(val) >= len(v.defBlock) {
		return v.errf(b, inst, "value %s has no type", val)
	}
	if v.defBlock[val] >= 0 {
		return v.errf(b, inst, "value %s defined twice", val)
	}
	v.defBlock[val] = int(b)
	v.defInst[val] = inst
	return nil
}

func (v *verifier) use(b Block, inst int, val Value) (Type, error) {
	if int(val) >= len(v.defBlock) || v.defBlock[val] < 0 {
		return 0, v.errf(b, inst, "use of undefined value %s", val)
	}
	if v.defBlock[val] == int(b) && v.defInst[val] >= inst {
		return 0, v.errf(b, inst, "use of %s before its definition", val)
	}
	return v.f.ValueTypes[val], nil
}

func (v *verifier) operands(b Block, ii int, inst *Inst, want int) ([]Type, error) {
	if len(inst.Args) != want {
		return nil, v.errf(b, ii, "%s takes %d operands, got %d", inst.Op, want, len(inst.Args))
	}
	types := make([]Type, len(inst.Args))
	for i, a := range inst.Args {
		t, err := v.use(b, ii, a)
		if err != nil {
			return nil, err
		}
		types[i] = t
	}
	return types, nil
}

func (v *verifier) result(b Block, ii int, inst *Inst, want Type) error {
	if !inst.HasResult {
		return v.errf(b, ii, "%s has no result", inst.Op)
	}
	if got := v.f.ValueTypes[inst.Result]; got != want {
		return v.errf(b, ii, "%s result is %s, want %s", inst.Op, got, want)
	}
	return nil
}

func (v *verifier) checkInst(b Block, ii int, inst *Inst) error {
	switch inst.Op {
	case OpIconst:
		if _, err := v.operands(b, ii, inst, 0); err != nil {
			return err
		}
		if !inst.HasResult {
			return v.errf(b, ii, "iconst has no result")
		}
		if v.f.ValueTypes[inst.Result] == I8 && inst.Imm > 1 {
			return v.errf(b, ii, "i8 constant 0x%x out of range", inst.Imm)
		}
		return nil

	case OpBand, OpBor, OpBxor:
		ts, err := v.operands(b, ii, inst, 2)
		if err != nil {
			return err
		}
		if ts[0] != ts[1] {
			return v.errf(b, ii, "%s operand types differ: %s, %s", inst.Op, ts[0], ts[1])
		}
		return v.result(b, ii, inst, ts[0])

	case OpIadd, OpIsub, OpImul, OpFadd, OpFsub, OpFmul, OpFdiv:
		return v.wordOp(b, ii, inst, 2, I64)

	case OpUshr, OpSextend32, OpIreduce32, OpFcvtFromSint:
		return v.wordOp(b, ii, inst, 1, I64)

	case OpIcmp:
		ts, err := v.operands(b, ii, inst, 2)
		if err != nil {
			return err
		}
		if ts[0] != ts[1] {
			return v.errf(b, ii, "icmp operand types differ: %s, %s", ts[0], ts[1])
		}
		if IntCC(inst.Cond) > IntUge {
			return v.errf(b, ii, "invalid condition %s", IntCC(inst.Cond))
		}
		return v.result(b, ii, inst, I8)

	case OpFcmp:
		if FloatCC(inst.Cond) > FloatGe {
			return v.errf(b, ii, "invalid condition %s", FloatCC(inst.Cond))
		}
		return v.wordOp(b, ii, inst, 2, I8)

	case OpSelect:
		ts, err := v.operands(b, ii, inst, 3)
		if err != nil {
			return err
		}
		if ts[0] != I8 {
			return v.errf(b, ii, "select condition is %s, want i8", ts[0])
		}
		if ts[1] != ts[2] {
			return v.errf(b, ii, "select arms differ: %s, %s", ts[1], ts[2])
		}
		return v.result(b, ii, inst, ts[1])

	case OpCall:
		if int(inst.Func) >= len(v.f.ExtFuncs) {
			return v.errf(b, ii, "call to undeclared %s", inst.Func)
		}
		sig := v.f.ExtFuncs[inst.Func].Sig
		ts, err := v.operands(b, ii, inst, len(sig.Params))
		if err != nil {
			return err
		}
		for i, t := range ts {
			if t != sig.Params[i] {
				return v.errf(b, ii, "call argument %d is %s, want %s", i, t, sig.Params[i])
			}
		}
		if len(sig.Returns) > 1 {
			return v.errf(b, ii, "call to %s with %d results", inst.Func, len(sig.Returns))
		}
		if len(sig.Returns) == 1 {
			return v.result(b, ii, inst, sig.Returns[0])
		}
		return nil

	case OpJump:
		if len(inst.Targets) != 1 {
			return v.errf(b, ii, "jump needs one target")
		}
		return v.blockCall(b, ii, inst.Targets[0])

	case OpBrif:
		ts, err := v.operands(b, ii, inst, 1)
		if err != nil {
			return err
		}
		if ts[0] != I8 {
			return v.errf(b, ii, "brif condition is %s, want i8", ts[0])
		}
		if len(inst.Targets) != 2 {
			return v.errf(b, ii, "brif needs two targets")
		}
		for _, t := range inst.Targets {
			if err := v.blockCall(b, ii, t); err != nil {
				return err
			}
		}
		return nil

	case OpReturn:
		ts, err := v.operands(b, ii, inst, len(v.f.Sig.Returns))
		if err != nil {
			return err
		}
		for i, t := range ts {
			if t != v.f.Sig.Returns[i] {
				return v.errf(b, ii, "return value %d is %s, want %s", i, t, v.f.Sig.Returns[i])
			}
		}
		return nil
	}
	return v.errf(b, ii, "unknown opcode %s", inst.Op)
}

// wordOp checks an instruction whose operands are all I64.
func (v *verifier) wordOp(b Block, ii int, inst *Inst, n int, result Type) error {
	ts, err := v.operands(b, ii, inst, n)
	if err != nil {
		return err
	}
	for _, t := range ts {
		if t != I64 {
			return v.errf(b, ii, "%s operand is %s, want i64", inst.Op, t)
		}
	}
	return v.result(b, ii, inst, result)
}

func (v *verifier) blockCall(b Block, ii int, bc BlockCall) error {
	target := v.f.Block(bc.Block)
	if target == nil {
		return v.errf(b, ii, "branch to unknown %s", bc.Block)
	}
	if bc.Block == 0 {
		return v.errf(b, ii, "branch to entry block")
	}
	if len(bc.Args) != len(target.Params) {
		return v.errf(b, ii, "%s takes %d arguments, got %d", bc.Block, len(target.Params), len(bc.Args))
	}
	for i, a := range bc.Args {
		t, err := v.use(b, ii, a)
		if err != nil {
			return err
		}
		if want := v.f.ValueTypes[target.Params[i]]; t != want {
			return v.errf(b, ii, "%s argument %d is %s, want %s", bc.Block, i, t, want)
		}
	}
	return nil
}
