package jit

import (
	"fmt"
	"math"

	"github.com/funvibe/rol/internal/ir"
)

const canonicalNaN uint64 = 0x7FF8000000000000

// op executes one lowered instruction against the register file.
type op func(r []uint64)

// edge moves block arguments into the target's parameters.
type edge struct {
	target int
	srcs   []int
	dsts   []int
}

type terminator struct {
	kind  ir.Opcode
	cond  int
	edges [2]edge
	rets  []int
}

type loweredBlock struct {
	ops  []op
	term terminator
}

// compiledFunc is a function lowered to closures over a register file.
// Registers [0, nvalues) hold SSA values; the rest is scratch space for
// call arguments and parallel copies.
type compiledFunc struct {
	name    string
	nvalues int
	scratch int
	params  []int
	blocks  []loweredBlock
	imports []*funcDecl
}

func lower(fn *ir.Function, imports []*funcDecl) (*compiledFunc, error) {
	cf := &compiledFunc{
		name:    fn.Name,
		nvalues: fn.NumValues(),
		imports: imports,
		blocks:  make([]loweredBlock, len(fn.Blocks)),
	}
	for _, p := range fn.Blocks[0].Params {
		cf.params = append(cf.params, int(p))
	}
	for bi, blk := range fn.Blocks {
		lb := &cf.blocks[bi]
		for ii := range blk.Insts {
			inst := &blk.Insts[ii]
			if inst.Op.IsTerminator() {
				term, err := cf.lowerTerminator(fn, inst)
				if err != nil {
					return nil, err
				}
				lb.term = term
				continue
			}
			o, err := cf.lowerInst(inst)
			if err != nil {
				return nil, fmt.Errorf("%s inst %d: %w", ir.Block(bi), ii, err)
			}
			lb.ops = append(lb.ops, o)
		}
	}
	return cf, nil
}

func (cf *compiledFunc) reserveScratch(n int) {
	if n > cf.scratch {
		cf.scratch = n
	}
}

func indices(vs []ir.Value) []int {
	out := make([]int, len(vs))
	for i, v := range vs {
		out[i] = int(v)
	}
	return out
}

func (cf *compiledFunc) lowerTerminator(fn *ir.Function, inst *ir.Inst) (terminator, error) {
	t := terminator{kind: inst.Op}
	switch inst.Op {
	case ir.OpReturn:
		t.rets = indices(inst.Args)
	case ir.OpBrif:
		t.cond = int(inst.Args[0])
		fallthrough
	case ir.OpJump:
		for i, bc := range inst.Targets {
			params := fn.Blocks[bc.Block].Params
			t.edges[i] = edge{target: int(bc.Block), srcs: indices(bc.Args), dsts: indices(params)}
			cf.reserveScratch(len(bc.Args))
		}
	default:
		return t, fmt.Errorf("unexpected terminator %s", inst.Op)
	}
	return t, nil
}

func f64(bits uint64) float64 { return math.Float64frombits(bits) }

// box stores a float result, collapsing every NaN to the canonical one.
func box(d float64) uint64 {
	if d != d {
		return canonicalNaN
	}
	return math.Float64bits(d)
}

func flag(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func intCompare(cc ir.IntCC) (func(a, b uint64) bool, error) {
	switch cc {
	case ir.IntEq:
		return func(a, b uint64) bool { return a == b }, nil
	case ir.IntNe:
		return func(a, b uint64) bool { return a != b }, nil
	case ir.IntSlt:
		return func(a, b uint64) bool { return int64(a) < int64(b) }, nil
	case ir.IntSle:
		return func(a, b uint64) bool { return int64(a) <= int64(b) }, nil
	case ir.IntSgt:
		return func(a, b uint64) bool { return int64(a) > int64(b) }, nil
	case ir.IntSge:
		return func(a, b uint64) bool { return int64(a) >= int64(b) }, nil
	case ir.IntUlt:
		return func(a, b uint64) bool { return a < b }, nil
	case ir.IntUge:
		return func(a, b uint64) bool { return a >= b }, nil
	}
	return nil, fmt.Errorf("unknown int condition %s", cc)
}

func floatCompare(cc ir.FloatCC) (func(a, b float64) bool, error) {
	switch cc {
	case ir.FloatEq:
		return func(a, b float64) bool { return a == b }, nil
	case ir.FloatNe:
		return func(a, b float64) bool { return a != b }, nil
	case ir.FloatLt:
		return func(a, b float64) bool { return a < b }, nil
	case ir.FloatLe:
		return func(a, b float64) bool { return a <= b }, nil
	case ir.FloatGt:
		return func(a, b float64) bool { return a > b }, nil
	case ir.FloatGe:
		return func(a, b float64) bool { return a >= b }, nil
	}
	return nil, fmt.Errorf("unknown float condition %s", cc)
}

func (cf *compiledFunc) lowerInst(inst *ir.Inst) (op, error) {
	d := int(inst.Result)
	var x, y int
	if len(inst.Args) > 0 {
		x = int(inst.Args[0])
	}
	if len(inst.Args) > 1 {
		y = int(inst.Args[1])
	}

	switch inst.Op {
	case ir.OpIconst:
		imm := inst.Imm
		return func(r []uint64) { r[d] = imm }, nil
	case ir.OpBand:
		return func(r []uint64) { r[d] = r[x] & r[y] }, nil
	case ir.OpBor:
		return func(r []uint64) { r[d] = r[x] | r[y] }, nil
	case ir.OpBxor:
		return func(r []uint64) { r[d] = r[x] ^ r[y] }, nil
	case ir.OpUshr:
		n := inst.Imm & 63
		return func(r []uint64) { r[d] = r[x] >> n }, nil
	case ir.OpIadd:
		return func(r []uint64) { r[d] = r[x] + r[y] }, nil
	case ir.OpIsub:
		return func(r []uint64) { r[d] = r[x] - r[y] }, nil
	case ir.OpImul:
		return func(r []uint64) { r[d] = r[x] * r[y] }, nil
	case ir.OpIcmp:
		cmp, err := intCompare(ir.IntCC(inst.Cond))
		if err != nil {
			return nil, err
		}
		return func(r []uint64) { r[d] = flag(cmp(r[x], r[y])) }, nil
	case ir.OpSelect:
		a, b := int(inst.Args[1]), int(inst.Args[2])
		return func(r []uint64) {
			if r[x] != 0 {
				r[d] = r[a]
			} else {
				r[d] = r[b]
			}
		}, nil
	case ir.OpSextend32:
		return func(r []uint64) { r[d] = uint64(int64(int32(uint32(r[x])))) }, nil
	case ir.OpIreduce32:
		return func(r []uint64) { r[d] = r[x] & 0xFFFFFFFF }, nil
	case ir.OpFcvtFromSint:
		return func(r []uint64) { r[d] = math.Float64bits(float64(int64(r[x]))) }, nil
	case ir.OpFadd:
		return func(r []uint64) { r[d] = box(f64(r[x]) + f64(r[y])) }, nil
	case ir.OpFsub:
		return func(r []uint64) { r[d] = box(f64(r[x]) - f64(r[y])) }, nil
	case ir.OpFmul:
		return func(r []uint64) { r[d] = box(f64(r[x]) * f64(r[y])) }, nil
	case ir.OpFdiv:
		return func(r []uint64) { r[d] = box(f64(r[x]) / f64(r[y])) }, nil
	case ir.OpFcmp:
		cmp, err := floatCompare(ir.FloatCC(inst.Cond))
		if err != nil {
			return nil, err
		}
		return func(r []uint64) { r[d] = flag(cmp(f64(r[x]), f64(r[y]))) }, nil
	case ir.OpCall:
		return cf.lowerCall(inst)
	}
	return nil, fmt.Errorf("cannot lower %s", inst.Op)
}

func (cf *compiledFunc) lowerCall(inst *ir.Inst) (op, error) {
	if int(inst.Func) >= len(cf.imports) {
		return nil, fmt.Errorf("call to undeclared %s", inst.Func)
	}
	callee := cf.imports[inst.Func]
	args := indices(inst.Args)
	cf.reserveScratch(len(args))
	base := cf.nvalues
	d := int(inst.Result)
	hasResult := inst.HasResult
	return func(r []uint64) {
		window := r[base : base+len(args)]
		for i, a := range args {
			window[i] = r[a]
		}
		res := callee.impl(window)
		if hasResult {
			r[d] = res
		}
	}, nil
}

// run executes the function with the given parameters and returns its
// results.
func (cf *compiledFunc) run(args []uint64) []uint64 {
	r := make([]uint64, cf.nvalues+cf.scratch)
	for i, p := range cf.params {
		r[p] = args[i]
	}
	b := 0
	for {
		blk := &cf.blocks[b]
		for _, o := range blk.ops {
			o(r)
		}
		t := &blk.term
		switch t.kind {
		case ir.OpJump:
			b = cf.take(r, &t.edges[0])
		case ir.OpBrif:
			if r[t.cond] != 0 {
				b = cf.take(r, &t.edges[0])
			} else {
				b = cf.take(r, &t.edges[1])
			}
		case ir.OpReturn:
			out := make([]uint64, len(t.rets))
			for i, v := range t.rets {
				out[i] = r[v]
			}
			return out
		}
	}
}

// take performs the parallel copy for e and returns the target block.
func (cf *compiledFunc) take(r []uint64, e *edge) int {
	switch len(e.srcs) {
	case 0:
	case 1:
		r[e.dsts[0]] = r[e.srcs[0]]
	default:
		tmp := r[cf.nvalues : cf.nvalues+len(e.srcs)]
		for i, s := range e.srcs {
			tmp[i] = r[s]
		}
		for i, dst := range e.dsts {
			r[dst] = tmp[i]
		}
	}
	return e.target
}

// extern adapts the function for calls from other compiled code.
func (cf *compiledFunc) extern() Extern {
	return func(args []uint64) uint64 {
		out := cf.run(args)
		if len(out) == 0 {
			return 0
		}
		return out[0]
	}
}
