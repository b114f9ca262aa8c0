package jit

import (
	"errors"
	"math"
	"testing"

	"github.com/funvibe/rol/internal/ir"
)

func define(t *testing.T, m *Module, name string, linkage Linkage, sig ir.Signature, body func(m *Module, b *ir.FunctionBuilder)) FuncID {
	t.Helper()
	id, err := m.DeclareFunction(name, linkage, sig)
	if err != nil {
		t.Fatalf("DeclareFunction(%s): %v", name, err)
	}
	b := ir.NewFunctionBuilder(name, sig)
	entry := b.CreateBlock()
	b.AppendBlockParamsForFunctionParams(entry)
	b.SwitchToBlock(entry)
	b.SealBlock(entry)
	body(m, b)
	fn, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize(%s): %v", name, err)
	}
	if err := m.DefineFunction(id, fn); err != nil {
		t.Fatalf("DefineFunction(%s): %v", name, err)
	}
	return id
}

func finalized(t *testing.T, m *Module, id FuncID) NativeFunc {
	t.Helper()
	if err := m.FinalizeDefinitions(); err != nil {
		t.Fatalf("FinalizeDefinitions: %v", err)
	}
	fn, err := m.GetFinalizedFunction(id)
	if err != nil {
		t.Fatalf("GetFinalizedFunction: %v", err)
	}
	return fn
}

func TestFloatArithmetic(t *testing.T) {
	m := NewBuilder().Build()
	id := define(t, m, "add", Export, ir.WordSignature(1), func(_ *Module, b *ir.FunctionBuilder) {
		one := b.Ins().Iconst(ir.I64, math.Float64bits(1.0))
		two := b.Ins().Iconst(ir.I64, math.Float64bits(2.0))
		b.Ins().Return(b.Ins().Fadd(one, two))
	})
	fn := finalized(t, m, id)
	if got := math.Float64frombits(fn(0)); got != 3.0 {
		t.Errorf("1.0 + 2.0 = %v", got)
	}
}

func TestNaNResultIsCanonical(t *testing.T) {
	m := NewBuilder().Build()
	id := define(t, m, "nan", Export, ir.WordSignature(1), func(_ *Module, b *ir.FunctionBuilder) {
		inf := b.Ins().Iconst(ir.I64, math.Float64bits(math.Inf(1)))
		b.Ins().Return(b.Ins().Fsub(inf, inf))
	})
	if got := finalized(t, m, id)(0); got != canonicalNaN {
		t.Errorf("inf - inf = %#x, want %#x", got, canonicalNaN)
	}
}

func TestInt32Lanes(t *testing.T) {
	m := NewBuilder().Build()
	id := define(t, m, "wrap", Export, ir.WordSignature(1), func(_ *Module, b *ir.FunctionBuilder) {
		arg := b.BlockParams(0)[0]
		x := b.Ins().Sextend32(arg)
		one := b.Ins().Iconst(ir.I64, 1)
		b.Ins().Return(b.Ins().Ireduce32(b.Ins().Iadd(x, one)))
	})
	fn := finalized(t, m, id)
	if got := fn(uint64(math.MaxInt32)); int32(uint32(got)) != math.MinInt32 {
		t.Errorf("MaxInt32 + 1 = %d", int32(uint32(got)))
	}
	if got := fn(0xFFFFFFFF); got != 0 {
		t.Errorf("-1 + 1 = %#x", got)
	}
}

func TestBranchAndMerge(t *testing.T) {
	m := NewBuilder().Build()
	id := define(t, m, "pick", Export, ir.WordSignature(1), func(_ *Module, b *ir.FunctionBuilder) {
		arg := b.BlockParams(0)[0]
		thenBlk, elseBlk, merge := b.CreateBlock(), b.CreateBlock(), b.CreateBlock()
		res := b.AppendBlockParam(merge, ir.I64)
		b.Ins().Brif(b.Ins().IcmpImm(ir.IntNe, arg, 0), thenBlk, nil, elseBlk, nil)
		b.SealBlock(thenBlk)
		b.SealBlock(elseBlk)

		b.SwitchToBlock(thenBlk)
		b.Ins().Jump(merge, b.Ins().Iconst(ir.I64, 42))
		b.SwitchToBlock(elseBlk)
		b.Ins().Jump(merge, b.Ins().Iconst(ir.I64, 24))

		b.SwitchToBlock(merge)
		b.SealBlock(merge)
		b.Ins().Return(res)
	})
	fn := finalized(t, m, id)
	if got := fn(1); got != 42 {
		t.Errorf("pick(1) = %d", got)
	}
	if got := fn(0); got != 24 {
		t.Errorf("pick(0) = %d", got)
	}
}

// Summing 1..n exercises back edges and the parallel copy of block
// arguments that depend on each other.
func TestLoopWithParallelCopy(t *testing.T) {
	m := NewBuilder().Build()
	id := define(t, m, "sum", Export, ir.WordSignature(1), func(_ *Module, b *ir.FunctionBuilder) {
		n := b.BlockParams(0)[0]
		header, body, exit := b.CreateBlock(), b.CreateBlock(), b.CreateBlock()
		i := b.AppendBlockParam(header, ir.I64)
		acc := b.AppendBlockParam(header, ir.I64)
		zero := b.Ins().Iconst(ir.I64, 0)
		b.Ins().Jump(header, zero, zero)

		b.SwitchToBlock(header)
		b.Ins().Brif(b.Ins().Icmp(ir.IntSlt, i, n), body, nil, exit, nil)
		b.SealBlock(body)
		b.SealBlock(exit)

		b.SwitchToBlock(body)
		next := b.Ins().Iadd(i, b.Ins().Iconst(ir.I64, 1))
		b.Ins().Jump(header, next, b.Ins().Iadd(acc, next))
		b.SealBlock(header)

		b.SwitchToBlock(exit)
		b.Ins().Return(acc)
	})
	if got := finalized(t, m, id)(10); got != 55 {
		t.Errorf("sum(10) = %d, want 55", got)
	}
}

func TestSwapArguments(t *testing.T) {
	m := NewBuilder().Build()
	id := define(t, m, "swap", Export, ir.WordSignature(1), func(_ *Module, b *ir.FunctionBuilder) {
		loop, exit := b.CreateBlock(), b.CreateBlock()
		x := b.AppendBlockParam(loop, ir.I64)
		y := b.AppendBlockParam(loop, ir.I64)
		k := b.AppendBlockParam(loop, ir.I64)
		b.Ins().Jump(loop, b.Ins().Iconst(ir.I64, 1), b.Ins().Iconst(ir.I64, 2), b.Ins().Iconst(ir.I64, 0))

		b.SwitchToBlock(loop)
		done := b.Ins().IcmpImm(ir.IntEq, k, 3)
		nk := b.Ins().Iadd(k, b.Ins().Iconst(ir.I64, 1))
		b.Ins().Brif(done, exit, nil, loop, []ir.Value{y, x, nk})
		b.SealBlock(loop)
		b.SealBlock(exit)

		b.SwitchToBlock(exit)
		b.Ins().Return(b.Ins().Bor(b.Ins().Imul(x, b.Ins().Iconst(ir.I64, 10)), y))
	})
	// Three swaps leave x=2, y=1.
	if got := finalized(t, m, id)(0); got != 21 {
		t.Errorf("swap result = %d, want 21", got)
	}
}

func TestExternCalls(t *testing.T) {
	var seen []uint64
	m := NewBuilder().
		Symbol("double", func(args []uint64) uint64 {
			seen = append(seen, args[0])
			return args[0] * 2
		}).
		Build()

	helper, err := m.DeclareFunction("double", Import, ir.WordSignature(1))
	if err != nil {
		t.Fatal(err)
	}
	id := define(t, m, "caller", Export, ir.WordSignature(1), func(m *Module, b *ir.FunctionBuilder) {
		ref, err := m.DeclareFuncInFunc(helper, b)
		if err != nil {
			t.Fatal(err)
		}
		arg := b.BlockParams(0)[0]
		b.Ins().Return(b.Ins().Call(ref, b.Ins().Call(ref, arg)))
	})
	if got := finalized(t, m, id)(5); got != 20 {
		t.Errorf("double(double(5)) = %d", got)
	}
	if len(seen) != 2 || seen[0] != 5 || seen[1] != 10 {
		t.Errorf("extern saw %v", seen)
	}
}

func TestLocalFunctionCall(t *testing.T) {
	m := NewBuilder().Build()
	sig2 := ir.WordSignature(2)
	addID := define(t, m, "add2", Local, sig2, func(_ *Module, b *ir.FunctionBuilder) {
		ps := b.BlockParams(0)
		b.Ins().Return(b.Ins().Iadd(ps[0], ps[1]))
	})
	id := define(t, m, "main", Export, ir.WordSignature(1), func(m *Module, b *ir.FunctionBuilder) {
		ref, err := m.DeclareFuncInFunc(addID, b)
		if err != nil {
			t.Fatal(err)
		}
		arg := b.BlockParams(0)[0]
		b.Ins().Return(b.Ins().Call(ref, arg, b.Ins().Iconst(ir.I64, 100)))
	})
	if got := finalized(t, m, id)(7); got != 107 {
		t.Errorf("main(7) = %d", got)
	}
	if _, err := m.GetFinalizedFunction(addID); err == nil {
		t.Errorf("local function was handed out")
	}
}

func TestModuleErrors(t *testing.T) {
	m := NewBuilder().Build()
	sig := ir.WordSignature(1)

	id, err := m.DeclareFunction("f", Export, sig)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetFinalizedFunction(id); !errors.Is(err, ErrNotFinalized) {
		t.Errorf("GetFinalizedFunction before define: %v", err)
	}
	if _, err := m.DeclareFunction("f", Export, ir.WordSignature(2)); !errors.Is(err, ErrIncompatibleDecl) {
		t.Errorf("redeclare: %v", err)
	}
	if again, err := m.DeclareFunction("f", Export, sig); err != nil || again != id {
		t.Errorf("compatible redeclare = %d, %v", again, err)
	}

	// An unverifiable body leaves the declaration undefined.
	b := ir.NewFunctionBuilder("f", sig)
	b.CreateBlock()
	bad, err := b.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	var verr *ir.VerifyError
	if err := m.DefineFunction(id, bad); !errors.As(err, &verr) {
		t.Errorf("DefineFunction(bad) = %v", err)
	}
	if st := m.Stats(); st.Defined != 0 {
		t.Errorf("stats after failed define = %+v", st)
	}

	define(t, m, "g", Export, sig, func(m *Module, b *ir.FunctionBuilder) {
		ref := b.ImportFunction("missing", ir.WordSignature(1))
		b.Ins().Return(b.Ins().Call(ref, b.BlockParams(0)[0]))
	})
	if err := m.FinalizeDefinitions(); !errors.Is(err, ErrUnresolvedSymbol) {
		t.Errorf("FinalizeDefinitions = %v", err)
	}
}
