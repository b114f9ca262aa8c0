// Package compiler lowers expression trees to jit functions of signature
// (environment word) -> result word.
//
// A Compiler owns its jit.Module and is mutated by every compilation. It
// is not safe for concurrent use.
package compiler

import (
	"fmt"
	"log/slog"

	"github.com/funvibe/rol/internal/ast"
	"github.com/funvibe/rol/internal/config"
	"github.com/funvibe/rol/internal/heap"
	"github.com/funvibe/rol/internal/ir"
	"github.com/funvibe/rol/internal/jit"
	"github.com/funvibe/rol/internal/value"
)

type Options struct {
	Logger *slog.Logger
	// DumpIR logs the listing of every emitted function at debug level.
	DumpIR bool
	// Verify checks functions returned by BuildIR. Compiled functions are
	// always verified.
	Verify bool
}

// Compiled is a finalized function together with its module name.
type Compiled struct {
	Name string
	Fn   jit.NativeFunc
}

// Call runs the function against envWord.
func (c Compiled) Call(envWord value.Var) value.Var {
	return value.FromU64(c.Fn(envWord.U64()))
}

type Compiler struct {
	heap    *heap.Heap
	module  *jit.Module
	imports map[string]jit.FuncID
	opts    Options
	logger  *slog.Logger

	counter   int
	constants []value.Var
}

func New(h *heap.Heap, opts Options) *Compiler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := jit.NewBuilder()
	registerRuntime(b, h)
	c := &Compiler{
		heap:    h,
		module:  b.Build(),
		imports: make(map[string]jit.FuncID, len(runtimeFuncs)),
		opts:    opts,
		logger:  logger,
	}
	for _, f := range runtimeFuncs {
		id, err := c.module.DeclareFunction(f.name, jit.Import, f.sig())
		if err != nil {
			panic(fmt.Sprintf("declare %s: %v", f.name, err))
		}
		c.imports[f.name] = id
	}
	return c
}

// CompileExpr compiles expr against an empty root scope.
func (c *Compiler) CompileExpr(expr ast.Expr) (jit.NativeFunc, error) {
	fn, err := c.CompileWith(expr, NewContext())
	if err != nil {
		return nil, err
	}
	return fn.Fn, nil
}

// CompileWith compiles expr with root describing the frame that will be
// passed as the environment word. On error nothing is defined in the
// module and no constants are retained.
func (c *Compiler) CompileWith(expr ast.Expr, root *CompileContext) (Compiled, error) {
	fn, consts, err := c.build(expr, root)
	if err != nil {
		return Compiled{}, err
	}
	native, err := c.define(fn)
	if err != nil {
		c.release(consts)
		return Compiled{}, err
	}
	c.constants = append(c.constants, consts...)
	return Compiled{Name: fn.Name, Fn: native}, nil
}

// BuildIR builds the function for expr without defining it. The function
// is for inspection only: heap constants it embeds are freed before
// BuildIR returns.
func (c *Compiler) BuildIR(expr ast.Expr, root *CompileContext) (*ir.Function, error) {
	fn, consts, err := c.build(expr, root)
	if err != nil {
		return nil, err
	}
	defer c.release(consts)
	if c.opts.Verify {
		if err := ir.Verify(fn); err != nil {
			return nil, err
		}
	}
	return fn, nil
}

// Constants returns the heap values embedded in emitted code.
func (c *Compiler) Constants() []value.Var { return c.constants }

// TraceRoots visits every embedded constant, so a Compiler is a gc.RootSet.
func (c *Compiler) TraceRoots(visit func(value.Var)) {
	for _, v := range c.constants {
		visit(v)
	}
}

func (c *Compiler) Stats() jit.Stats { return c.module.Stats() }

func (c *Compiler) nextName() string {
	name := fmt.Sprintf("%s%d", config.CompiledFuncPrefix, c.counter)
	c.counter++
	return name
}

func (c *Compiler) build(expr ast.Expr, root *CompileContext) (*ir.Function, []value.Var, error) {
	if root == nil {
		root = NewContext()
	}
	fb := ir.NewFunctionBuilder(c.nextName(), ir.WordSignature(1))
	st := &funcState{c: c, fb: fb, vb: NewVarBuilder(fb), refs: make(map[string]ir.FuncRef)}

	entry := fb.CreateBlock()
	fb.AppendBlockParamsForFunctionParams(entry)
	fb.SwitchToBlock(entry)
	fb.SealBlock(entry)

	envParam := fb.BlockParams(entry)[0]
	result, err := st.expr(expr, envParam, root)
	if err != nil {
		c.release(st.consts)
		return nil, nil, err
	}
	fb.Ins().Return(result)

	fn, err := fb.Finalize()
	if err != nil {
		c.release(st.consts)
		return nil, nil, fmt.Errorf("build %s: %w", fb.Func().Name, err)
	}
	return fn, st.consts, nil
}

func (c *Compiler) define(fn *ir.Function) (jit.NativeFunc, error) {
	id, err := c.module.DeclareFunction(fn.Name, jit.Export, fn.Sig)
	if err != nil {
		return nil, err
	}
	if err := c.module.DefineFunction(id, fn); err != nil {
		return nil, err
	}
	if err := c.module.FinalizeDefinitions(); err != nil {
		return nil, err
	}
	native, err := c.module.GetFinalizedFunction(id)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("compiled function",
		slog.String("name", fn.Name),
		slog.Int("blocks", len(fn.Blocks)),
		slog.Int("values", fn.NumValues()))
	if c.opts.DumpIR {
		c.logger.Debug("ir listing", slog.String("name", fn.Name), slog.String("ir", fn.String()))
	}
	return native, nil
}

func (c *Compiler) release(consts []value.Var) {
	for _, v := range consts {
		if err := c.heap.FreeVar(v); err != nil {
			c.logger.Warn("release constant", slog.String("value", v.String()), slog.Any("error", err))
		}
	}
}

// funcState is the per-function lowering state.
type funcState struct {
	c      *Compiler
	fb     *ir.FunctionBuilder
	vb     VarBuilder
	refs   map[string]ir.FuncRef
	consts []value.Var
}

func (s *funcState) ins() ir.InstBuilder { return s.fb.Ins() }

// ref imports a runtime helper into the function on first use.
func (s *funcState) ref(name string) (ir.FuncRef, error) {
	if r, ok := s.refs[name]; ok {
		return r, nil
	}
	id, ok := s.c.imports[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", jit.ErrUnresolvedSymbol, name)
	}
	r, err := s.c.module.DeclareFuncInFunc(id, s.fb)
	if err != nil {
		return 0, err
	}
	s.refs[name] = r
	return r, nil
}

func (s *funcState) call(name string, args ...ir.Value) (ir.Value, error) {
	r, err := s.ref(name)
	if err != nil {
		return 0, err
	}
	return s.ins().Call(r, args...), nil
}

func (s *funcState) word(imm uint64) ir.Value { return s.ins().Iconst(ir.I64, imm) }

func (s *funcState) expr(e ast.Expr, envVal ir.Value, ctx *CompileContext) (ir.Value, error) {
	switch e := e.(type) {
	case *ast.Literal:
		return s.vb.Const(e.Value), nil
	case *ast.StringLiteral, *ast.ListLiteral:
		v, err := s.constant(e)
		if err != nil {
			return 0, err
		}
		return s.vb.Const(v), nil
	case *ast.Variable:
		addr, ok := ctx.Lookup(e.Name)
		if !ok {
			return 0, unboundError(e.Pos, e.Name.String())
		}
		return s.call(config.EnvGetSymbol, envVal, s.word(uint64(addr.Depth)), s.word(uint64(addr.Offset)))
	case *ast.Call:
		return s.apply(e, envVal, ctx)
	case *ast.Let:
		return s.let(e, envVal, ctx)
	case *ast.If:
		return s.ifExpr(e, envVal, ctx)
	case *ast.Lambda:
		return 0, unimplementedError(e.Pos, "lambda expressions are not supported")
	case nil:
		return 0, unimplementedError(ast.Pos{}, "empty expression")
	default:
		return 0, unimplementedError(e.Position(), "unsupported expression %T", e)
	}
}

// constant allocates a heap literal and records it.
func (s *funcState) constant(e ast.Expr) (value.Var, error) {
	h := s.c.heap
	switch e := e.(type) {
	case *ast.Literal:
		return e.Value, nil
	case *ast.StringLiteral:
		v := h.NewString(e.Value)
		s.consts = append(s.consts, v)
		return v, nil
	case *ast.ListLiteral:
		elems := make([]value.Var, 0, len(e.Elems))
		for _, el := range e.Elems {
			v, err := s.constant(el)
			if err != nil {
				return value.None(), err
			}
			elems = append(elems, v)
		}
		v := h.NewList(elems)
		s.consts = append(s.consts, v)
		return v, nil
	default:
		return value.None(), unimplementedError(e.Position(), "list elements must be literals, got %s", e)
	}
}

func (s *funcState) let(e *ast.Let, envVal ir.Value, ctx *CompileContext) (ir.Value, error) {
	frame, err := s.call(config.EnvCreateSymbol, s.word(uint64(len(e.Bindings))), envVal)
	if err != nil {
		return 0, err
	}
	child := ctx.Child()
	for i, b := range e.Bindings {
		v, err := s.expr(b.Init, envVal, ctx)
		if err != nil {
			return 0, err
		}
		if _, err := s.call(config.EnvSetSymbol, frame, s.word(0), s.word(uint64(i)), v); err != nil {
			return 0, err
		}
		child.Bind(b.Name, uint32(i))
	}
	return s.expr(e.Body, frame, child)
}

func (s *funcState) ifExpr(e *ast.If, envVal ir.Value, ctx *CompileContext) (ir.Value, error) {
	cond, err := s.expr(e.Cond, envVal, ctx)
	if err != nil {
		return 0, err
	}
	flag, err := s.truthy(cond)
	if err != nil {
		return 0, err
	}

	thenBlk := s.fb.CreateBlock()
	elseBlk := s.fb.CreateBlock()
	merge := s.fb.CreateBlock()
	result := s.fb.AppendBlockParam(merge, ir.I64)

	s.ins().Brif(flag, thenBlk, nil, elseBlk, nil)
	s.fb.SealBlock(thenBlk)
	s.fb.SealBlock(elseBlk)

	s.fb.SwitchToBlock(thenBlk)
	v, err := s.expr(e.Then, envVal, ctx)
	if err != nil {
		return 0, err
	}
	s.ins().Jump(merge, v)

	s.fb.SwitchToBlock(elseBlk)
	v, err = s.expr(e.Else, envVal, ctx)
	if err != nil {
		return 0, err
	}
	s.ins().Jump(merge, v)

	s.fb.SwitchToBlock(merge)
	s.fb.SealBlock(merge)
	return result, nil
}

func (s *funcState) truthy(v ir.Value) (ir.Value, error) {
	w, err := s.call(config.TruthySymbol, v)
	if err != nil {
		return 0, err
	}
	return s.vb.Truthy(w), nil
}

func (s *funcState) apply(e *ast.Call, envVal ir.Value, ctx *CompileContext) (ir.Value, error) {
	callee, ok := e.Func.(*ast.Variable)
	if !ok {
		return 0, unimplementedError(e.Pos, "calls through %s are not supported", e.Func)
	}
	op, ok := ast.BuiltinFromSymbol(callee.Name)
	if !ok {
		if _, bound := ctx.Lookup(callee.Name); bound {
			return 0, unimplementedError(e.Pos, "user function calls are not supported: %s", callee.Name)
		}
		return 0, unimplementedError(e.Pos, "unknown function: %s", callee.Name)
	}
	if len(e.Args) != op.Arity() {
		return 0, arityError(e.Pos, op, len(e.Args))
	}
	args := make([]ir.Value, len(e.Args))
	for i, a := range e.Args {
		v, err := s.expr(a, envVal, ctx)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}
	return s.builtin(op, args)
}

func (s *funcState) builtin(op ast.BuiltinOp, args []ir.Value) (ir.Value, error) {
	switch op {
	case ast.OpAdd:
		return s.vb.Arith(arithAdd, args[0], args[1]), nil
	case ast.OpSub:
		return s.vb.Arith(arithSub, args[0], args[1]), nil
	case ast.OpMul:
		return s.vb.Arith(arithMul, args[0], args[1]), nil
	case ast.OpDiv:
		return s.vb.Arith(arithDiv, args[0], args[1]), nil
	case ast.OpMod:
		return s.call(config.ModSymbol, args[0], args[1])
	case ast.OpEq:
		return s.call(config.EqualsSymbol, args[0], args[1])
	case ast.OpNe:
		eq, err := s.call(config.EqualsSymbol, args[0], args[1])
		if err != nil {
			return 0, err
		}
		// TrueBits and FalseBits differ only in bit 0.
		return s.ins().Bxor(eq, s.word(1)), nil
	case ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe:
		slow, err := s.ref(config.CompareSymbol)
		if err != nil {
			return 0, err
		}
		return s.vb.Compare(compareCC[op], args[0], args[1], slow), nil
	case ast.OpNot:
		w, err := s.call(config.TruthySymbol, args[0])
		if err != nil {
			return 0, err
		}
		return s.vb.BoxBool(s.ins().IcmpImm(ir.IntEq, w, 0)), nil
	case ast.OpAnd, ast.OpOr:
		x, err := s.truthy(args[0])
		if err != nil {
			return 0, err
		}
		y, err := s.truthy(args[1])
		if err != nil {
			return 0, err
		}
		if op == ast.OpAnd {
			return s.vb.BoxBool(s.ins().Band(x, y)), nil
		}
		return s.vb.BoxBool(s.ins().Bor(x, y)), nil
	}
	return 0, unimplementedError(ast.Pos{}, "operator %s is not implemented", op)
}

var compareCC = map[ast.BuiltinOp]ir.FloatCC{
	ast.OpLt: ir.FloatLt,
	ast.OpLe: ir.FloatLe,
	ast.OpGt: ir.FloatGt,
	ast.OpGe: ir.FloatGe,
}
