// Package rol is the embedding API: a Session reads expressions, compiles
// them to native functions and runs them against a global frame, keeping
// every value it hands out alive until the caller drops it.
package rol

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/funvibe/rol/internal/ast"
	"github.com/funvibe/rol/internal/compiler"
	"github.com/funvibe/rol/internal/config"
	"github.com/funvibe/rol/internal/env"
	"github.com/funvibe/rol/internal/gc"
	"github.com/funvibe/rol/internal/heap"
	"github.com/funvibe/rol/internal/heapdump"
	"github.com/funvibe/rol/internal/lexer"
	"github.com/funvibe/rol/internal/parser"
	"github.com/funvibe/rol/internal/pipeline"
	"github.com/funvibe/rol/internal/protocol"
	"github.com/funvibe/rol/internal/symbol"
	"github.com/funvibe/rol/internal/value"
)

var (
	// ErrEmptyProgram is returned for source with no expressions.
	ErrEmptyProgram = errors.New("empty program")
	// ErrReservedName is returned when Define names a builtin or a special form.
	ErrReservedName = errors.New("reserved name")
)

// Session is not safe for concurrent use.
type Session struct {
	cfg        *config.Config
	logger     *slog.Logger
	heap       *heap.Heap
	compiler   *compiler.Compiler
	collector  *gc.Collector
	marshaller *Marshaller

	root    *compiler.CompileContext
	names   []symbol.Symbol
	globals []value.Var
	frame   value.Var
	dirty   bool

	results []value.Var
}

type Option func(*Session)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

func New(opts ...Option) *Session {
	s := &Session{}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg == nil {
		s.cfg = config.Default()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	s.heap = heap.New(s.cfg.Heap.InitialSlots)
	s.compiler = compiler.New(s.heap, compiler.Options{
		Logger: s.logger,
		DumpIR: s.cfg.Compiler.DumpIR,
		Verify: s.cfg.Compiler.Verify,
	})
	s.collector = gc.NewCollector(s.heap, s.logger)
	s.marshaller = NewMarshaller(s.heap)
	s.root = compiler.NewContext()
	s.frame = value.None()
	return s
}

func (s *Session) Heap() *heap.Heap { return s.heap }

func (s *Session) Marshaller() *Marshaller { return s.marshaller }

// Define binds name in the global frame. Programs compiled earlier see
// the new value of a redefined name.
func (s *Session) Define(name string, v value.Var) error {
	if reserved(name) {
		return fmt.Errorf("%w: %s", ErrReservedName, name)
	}
	sym := symbol.Mk(name)
	if addr, ok := s.root.Lookup(sym); ok {
		s.globals[addr.Offset] = v
		if !s.dirty {
			if err := env.Store(s.heap, s.frame, addr, v); err != nil {
				return err
			}
		}
		return nil
	}
	s.root.Bind(sym, uint32(len(s.globals)))
	s.names = append(s.names, sym)
	s.globals = append(s.globals, v)
	s.dirty = true
	return nil
}

// Bind converts a Go value with the session's Marshaller and defines it.
func (s *Session) Bind(name string, val interface{}) error {
	v, err := s.marshaller.ToValue(val)
	if err != nil {
		return fmt.Errorf("bind %s: %w", name, err)
	}
	return s.Define(name, v)
}

// Globals lists the defined names in slot order.
func (s *Session) Globals() []string {
	names := make([]string, len(s.names))
	for i, sym := range s.names {
		names[i] = sym.String()
	}
	return names
}

// Lookup returns the global bound to name.
func (s *Session) Lookup(name string) (value.Var, bool) {
	addr, ok := s.root.Lookup(symbol.Mk(name))
	if !ok {
		return value.None(), false
	}
	return s.globals[addr.Offset], true
}

func reserved(name string) bool {
	if _, ok := ast.BuiltinFromSymbol(symbol.Mk(name)); ok {
		return true
	}
	switch name {
	case config.LetFormName, config.IfFormName, config.LambdaFormName,
		config.TrueLiteral, config.FalseLiteral, config.NilLiteral:
		return true
	}
	return false
}

// globalFrame rebuilds the frame after new names were defined. The old
// frame is left to the collector.
func (s *Session) globalFrame() value.Var {
	if s.dirty {
		s.frame = env.FromValues(s.heap, s.globals, value.None())
		s.dirty = false
	}
	return s.frame
}

// Program is the compiled form of one source text.
type Program struct {
	Source string
	funcs  []compiler.Compiled
	s      *Session
}

// Names lists the module names of the compiled functions, one per expression.
func (p *Program) Names() []string {
	names := make([]string, len(p.funcs))
	for i, fn := range p.funcs {
		names[i] = fn.Name
	}
	return names
}

// Run evaluates every expression in order and returns the last result.
func (p *Program) Run() value.Var {
	result := value.None()
	for _, fn := range p.funcs {
		result = fn.Call(p.s.globalFrame())
		p.s.results = append(p.s.results, result)
	}
	if p.s.cfg.GC.CollectAfterEval {
		p.s.Collect()
	}
	return result
}

type compileStage struct {
	s        *Session
	compiled []compiler.Compiled
}

func (cs *compileStage) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	for _, expr := range ctx.Exprs {
		fn, err := cs.s.compiler.CompileWith(expr, cs.s.root)
		if err != nil {
			ctx.Errors = append(ctx.Errors, err)
			return ctx
		}
		cs.compiled = append(cs.compiled, fn)
	}
	return ctx
}

func (s *Session) front(src string, stages ...pipeline.Processor) error {
	procs := append([]pipeline.Processor{&lexer.LexerProcessor{}, &parser.ParserProcessor{}}, stages...)
	pctx := pipeline.New(procs...).Run(pipeline.NewContext(src))
	if pctx.Failed() {
		return errors.Join(pctx.Errors...)
	}
	if len(pctx.Exprs) == 0 {
		return ErrEmptyProgram
	}
	return nil
}

// Compile reads and compiles src without running it.
func (s *Session) Compile(src string) (*Program, error) {
	stage := &compileStage{s: s}
	if err := s.front(src, stage); err != nil {
		return nil, err
	}
	s.logger.Debug("compiled program", "functions", len(stage.compiled))
	return &Program{Source: src, funcs: stage.compiled, s: s}, nil
}

// Eval compiles and runs src.
func (s *Session) Eval(src string) (value.Var, error) {
	prog, err := s.Compile(src)
	if err != nil {
		return value.None(), err
	}
	return prog.Run(), nil
}

// EvalGo evaluates src and converts the result with the Marshaller.
func (s *Session) EvalGo(src string) (interface{}, error) {
	v, err := s.Eval(src)
	if err != nil {
		return nil, err
	}
	return s.marshaller.FromValue(v), nil
}

// Listing returns the IR of every expression in src. Nothing is defined.
func (s *Session) Listing(src string) (string, error) {
	var listings []string
	stage := pipeline.ProcessorFunc(func(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
		for _, expr := range ctx.Exprs {
			fn, err := s.compiler.BuildIR(expr, s.root)
			if err != nil {
				ctx.Errors = append(ctx.Errors, err)
				return ctx
			}
			listings = append(listings, fn.String())
		}
		return ctx
	})
	if err := s.front(src, stage); err != nil {
		return "", err
	}
	return strings.Join(listings, "\n"), nil
}

// Format renders v the way the protocol prints it.
func (s *Session) Format(v value.Var) string { return protocol.ToString(s.heap, v) }

// Kind names the type of v.
func (s *Session) Kind(v value.Var) string { return v.Type().String() }

// TraceRoots visits results, globals and the constants embedded in
// compiled code.
func (s *Session) TraceRoots(visit func(value.Var)) {
	for _, v := range s.results {
		visit(v)
	}
	for _, v := range s.globals {
		visit(v)
	}
	if !s.dirty {
		visit(s.frame)
	}
	s.compiler.TraceRoots(visit)
}

// DropResults releases every result returned so far; the next Collect
// may free them.
func (s *Session) DropResults() { s.results = s.results[:0] }

// Collect frees every heap record the session cannot reach.
func (s *Session) Collect() gc.Stats { return s.collector.Collect(s) }

// Snapshot writes the heap to db, marking what the session can reach.
func (s *Session) Snapshot(ctx context.Context, db *sql.DB, label string) (heapdump.Snapshot, error) {
	return heapdump.Write(ctx, db, s.heap, s, label)
}
