// Package jit turns verified ir functions into callable Go functions.
// A Module collects declarations and definitions, resolves calls against
// registered symbols and hands out NativeFuncs once finalized.
//
// A Module is single-owner: it mutates in place across definitions and
// must not be used from more than one goroutine at a time.
package jit

import (
	"errors"
	"fmt"

	"github.com/funvibe/rol/internal/ir"
)

var (
	ErrDuplicateDefinition = errors.New("function already defined")
	ErrIncompatibleDecl    = errors.New("incompatible redeclaration")
	ErrUnknownFunction     = errors.New("unknown function id")
	ErrUnresolvedSymbol    = errors.New("unresolved symbol")
	ErrNotFinalized        = errors.New("function not finalized")
	ErrSignatureMismatch   = errors.New("signature mismatch")
)

// Extern is a host function callable from compiled code. args must not be
// retained after the call returns.
type Extern func(args []uint64) uint64

// NativeFunc is a finalized function taking the environment word and
// returning the result word.
type NativeFunc func(env uint64) uint64

// Linkage controls where a declared function's body comes from.
type Linkage uint8

const (
	// Import functions are resolved against registered symbols.
	Import Linkage = iota
	// Local functions are defined in the module and not handed out.
	Local
	// Export functions are defined in the module and may be fetched with
	// GetFinalizedFunction.
	Export
)

func (l Linkage) String() string {
	switch l {
	case Import:
		return "import"
	case Local:
		return "local"
	case Export:
		return "export"
	default:
		return fmt.Sprintf("linkage(%d)", uint8(l))
	}
}

// FuncID identifies a declared function within a Module.
type FuncID uint32

type funcDecl struct {
	name    string
	linkage Linkage
	sig     ir.Signature

	body      *compiledFunc
	impl      Extern
	finalized bool
}

// Builder registers host symbols before the Module is created.
type Builder struct {
	symbols map[string]Extern
}

func NewBuilder() *Builder {
	return &Builder{symbols: make(map[string]Extern)}
}

// Symbol registers fn under name. A later registration replaces an
// earlier one.
func (b *Builder) Symbol(name string, fn Extern) *Builder {
	b.symbols[name] = fn
	return b
}

func (b *Builder) Build() *Module {
	symbols := make(map[string]Extern, len(b.symbols))
	for k, v := range b.symbols {
		symbols[k] = v
	}
	return &Module{symbols: symbols, byName: make(map[string]FuncID)}
}

type Module struct {
	symbols map[string]Extern
	decls   []*funcDecl
	byName  map[string]FuncID
	// pending holds definitions not yet finalized.
	pending []FuncID
}

// DeclareFunction declares name with the given linkage and signature.
// Redeclaring a name returns its existing id when linkage and signature
// agree.
func (m *Module) DeclareFunction(name string, linkage Linkage, sig ir.Signature) (FuncID, error) {
	if id, ok := m.byName[name]; ok {
		d := m.decls[id]
		if d.linkage != linkage || !d.sig.Equal(sig) {
			return 0, fmt.Errorf("%w: %s", ErrIncompatibleDecl, name)
		}
		return id, nil
	}
	id := FuncID(len(m.decls))
	m.decls = append(m.decls, &funcDecl{name: name, linkage: linkage, sig: sig})
	m.byName[name] = id
	return id, nil
}

func (m *Module) decl(id FuncID) (*funcDecl, error) {
	if int(id) >= len(m.decls) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFunction, id)
	}
	return m.decls[id], nil
}

// DeclareFuncInFunc imports the declared function id into the function
// under construction so it can be called.
func (m *Module) DeclareFuncInFunc(id FuncID, fb *ir.FunctionBuilder) (ir.FuncRef, error) {
	d, err := m.decl(id)
	if err != nil {
		return 0, err
	}
	return fb.ImportFunction(d.name, d.sig), nil
}

// DefineFunction verifies fn and lowers it into the body of id. Nothing
// is recorded when verification or lowering fails.
func (m *Module) DefineFunction(id FuncID, fn *ir.Function) error {
	d, err := m.decl(id)
	if err != nil {
		return err
	}
	if d.linkage == Import {
		return fmt.Errorf("define %s: cannot define an imported function", d.name)
	}
	if d.body != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateDefinition, d.name)
	}
	if !fn.Sig.Equal(d.sig) {
		return fmt.Errorf("%w: %s declared %s, defined %s", ErrSignatureMismatch, d.name, d.sig, fn.Sig)
	}
	if err := ir.Verify(fn); err != nil {
		return fmt.Errorf("define %s: %w", d.name, err)
	}
	imports := make([]*funcDecl, len(fn.ExtFuncs))
	for i, ext := range fn.ExtFuncs {
		callee, ok := m.byName[ext.Name]
		if !ok {
			// Calls may name registered symbols that were never declared.
			callee, err = m.DeclareFunction(ext.Name, Import, ext.Sig)
			if err != nil {
				return err
			}
		}
		imports[i] = m.decls[callee]
		if !imports[i].sig.Equal(ext.Sig) {
			return fmt.Errorf("%w: call to %s as %s, declared %s", ErrSignatureMismatch, ext.Name, ext.Sig, imports[i].sig)
		}
	}
	body, err := lower(fn, imports)
	if err != nil {
		return fmt.Errorf("define %s: %w", d.name, err)
	}
	d.body = body
	m.pending = append(m.pending, id)
	return nil
}

// FinalizeDefinitions resolves every call made by pending definitions and
// makes them callable. On error nothing pending is finalized.
func (m *Module) FinalizeDefinitions() error {
	for _, d := range m.decls {
		if d.impl != nil {
			continue
		}
		switch {
		case d.linkage == Import:
			fn, ok := m.symbols[d.name]
			if !ok {
				if m.referenced(d) {
					return fmt.Errorf("%w: %s", ErrUnresolvedSymbol, d.name)
				}
				continue
			}
			d.impl = fn
		case d.body != nil:
			d.impl = d.body.extern()
		}
	}
	for _, id := range m.pending {
		m.decls[id].finalized = true
	}
	m.pending = m.pending[:0]
	return nil
}

// referenced reports whether a pending definition calls d.
func (m *Module) referenced(d *funcDecl) bool {
	for _, id := range m.pending {
		for _, imp := range m.decls[id].body.imports {
			if imp == d {
				return true
			}
		}
	}
	return false
}

// GetFinalizedFunction returns the callable for an exported function of
// signature (i64) -> i64.
func (m *Module) GetFinalizedFunction(id FuncID) (NativeFunc, error) {
	d, err := m.decl(id)
	if err != nil {
		return nil, err
	}
	if !d.finalized {
		return nil, fmt.Errorf("%w: %s", ErrNotFinalized, d.name)
	}
	if d.linkage != Export {
		return nil, fmt.Errorf("get %s: function is not exported", d.name)
	}
	if !d.sig.Equal(ir.WordSignature(1)) {
		return nil, fmt.Errorf("%w: %s is %s", ErrSignatureMismatch, d.name, d.sig)
	}
	body := d.body
	return func(env uint64) uint64 {
		return body.run([]uint64{env})[0]
	}, nil
}

// Stats describes the module contents.
type Stats struct {
	Declared  int
	Defined   int
	Finalized int
}

func (m *Module) Stats() Stats {
	var st Stats
	for _, d := range m.decls {
		st.Declared++
		if d.body != nil {
			st.Defined++
		}
		if d.finalized {
			st.Finalized++
		}
	}
	return st
}
