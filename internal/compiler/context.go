package compiler

import (
	"github.com/funvibe/rol/internal/env"
	"github.com/funvibe/rol/internal/symbol"
)

// CompileContext maps names to frame slots for one lexical frame. Each
// let body gets a child context; the root context describes the
// environment passed to the compiled function.
type CompileContext struct {
	bindings map[symbol.Symbol]uint32
	parent   *CompileContext
	depth    uint32
}

// NewContext returns an empty root context.
func NewContext() *CompileContext {
	return &CompileContext{bindings: make(map[symbol.Symbol]uint32)}
}

// Child opens a nested frame.
func (c *CompileContext) Child() *CompileContext {
	return &CompileContext{bindings: make(map[symbol.Symbol]uint32), parent: c, depth: c.depth + 1}
}

// Bind records name at offset in this frame. A later binding of the same
// name replaces the earlier one.
func (c *CompileContext) Bind(name symbol.Symbol, offset uint32) {
	c.bindings[name] = offset
}

// Lookup resolves name to a lexical address relative to this frame. The
// innermost binding wins.
func (c *CompileContext) Lookup(name symbol.Symbol) (env.LexicalAddress, bool) {
	var hops uint32
	for ctx := c; ctx != nil; ctx = ctx.parent {
		if off, ok := ctx.bindings[name]; ok {
			return env.LexicalAddress{Depth: hops, Offset: off}, true
		}
		hops++
	}
	return env.LexicalAddress{}, false
}

// Depth is the number of frames between this context and the root.
func (c *CompileContext) Depth() uint32 { return c.depth }

// Len is the number of names bound directly in this frame.
func (c *CompileContext) Len() int { return len(c.bindings) }
