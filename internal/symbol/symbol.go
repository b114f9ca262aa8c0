// Package symbol interns names into stable uint32 ids.
package symbol

import (
	"sync"

	"github.com/funvibe/rol/internal/value"
)

// Symbol is an interned name.
type Symbol uint32

// Table maps names to ids and back. The zero value is not usable; use NewTable.
type Table struct {
	mu    sync.RWMutex
	ids   map[string]Symbol
	names []string
}

func NewTable() *Table {
	return &Table{ids: make(map[string]Symbol)}
}

// Intern returns the id of name, allocating one on first use.
func (t *Table) Intern(name string) Symbol {
	t.mu.RLock()
	id, ok := t.ids[name]
	t.mu.RUnlock()
	if ok {
		return id
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.ids[name]; ok {
		return id
	}
	id = Symbol(len(t.names))
	t.names = append(t.names, name)
	t.ids[name] = id
	return id
}

// Name returns the interned name and false for unknown ids.
func (t *Table) Name(s Symbol) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(s) >= len(t.names) {
		return "", false
	}
	return t.names[s], true
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.names)
}

var global = NewTable()

// Mk interns name in the process-wide table.
func Mk(name string) Symbol { return global.Intern(name) }

// Global returns the process-wide table.
func Global() *Table { return global }

func (s Symbol) String() string {
	if name, ok := global.Name(s); ok {
		return name
	}
	return "<unknown symbol>"
}

// Var boxes s.
func (s Symbol) Var() value.Var { return value.Symbol(uint32(s)) }

// FromVar unboxes a symbol Var.
func FromVar(v value.Var) (Symbol, bool) {
	id, ok := v.AsSymbol()
	return Symbol(id), ok
}
