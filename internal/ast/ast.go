// Package ast defines the expression tree consumed by the compiler.
package ast

import (
	"fmt"
	"strings"

	"github.com/funvibe/rol/internal/symbol"
	"github.com/funvibe/rol/internal/value"
)

// Pos is a source position. The zero Pos means unknown.
type Pos struct {
	Line   int
	Column int
}

func (p Pos) String() string {
	if p.Line == 0 {
		return "?"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Expr is any expression node.
type Expr interface {
	expressionNode()
	Position() Pos
	String() string
}

// Literal is a scalar constant: none, bool, int, float or symbol.
type Literal struct {
	Pos   Pos
	Value value.Var
}

// StringLiteral is a string constant. The compiler allocates it on the heap.
type StringLiteral struct {
	Pos   Pos
	Value string
}

// ListLiteral is a constant list. Elements must themselves be literals.
type ListLiteral struct {
	Pos   Pos
	Elems []Expr
}

// Variable is a reference to a bound name.
type Variable struct {
	Pos  Pos
	Name symbol.Symbol
}

// Call applies Func to Args. Builtin operators are calls whose Func is a
// Variable naming the operator.
type Call struct {
	Pos  Pos
	Func Expr
	Args []Expr
}

// Binding is one (name init) pair of a let.
type Binding struct {
	Name symbol.Symbol
	Init Expr
}

// Let evaluates each Init in the enclosing scope, then Body in a new
// scope holding the bindings.
type Let struct {
	Pos      Pos
	Bindings []Binding
	Body     Expr
}

// If evaluates Then or Else depending on the truthiness of Cond.
type If struct {
	Pos  Pos
	Cond Expr
	Then Expr
	Else Expr
}

// Lambda is an anonymous function.
type Lambda struct {
	Pos    Pos
	Params []symbol.Symbol
	Body   Expr
}

func (l *Literal) expressionNode()       {}
func (l *StringLiteral) expressionNode() {}
func (l *ListLiteral) expressionNode()   {}
func (v *Variable) expressionNode()      {}
func (c *Call) expressionNode()          {}
func (l *Let) expressionNode()           {}
func (i *If) expressionNode()            {}
func (l *Lambda) expressionNode()        {}

func (l *Literal) Position() Pos       { return l.Pos }
func (l *StringLiteral) Position() Pos { return l.Pos }
func (l *ListLiteral) Position() Pos   { return l.Pos }
func (v *Variable) Position() Pos      { return v.Pos }
func (c *Call) Position() Pos          { return c.Pos }
func (l *Let) Position() Pos           { return l.Pos }
func (i *If) Position() Pos            { return i.Pos }
func (l *Lambda) Position() Pos        { return l.Pos }

func (l *Literal) String() string {
	if l.Value.IsSymbol() {
		s, _ := symbol.FromVar(l.Value)
		return "'" + s.String()
	}
	return l.Value.String()
}

func (l *StringLiteral) String() string { return fmt.Sprintf("%q", l.Value) }

func (l *ListLiteral) String() string { return "(" + joinExprs(l.Elems) + ")" }

func (v *Variable) String() string { return v.Name.String() }

func (c *Call) String() string {
	if len(c.Args) == 0 {
		return "(" + c.Func.String() + ")"
	}
	return "(" + c.Func.String() + " " + joinExprs(c.Args) + ")"
}

func (l *Let) String() string {
	var sb strings.Builder
	sb.WriteString("(let (")
	for i, b := range l.Bindings {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString("(" + b.Name.String() + " " + b.Init.String() + ")")
	}
	sb.WriteString(") ")
	sb.WriteString(l.Body.String())
	sb.WriteString(")")
	return sb.String()
}

func (i *If) String() string {
	return fmt.Sprintf("(if %s %s %s)", i.Cond, i.Then, i.Else)
}

func (l *Lambda) String() string {
	params := make([]string, len(l.Params))
	for i, p := range l.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("(lambda (%s) %s)", strings.Join(params, " "), l.Body)
}

func joinExprs(es []Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.String()
	}
	return strings.Join(parts, " ")
}

// Convenience constructors, mostly for tests and embedders building trees
// by hand.

func Int(i int32) *Literal        { return &Literal{Value: value.Int(i)} }
func Float(d float64) *Literal    { return &Literal{Value: value.Float(d)} }
func Bool(b bool) *Literal        { return &Literal{Value: value.Bool(b)} }
func None() *Literal              { return &Literal{Value: value.None()} }
func Sym(name string) *Variable   { return &Variable{Name: symbol.Mk(name)} }
func Str(s string) *StringLiteral { return &StringLiteral{Value: s} }

// Apply builds a call of the named function.
func Apply(name string, args ...Expr) *Call {
	return &Call{Func: Sym(name), Args: args}
}

func Bind(name string, init Expr) Binding { return Binding{Name: symbol.Mk(name), Init: init} }

func LetIn(body Expr, bindings ...Binding) *Let { return &Let{Bindings: bindings, Body: body} }
