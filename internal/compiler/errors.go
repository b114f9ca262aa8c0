package compiler

import (
	"errors"
	"fmt"

	"github.com/funvibe/rol/internal/ast"
)

var (
	ErrUnbound       = errors.New("unbound variable")
	ErrArity         = errors.New("wrong number of arguments")
	ErrUnimplemented = errors.New("not implemented")
)

// CompileError is returned for source-level problems. Kind is one of the
// sentinel errors above and is matched by errors.Is.
type CompileError struct {
	Kind error
	Msg  string
	Pos  ast.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.Line > 0 {
		return e.Pos.String() + ": " + e.Msg
	}
	return e.Msg
}

func (e *CompileError) Unwrap() error { return e.Kind }

func unboundError(pos ast.Pos, name string) error {
	return &CompileError{Kind: ErrUnbound, Msg: "unbound variable: " + name, Pos: pos}
}

func arityError(pos ast.Pos, op ast.BuiltinOp, got int) error {
	return &CompileError{
		Kind: ErrArity,
		Msg:  fmt.Sprintf("wrong number of arguments for %s: expected %d, got %d", op, op.Arity(), got),
		Pos:  pos,
	}
}

func unimplementedError(pos ast.Pos, format string, args ...any) error {
	return &CompileError{Kind: ErrUnimplemented, Msg: fmt.Sprintf(format, args...), Pos: pos}
}
