package parser

import (
	"errors"
	"fmt"

	"github.com/funvibe/rol/internal/ast"
	"github.com/funvibe/rol/internal/token"
)

var (
	ErrUnexpectedToken    = errors.New("unexpected token")
	ErrUnexpectedEOF      = errors.New("unexpected end of input")
	ErrInvalidSpecialForm = errors.New("invalid special form")
	ErrInvalidLiteral     = errors.New("invalid literal")
)

// ParseError describes why a source text could not be read. Kind is one
// of the sentinel errors above.
type ParseError struct {
	Kind     error
	Pos      ast.Pos
	Expected string
	Found    token.Token
	// Form and Reason are set for ErrInvalidSpecialForm.
	Form   string
	Reason string
}

func (e *ParseError) Error() string {
	var msg string
	switch e.Kind {
	case ErrUnexpectedToken:
		msg = fmt.Sprintf("expected %s, but found %s", e.Expected, e.Found)
	case ErrUnexpectedEOF:
		msg = fmt.Sprintf("unexpected end of input, expected %s", e.Expected)
	case ErrInvalidSpecialForm:
		msg = fmt.Sprintf("invalid %s form: %s", e.Form, e.Reason)
	default:
		msg = fmt.Sprintf("%v: %s", e.Kind, e.Reason)
	}
	if e.Pos.Line > 0 {
		return e.Pos.String() + ": " + msg
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Kind }
