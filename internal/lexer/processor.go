package lexer

import (
	"fmt"

	"github.com/funvibe/rol/internal/pipeline"
	"github.com/funvibe/rol/internal/token"
)

type LexerProcessor struct{}

// Process tokenizes the source and records an error for every illegal
// token.
func (lp *LexerProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	ctx.TokenStream = Tokenize(ctx.SourceCode)
	for _, tok := range ctx.TokenStream {
		if tok.Type != token.ILLEGAL {
			continue
		}
		msg := tok.Literal
		if msg == "" {
			msg = fmt.Sprintf("unexpected %q", tok.Lexeme)
		}
		ctx.Errors = append(ctx.Errors, &Error{Line: tok.Line, Column: tok.Column, Msg: msg})
	}
	return ctx
}

// Error is a lexical error.
type Error struct {
	Line, Column int
	Msg          string
}

func (e *Error) Error() string { return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Msg) }
