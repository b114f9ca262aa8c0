// Package pipeline chains the source processing stages: lexing, parsing
// and whatever the embedder appends.
package pipeline

import (
	"github.com/funvibe/rol/internal/ast"
	"github.com/funvibe/rol/internal/token"
)

// PipelineContext carries one source text through the stages.
type PipelineContext struct {
	SourceCode  string
	FilePath    string
	TokenStream []token.Token
	Exprs       []ast.Expr
	Errors      []error
}

func NewContext(source string) *PipelineContext {
	return &PipelineContext{SourceCode: source}
}

// Failed reports whether any stage recorded an error.
func (c *PipelineContext) Failed() bool { return len(c.Errors) > 0 }

type Processor interface {
	Process(ctx *PipelineContext) *PipelineContext
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx *PipelineContext) *PipelineContext

func (f ProcessorFunc) Process(ctx *PipelineContext) *PipelineContext { return f(ctx) }

// Pipeline represents a sequence of processing stages.
type Pipeline struct {
	processors []Processor
}

func New(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Run executes the pipeline. A stage that fails stops the run: later
// stages need the output of earlier ones.
func (p *Pipeline) Run(initialCtx *PipelineContext) *PipelineContext {
	ctx := initialCtx
	for _, processor := range p.processors {
		ctx = processor.Process(ctx)
		if ctx.Failed() {
			break
		}
	}
	return ctx
}
