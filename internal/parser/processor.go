package parser

import "github.com/funvibe/rol/internal/pipeline"

type ParserProcessor struct{}

func (pp *ParserProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	exprs, err := New(ctx.TokenStream).ParseProgram()
	if err != nil {
		ctx.Errors = append(ctx.Errors, err)
		return ctx
	}
	ctx.Exprs = exprs
	return ctx
}
