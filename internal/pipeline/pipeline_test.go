package pipeline

import (
	"errors"
	"testing"
)

func TestRunStopsAfterFailure(t *testing.T) {
	var ran []string
	stage := func(name string, fail bool) Processor {
		return ProcessorFunc(func(ctx *PipelineContext) *PipelineContext {
			ran = append(ran, name)
			if fail {
				ctx.Errors = append(ctx.Errors, errors.New(name+" failed"))
			}
			return ctx
		})
	}

	ctx := New(stage("lex", false), stage("parse", true), stage("compile", false)).Run(NewContext("(+ 1"))
	if !ctx.Failed() {
		t.Fatal("expected failure")
	}
	if len(ran) != 2 || ran[1] != "parse" {
		t.Errorf("stages run = %v", ran)
	}
	if ctx.SourceCode != "(+ 1" {
		t.Errorf("source = %q", ctx.SourceCode)
	}
}

func TestRunAllStages(t *testing.T) {
	count := 0
	inc := ProcessorFunc(func(ctx *PipelineContext) *PipelineContext {
		count++
		return ctx
	})
	ctx := New(inc, inc, inc).Run(NewContext(""))
	if ctx.Failed() || count != 3 {
		t.Errorf("failed=%v count=%d", ctx.Failed(), count)
	}
}
