package testutil

import (
	"context"

	"github.com/hupe1980/trainmesh/core"
	"github.com/hupe1980/trainmesh/logging"
)

// ContextBuilder provides a fluent helper for constructing execution contexts
// in tests. Example:
//
//	ctx := NewContextBuilder().IterationTotal(5).GradAcc(2).Build()
//
// Chain only the parts you need; unset attributes stay absent.
type ContextBuilder struct {
	base     context.Context
	logger   logging.Logger
	pipeline map[string]any
	iter     map[string]any
	step     map[string]any
	hook     map[string]any
}

// NewContextBuilder creates a builder with a background context and the NoOp
// logger.
func NewContextBuilder() *ContextBuilder {
	return &ContextBuilder{
		base:     context.Background(),
		logger:   logging.NoOpLogger{},
		pipeline: map[string]any{},
		iter:     map[string]any{},
		step:     map[string]any{},
		hook:     map[string]any{},
	}
}

// Base sets the ambient cancellation context (chainable).
func (b *ContextBuilder) Base(ctx context.Context) *ContextBuilder { b.base = ctx; return b }

// Logger sets the context logger (chainable).
func (b *ContextBuilder) Logger(l logging.Logger) *ContextBuilder { b.logger = l; return b }

// Pipeline sets a pipeline-scope attribute (chainable).
func (b *ContextBuilder) Pipeline(name string, v any) *ContextBuilder {
	b.pipeline[name] = v
	return b
}

// Iteration sets an iteration-scope attribute (chainable).
func (b *ContextBuilder) Iteration(name string, v any) *ContextBuilder {
	b.iter[name] = v
	return b
}

// Step sets a step-scope attribute (chainable).
func (b *ContextBuilder) Step(name string, v any) *ContextBuilder {
	b.step[name] = v
	return b
}

// Hook sets a hook-scope attribute (chainable).
func (b *ContextBuilder) Hook(name string, v any) *ContextBuilder {
	b.hook[name] = v
	return b
}

// IterationTotal sets iteration.total (chainable).
func (b *ContextBuilder) IterationTotal(total int) *ContextBuilder {
	return b.Iteration(core.AttrTotal, total)
}

// IterationStart sets iteration.start (chainable).
func (b *ContextBuilder) IterationStart(start int) *ContextBuilder {
	return b.Iteration(core.AttrStart, start)
}

// GradAcc sets the gradient-accumulation factor (chainable).
func (b *ContextBuilder) GradAcc(n int) *ContextBuilder {
	return b.Pipeline(core.AttrGradAcc, n)
}

// ModelState sets the pipeline's model state (chainable).
func (b *ContextBuilder) ModelState(s core.ModelState) *ContextBuilder {
	return b.Pipeline(core.AttrModelState, s)
}

// Launch sets the launch hook (chainable).
func (b *ContextBuilder) Launch(h core.LaunchHook) *ContextBuilder {
	return b.Hook(core.AttrLaunch, h)
}

// Comm sets the collective communicator (chainable).
func (b *ContextBuilder) Comm(c core.Comm) *ContextBuilder {
	return b.Hook(core.AttrComm, c)
}

// Build materializes the context.
func (b *ContextBuilder) Build() *core.Context {
	ctx := core.NewContext(b.base, b.logger)

	for name, v := range b.pipeline {
		ctx.Pipeline.SetAttr(name, v)
	}

	for name, v := range b.iter {
		ctx.Iteration.SetAttr(name, v)
	}

	for name, v := range b.step {
		ctx.Step.SetAttr(name, v)
	}

	for name, v := range b.hook {
		ctx.Hook.SetAttr(name, v)
	}

	return ctx
}
