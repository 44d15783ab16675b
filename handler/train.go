package handler

import (
	"fmt"

	"github.com/hupe1980/trainmesh/core"
)

// Forward parses the current batch and runs the model's forward pass, storing
// input, label, extra and output in the step scope.
type Forward struct {
	Base
}

// NewForward creates the forward-pass handler.
func NewForward(opts ...Option) *Forward {
	return &Forward{Base: NewBase(opts...)}
}

// Handle requires pipeline.data_parser and pipeline.forward.
func (h *Forward) Handle(ctx *core.Context) error {
	if err := ctx.Check(false, "pipeline.data_parser", "pipeline.forward"); err != nil {
		return err
	}

	input, label, extra, err := ctx.DataParser()(ctx)
	if err != nil {
		return fmt.Errorf("parse batch: %w", err)
	}

	output, err := ctx.Forward()(ctx, input)
	if err != nil {
		return fmt.Errorf("forward pass: %w", err)
	}

	return ctx.Step.Update(map[string]any{
		core.AttrInput:  input,
		core.AttrLabel:  label,
		core.AttrExtra:  extra,
		core.AttrOutput: output,
	})
}

// Loss computes the step's named loss values. A pipeline without a loss
// function skips the stage silently, which keeps the same tree usable for
// inference.
type Loss struct {
	Base
}

// NewLoss creates the loss handler.
func NewLoss(opts ...Option) *Loss {
	return &Loss{Base: NewBase(opts...)}
}

func (h *Loss) Handle(ctx *core.Context) error {
	lossFn := ctx.LossFunc()
	if lossFn == nil {
		return nil
	}

	values, err := lossFn(ctx)
	if err != nil {
		return fmt.Errorf("compute loss: %w", err)
	}

	return ctx.Step.SetAttr(core.AttrLossValues, values)
}

// Backward backpropagates the step's loss, scaled for gradient accumulation
// so that the mean over an accumulation window matches the unaccumulated
// gradient. Steps without loss values are skipped.
type Backward struct {
	Base
}

// NewBackward creates the backward handler.
func NewBackward(opts ...Option) *Backward {
	return &Backward{Base: NewBase(opts...)}
}

func (h *Backward) Handle(ctx *core.Context) error {
	if ctx.LossValues() == nil {
		return nil
	}

	bw := ctx.Backward()
	if bw == nil {
		return nil
	}

	divisor := AccumulationDivisor(ctx.StepTotal(), ctx.StepCurrent(), ctx.GradAcc())

	if err := bw(ctx, 1/float64(divisor)); err != nil {
		return fmt.Errorf("backward pass: %w", err)
	}

	return nil
}

// AccumulationDivisor returns the loss divisor for step current (0-based) of
// an epoch with the given step total and accumulation factor. Full windows
// divide by the factor; the short trailing window of total%factor steps
// divides by its own length so every window averages correctly. An unknown
// total (0 or negative) always uses the full factor.
func AccumulationDivisor(total, current, factor int) int {
	if factor < 1 {
		factor = 1
	}

	if total <= 0 {
		return factor
	}

	last := total % factor
	if total-current-1 < last {
		return last
	}

	return factor
}

// ShouldUpdate reports whether the optimizer steps after step current
// (0-based): at the end of every full accumulation window, and at the final
// step of the epoch so a short trailing window still flushes.
func ShouldUpdate(total, current, factor int) bool {
	if factor < 1 {
		factor = 1
	}

	return (current+1)%factor == 0 || current+1 == total
}

// OptimizerContainer wraps the backward stage: it traverses its children and
// then steps the optimizer at accumulation boundaries, zeroing gradients
// after each update.
type OptimizerContainer struct {
	*Container
}

// NewOptimizer creates the optimizer boundary container.
func NewOptimizer(children []core.Handler, opts ...Option) *OptimizerContainer {
	return &OptimizerContainer{
		Container: NewContainer(children, opts...),
	}
}

func (c *OptimizerContainer) Handle(ctx *core.Context) error {
	if err := c.Traverse(ctx); err != nil {
		return err
	}

	opt := ctx.Optimizer()
	if opt == nil {
		return nil
	}

	if !ShouldUpdate(ctx.StepTotal(), ctx.StepCurrent(), ctx.GradAcc()) {
		return nil
	}

	if err := opt.Step(); err != nil {
		return fmt.Errorf("optimizer step: %w", err)
	}

	opt.ZeroGrad()

	return nil
}
