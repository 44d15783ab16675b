package handler

import (
	"github.com/hupe1980/trainmesh/core"
)

// EpochIterationContainer drives the outer epoch loop. It requires
// iteration.total and runs its children once per epoch, with
// iteration.current tracking the epoch index.
type EpochIterationContainer struct {
	*Container
}

// NewEpochIteration creates the epoch loop container.
func NewEpochIteration(children []core.Handler, opts ...Option) *EpochIterationContainer {
	return &EpochIterationContainer{
		Container: NewContainer(children, opts...),
	}
}

// Handle runs the epoch loop from iteration.start (default 0) up to
// iteration.total.
func (c *EpochIterationContainer) Handle(ctx *core.Context) error {
	if err := ctx.Check(false, "iteration.total"); err != nil {
		return err
	}

	start, total := ctx.IterationStart(), ctx.IterationTotal()

	progress := ctx.Progress()
	progress.Begin("epochs", total)
	defer progress.End("epochs")

	for epoch := start; epoch < total; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := c.runEpoch(ctx, epoch); err != nil {
			return err
		}

		progress.Update("epochs", epoch+1, total)
	}

	return nil
}

func (c *EpochIterationContainer) runEpoch(ctx *core.Context, epoch int) error {
	// The epoch counter persists past the loop so resumption and
	// checkpointing can read the last completed epoch; only step-level
	// state is scope-restored.
	if err := ctx.Iteration.SetAttr(core.AttrCurrent, epoch); err != nil {
		return err
	}

	ctx.Logger.Info("Epoch begins", "epoch", epoch+1, "total", ctx.IterationTotal())

	return c.Traverse(ctx)
}

// IterationContainer runs its children once per batch of a single pass over
// the model state's data loader. Gradient tracking is toggled around the pass
// according to the model state.
type IterationContainer struct {
	*Container
}

// NewIteration creates the per-batch loop container.
func NewIteration(children []core.Handler, opts ...Option) *IterationContainer {
	return &IterationContainer{
		Container: NewContainer(children, opts...),
	}
}

// Handle walks the data loader once, scoping step.current, step.batch and
// step.total for each child traversal. A missing loader logs a warning and
// skips the pass.
func (c *IterationContainer) Handle(ctx *core.Context) error {
	state := ctx.ModelState()
	if state == nil {
		return ctx.Check(false, "pipeline.model_state")
	}

	loader := state.Loader(ctx)
	if loader == nil {
		ctx.Logger.Warn("Got empty data loader, skipping pass", "state", state.String())
		return nil
	}

	return withGradMode(ctx, state.GradEnabled(), func() error {
		return c.runPass(ctx, state, loader)
	})
}

func (c *IterationContainer) runPass(ctx *core.Context, state core.ModelState, loader core.Loader) error {
	total, known := loader.Len()
	if !known {
		total = 0
	}

	defer core.Assign(ctx.Step, core.Values{
		core.AttrTotal: total,
	}, core.WithScopeLogger(ctx.Logger)).Exit()

	task := state.String()

	progress := ctx.Progress()
	progress.Begin(task, total)
	defer progress.End(task)

	loader.Reset()

	for current := 0; ; current++ {
		batch, ok := loader.Next()
		if !ok {
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if err := c.runStep(ctx, current, batch); err != nil {
			return err
		}

		progress.Update(task, current+1, total)
	}
}

func (c *IterationContainer) runStep(ctx *core.Context, current int, batch any) error {
	defer core.Assign(ctx.Step, core.Values{
		core.AttrCurrent: current,
		core.AttrBatch:   batch,
	}, core.WithScopeLogger(ctx.Logger)).Exit()

	return c.Traverse(ctx)
}

// StepIterationContainer drives a flat global-step loop: the data loader is
// cycled as many times as needed until iteration.total steps have run,
// starting from iteration.start. Both iteration.current and the step scope
// track the global step index.
type StepIterationContainer struct {
	*Container
}

// NewStepIteration creates the global-step loop container.
func NewStepIteration(children []core.Handler, opts ...Option) *StepIterationContainer {
	return &StepIterationContainer{
		Container: NewContainer(children, opts...),
	}
}

// Handle runs steps iteration.start through iteration.total-1, resetting and
// re-walking the loader whenever it is exhausted.
func (c *StepIterationContainer) Handle(ctx *core.Context) error {
	if err := ctx.Check(false, "iteration.total", "pipeline.model_state"); err != nil {
		return err
	}

	state := ctx.ModelState()

	loader := state.Loader(ctx)
	if loader == nil {
		ctx.Logger.Warn("Got empty data loader, skipping pass", "state", state.String())
		return nil
	}

	start, total := ctx.IterationStart(), ctx.IterationTotal()

	return withGradMode(ctx, state.GradEnabled(), func() error {
		return c.runSteps(ctx, loader, start, total)
	})
}

func (c *StepIterationContainer) runSteps(ctx *core.Context, loader core.Loader, start, total int) error {
	progress := ctx.Progress()
	progress.Begin("steps", total)
	defer progress.End("steps")

	current := start

	for current < total {
		loader.Reset()

		advanced := false

		for current < total {
			batch, ok := loader.Next()
			if !ok {
				break
			}

			advanced = true

			if err := ctx.Err(); err != nil {
				return err
			}

			if err := c.runStep(ctx, current, batch, total); err != nil {
				return err
			}

			progress.Update("steps", current+1, total)
			current++
		}

		if !advanced {
			ctx.Logger.Warn("Data loader yielded no batches, stopping step loop", "current", current)
			return nil
		}
	}

	return nil
}

func (c *StepIterationContainer) runStep(ctx *core.Context, current int, batch any, total int) error {
	if err := ctx.Iteration.SetAttr(core.AttrCurrent, current); err != nil {
		return err
	}

	defer core.Assign(ctx.Step, core.Values{
		core.AttrCurrent: current,
		core.AttrBatch:   batch,
		core.AttrTotal:   total,
	}, core.WithScopeLogger(ctx.Logger)).Exit()

	return c.Traverse(ctx)
}

// withGradMode toggles gradient tracking for the duration of fn when the
// pipeline exposes a toggle.
func withGradMode(ctx *core.Context, enabled bool, fn func() error) error {
	if toggle := ctx.GradToggle(); toggle != nil {
		restore := toggle(enabled)
		defer restore()
	}

	return fn()
}
