package core

import (
	"context"
	"strings"

	"github.com/hupe1980/trainmesh/logging"
)

// Namespace prefixes understood by Context.Check paths.
const (
	NamespacePipeline  = "pipeline"
	NamespaceIteration = "iteration"
	NamespaceStep      = "step"
	NamespaceHook      = "hook"
	NamespaceDisplay   = "display"
)

// Well-known attribute names within the context namespaces. Handlers read and
// write these; user code may add arbitrary additional attributes.
const (
	// pipeline namespace
	AttrModelState  = "model_state"
	AttrDataParser  = "data_parser"
	AttrForward     = "forward"
	AttrLossFunc    = "loss_func"
	AttrBackward    = "backward"
	AttrOptimizer   = "optimizer"
	AttrLRScheduler = "lr_scheduler"
	AttrMetrics     = "metrics"
	AttrGradAcc     = "grad_acc"
	AttrGradToggle  = "grad_toggle"
	AttrSnapshot    = "snapshot"
	// iteration namespace
	AttrCurrent = "current"
	AttrStart   = "start"
	AttrTotal   = "total"
	// step namespace (shares current/total)
	AttrBatch      = "batch"
	AttrInput      = "input"
	AttrLabel      = "label"
	AttrOutput     = "output"
	AttrExtra      = "extra"
	AttrLossValues = "loss_values"
	AttrMetricVals = "metric_values"
	// hook namespace
	AttrLaunch = "launch"
	AttrComm   = "comm"
	// display namespace
	AttrProgress = "progress"
)

// Context is the shared, hierarchically scoped mutable state threaded through
// every handler invocation. It is created once per run and owned by a single
// goroutine; handlers mutate its namespaces in place, and scoped assignment
// (Assign) reverts per-epoch and per-step mutations when their scope exits.
type Context struct {
	ctx    context.Context
	Logger logging.Logger

	// Pipeline holds run-wide collaborators: loss function, optimizer,
	// LR scheduler, data parser, model state, accumulation factor.
	Pipeline *Attrs
	// Iteration holds the epoch-level counters: current, start, total.
	Iteration *Attrs
	// Step holds the per-step state: current, total, batch, forward outputs,
	// loss values, metrics.
	Step *Attrs
	// Hook holds the launch hook and collective communicator.
	Hook *Attrs
	// Display holds progress and rendering handles (external).
	Display *Attrs
}

// NewContext creates an empty execution context. A nil logger falls back to
// the process default.
func NewContext(ctx context.Context, logger logging.Logger) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Context{
		ctx:       ctx,
		Logger:    logger,
		Pipeline:  NewAttrs(NamespacePipeline),
		Iteration: NewAttrs(NamespaceIteration),
		Step:      NewAttrs(NamespaceStep),
		Hook:      NewAttrs(NamespaceHook),
		Display:   NewAttrs(NamespaceDisplay),
	}
}

// Context returns the ambient cancellation context.
func (c *Context) Context() context.Context { return c.ctx }

// Done mirrors context.Context's Done.
func (c *Context) Done() <-chan struct{} { return c.ctx.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (c *Context) Err() error { return c.ctx.Err() }

// namespace resolves a namespace prefix to its store, or nil.
func (c *Context) namespace(name string) *Attrs {
	switch name {
	case NamespacePipeline:
		return c.Pipeline
	case NamespaceIteration:
		return c.Iteration
	case NamespaceStep:
		return c.Step
	case NamespaceHook:
		return c.Hook
	case NamespaceDisplay:
		return c.Display
	default:
		return nil
	}
}

// Check verifies that every dotted path ("iteration.total",
// "pipeline.loss_func") resolves to a present, non-Nothing value. Missing
// paths produce a ConfigError; unless silent, they are also logged as a
// warning. This is the explicit "context check" that turns absent required
// attributes into a diagnosable configuration error instead of a crash.
func (c *Context) Check(silent bool, paths ...string) error {
	var missing []string
	for _, path := range paths {
		ns, rest, ok := strings.Cut(path, ".")
		store := c.namespace(ns)
		if store == nil || !ok || !CheckPath(store, rest) {
			missing = append(missing, path)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	err := NewConfigError(missing...)
	if !silent {
		c.Logger.Warn("Context check failed", "missing", strings.Join(missing, ", "))
	}
	return err
}

// CheckOK is the silent boolean form of Check for optional attributes.
func (c *Context) CheckOK(paths ...string) bool {
	return c.Check(true, paths...) == nil
}

// Launch returns the active launch hook, or nil when none is configured
// (single-process direct dispatch).
func (c *Context) Launch() LaunchHook {
	if h, ok := c.Hook.GetAttr(AttrLaunch).(LaunchHook); ok {
		return h
	}
	return nil
}

// Comm returns the collective communicator, or nil outside distributed runs.
func (c *Context) Comm() Comm {
	if cm, ok := c.Hook.GetAttr(AttrComm).(Comm); ok {
		return cm
	}
	return nil
}

// Progress returns the configured progress sink, falling back to a no-op.
func (c *Context) Progress() ProgressSink {
	if p, ok := c.Display.GetAttr(AttrProgress).(ProgressSink); ok {
		return p
	}
	return NoopProgress
}

// ModelState returns the pipeline's model state collaborator, or nil.
func (c *Context) ModelState() ModelState {
	if s, ok := c.Pipeline.GetAttr(AttrModelState).(ModelState); ok {
		return s
	}
	return nil
}

// DataParser returns the pipeline's data parser, or nil.
func (c *Context) DataParser() DataParser {
	if p, ok := c.Pipeline.GetAttr(AttrDataParser).(DataParser); ok {
		return p
	}
	return nil
}

// Forward returns the pipeline's forward collaborator, or nil.
func (c *Context) Forward() ForwardFunc {
	if f, ok := c.Pipeline.GetAttr(AttrForward).(ForwardFunc); ok {
		return f
	}
	return nil
}

// LossFunc returns the pipeline's loss function, or nil.
func (c *Context) LossFunc() LossFunc {
	if f, ok := c.Pipeline.GetAttr(AttrLossFunc).(LossFunc); ok {
		return f
	}
	return nil
}

// Backward returns the pipeline's backward collaborator, or nil.
func (c *Context) Backward() BackwardFunc {
	if f, ok := c.Pipeline.GetAttr(AttrBackward).(BackwardFunc); ok {
		return f
	}
	return nil
}

// Optimizer returns the pipeline's optimizer, or nil.
func (c *Context) Optimizer() Optimizer {
	if o, ok := c.Pipeline.GetAttr(AttrOptimizer).(Optimizer); ok {
		return o
	}
	return nil
}

// LRScheduler returns the pipeline's learning-rate scheduler, or nil.
func (c *Context) LRScheduler() LRScheduler {
	if s, ok := c.Pipeline.GetAttr(AttrLRScheduler).(LRScheduler); ok {
		return s
	}
	return nil
}

// MetricFunc returns the pipeline's metric function, or nil.
func (c *Context) MetricFunc() MetricFunc {
	if f, ok := c.Pipeline.GetAttr(AttrMetrics).(MetricFunc); ok {
		return f
	}
	return nil
}

// GradToggle returns the pipeline's gradient mode toggle, or nil.
func (c *Context) GradToggle() GradToggle {
	if t, ok := c.Pipeline.GetAttr(AttrGradToggle).(GradToggle); ok {
		return t
	}
	return nil
}

// Snapshot returns the pipeline's snapshot collaborator, or nil.
func (c *Context) Snapshot() SnapshotFunc {
	if f, ok := c.Pipeline.GetAttr(AttrSnapshot).(SnapshotFunc); ok {
		return f
	}
	return nil
}

// GradAcc returns the gradient-accumulation factor, defaulting to 1.
func (c *Context) GradAcc() int {
	n := AsInt(c.Pipeline.GetAttr(AttrGradAcc), 1)
	if n < 1 {
		return 1
	}
	return n
}

// IterationCurrent returns the current epoch (or global step) index.
func (c *Context) IterationCurrent() int {
	return AsInt(c.Iteration.GetAttr(AttrCurrent), 0)
}

// IterationStart returns the starting epoch (or global step) index.
func (c *Context) IterationStart() int {
	return AsInt(c.Iteration.GetAttr(AttrStart), 0)
}

// IterationTotal returns the total epoch (or global step) count.
func (c *Context) IterationTotal() int {
	return AsInt(c.Iteration.GetAttr(AttrTotal), 0)
}

// StepCurrent returns the current step index within the epoch.
func (c *Context) StepCurrent() int {
	return AsInt(c.Step.GetAttr(AttrCurrent), 0)
}

// StepTotal returns the total step count for the epoch, 0 when unknown.
func (c *Context) StepTotal() int {
	return AsInt(c.Step.GetAttr(AttrTotal), 0)
}

// Batch returns the current raw batch, or Nothing outside a step scope.
func (c *Context) Batch() any {
	return c.Step.GetAttr(AttrBatch)
}

// LossValues returns the named per-step loss values, or nil when absent.
func (c *Context) LossValues() map[string]float64 {
	if m, ok := c.Step.GetAttr(AttrLossValues).(map[string]float64); ok {
		return m
	}
	return nil
}

// MetricValues returns the named per-step metric values, or nil when absent.
func (c *Context) MetricValues() map[string]float64 {
	if m, ok := c.Step.GetAttr(AttrMetricVals).(map[string]float64); ok {
		return m
	}
	return nil
}
