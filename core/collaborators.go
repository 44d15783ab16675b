package core

// Loader yields batches from a data source. Len may report an unknown length
// (ok false) for streaming sources; iteration containers then run without a
// known total. Reset rewinds to the first batch so a loader can serve as an
// endlessly repeating view for step-based training.
type Loader interface {
	Len() (n int, ok bool)
	Next() (batch any, ok bool)
	Reset()
}

// sliceLoader serves batches from an in-memory slice.
type sliceLoader struct {
	batches []any
	pos     int
}

// NewSliceLoader wraps a fixed batch slice as a Loader. Intended for tests,
// examples and small in-memory datasets.
func NewSliceLoader(batches ...any) Loader {
	return &sliceLoader{batches: batches}
}

func (l *sliceLoader) Len() (int, bool) { return len(l.batches), true }

func (l *sliceLoader) Next() (any, bool) {
	if l.pos >= len(l.batches) {
		return nil, false
	}
	b := l.batches[l.pos]
	l.pos++
	return b, true
}

func (l *sliceLoader) Reset() { l.pos = 0 }

// ModelState selects the data source and gradient behavior for the current
// pipeline mode (train / eval / predict) and owns the epoch-level meters.
type ModelState interface {
	// Loader returns the batch source for this mode, or nil when none is
	// configured (a legal skip condition, not an error).
	Loader(ctx *Context) Loader
	// GradEnabled reports whether gradients are tracked in this mode.
	GradEnabled() bool
	// InitMeter resets the epoch-level loss/metric meters.
	InitMeter(ctx *Context) error
	// UpdateMeter folds one step's loss values and metrics into the meters.
	UpdateMeter(ctx *Context, lossValues, metrics map[string]float64) error
	// String names the mode for progress and logging output.
	String() string
}

// DataParser splits a raw batch into model input, label and extra payload.
type DataParser func(ctx *Context) (input, label, extra any, err error)

// ForwardFunc runs the model's forward pass over the parsed input.
type ForwardFunc func(ctx *Context, input any) (output any, err error)

// LossFunc computes named scalar losses for the current step. A nil LossFunc
// on the pipeline means "skip loss computation".
type LossFunc func(ctx *Context) (map[string]float64, error)

// BackwardFunc reduces the current step's loss and backpropagates it scaled by
// scale. The gradient-accumulation divisor policy lives in the Backward
// handler; the collaborator only applies the scale it is handed.
type BackwardFunc func(ctx *Context, scale float64) error

// MetricFunc computes named scalar metrics for the current step.
type MetricFunc func(ctx *Context) (map[string]float64, error)

// Optimizer applies accumulated gradients and resets them.
type Optimizer interface {
	Step() error
	ZeroGrad()
}

// LRScheduler advances the learning-rate schedule once per epoch.
type LRScheduler interface {
	Step()
}

// GradToggle switches gradient tracking in the external numeric library on or
// off, returning a function that restores the previous mode. Implementations
// that cannot toggle globally may return a no-op restore.
type GradToggle func(enabled bool) (restore func())

// SnapshotFunc serializes the pipeline's restorable state (model weights,
// optimizer state, counters) for checkpointing.
type SnapshotFunc func(ctx *Context) ([]byte, error)

// ProgressSink receives (current, total) style progress updates. It is purely
// observational: no engine logic depends on its presence, and every Context
// falls back to a no-op sink.
type ProgressSink interface {
	Begin(task string, total int)
	Update(task string, current, total int)
	End(task string)
}

type noopProgress struct{}

func (noopProgress) Begin(string, int)       {}
func (noopProgress) Update(string, int, int) {}
func (noopProgress) End(string)              {}

// NoopProgress is the fallback ProgressSink used when none is configured.
var NoopProgress ProgressSink = noopProgress{}
