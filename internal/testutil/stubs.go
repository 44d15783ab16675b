package testutil

import (
	"github.com/hupe1980/trainmesh/core"
)

// RecordingHandler records the iteration and step indices at which it was
// invoked. Configure Err to make every invocation fail.
type RecordingHandler struct {
	id        string
	execRanks core.ExecRanks
	wrappers  []core.Wrapper
	parent    core.Handler

	Calls []Call
	Err   error
}

// Call captures one handler invocation.
type Call struct {
	Epoch int
	Step  int
}

// NewRecordingHandler creates a recording handler with the given ID.
func NewRecordingHandler(id string) *RecordingHandler {
	return &RecordingHandler{id: id}
}

func (h *RecordingHandler) ID() string { return h.id }

func (h *RecordingHandler) ExecRanks() core.ExecRanks { return h.execRanks }

func (h *RecordingHandler) SetExecRanks(r core.ExecRanks) { h.execRanks = r }

func (h *RecordingHandler) Wrappers() []core.Wrapper { return h.wrappers }

func (h *RecordingHandler) SetWrappers(ws ...core.Wrapper) { h.wrappers = ws }

func (h *RecordingHandler) Lifecycle() string { return "" }

func (h *RecordingHandler) Parent() core.Handler { return h.parent }

func (h *RecordingHandler) Handle(ctx *core.Context) error {
	h.Calls = append(h.Calls, Call{
		Epoch: ctx.IterationCurrent(),
		Step:  ctx.StepCurrent(),
	})

	return h.Err
}

// CountingOptimizer counts Step and ZeroGrad calls.
type CountingOptimizer struct {
	Steps int
	Zeros int
	Err   error
}

func (o *CountingOptimizer) Step() error {
	o.Steps++
	return o.Err
}

func (o *CountingOptimizer) ZeroGrad() { o.Zeros++ }

// CountingScheduler counts LR schedule steps.
type CountingScheduler struct {
	Steps int
}

func (s *CountingScheduler) Step() { s.Steps++ }

// ConstLoss returns a fixed loss map on every step.
func ConstLoss(values map[string]float64) core.LossFunc {
	return func(*core.Context) (map[string]float64, error) {
		out := make(map[string]float64, len(values))
		for k, v := range values {
			out[k] = v
		}

		return out, nil
	}
}

// RecordingBackward records the scale passed to every backward call.
type RecordingBackward struct {
	Scales []float64
	Err    error
}

// Func returns the core.BackwardFunc recording into the receiver.
func (b *RecordingBackward) Func() core.BackwardFunc {
	return func(_ *core.Context, scale float64) error {
		b.Scales = append(b.Scales, scale)
		return b.Err
	}
}

// StubModelState is a minimal core.ModelState for tests.
type StubModelState struct {
	Name        string
	BatchLoader core.Loader
	Grad        bool

	InitCalls  int
	MeterCalls []MeterCall
	InitErr    error
	UpdateErr  error
}

// MeterCall captures one UpdateMeter invocation.
type MeterCall struct {
	Loss    map[string]float64
	Metrics map[string]float64
}

func (s *StubModelState) Loader(*core.Context) core.Loader { return s.BatchLoader }

func (s *StubModelState) GradEnabled() bool { return s.Grad }

func (s *StubModelState) InitMeter(*core.Context) error {
	s.InitCalls++
	return s.InitErr
}

func (s *StubModelState) UpdateMeter(_ *core.Context, loss, metrics map[string]float64) error {
	s.MeterCalls = append(s.MeterCalls, MeterCall{Loss: loss, Metrics: metrics})
	return s.UpdateErr
}

func (s *StubModelState) String() string {
	if s.Name == "" {
		return "stub"
	}

	return s.Name
}

// PassthroughParser returns the raw batch as input with nil label and extra.
func PassthroughParser() core.DataParser {
	return func(ctx *core.Context) (any, any, any, error) {
		return ctx.Batch(), nil, nil, nil
	}
}

// IdentityForward returns the input unchanged.
func IdentityForward() core.ForwardFunc {
	return func(_ *core.Context, input any) (any, error) {
		return input, nil
	}
}
