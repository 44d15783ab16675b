package pipeline

import (
	"github.com/hupe1980/trainmesh/core"
	"github.com/hupe1980/trainmesh/metric"
)

// State is the standard core.ModelState implementation: it names a pipeline
// mode, selects its data loader and gradient behavior, and owns per-epoch
// loss and metric meters.
type State struct {
	name   string
	loader core.Loader
	grad   bool

	lossMeters   *metric.MeterDict
	metricMeters *metric.MeterDict
}

// NewTrainState creates the training mode: gradients on.
func NewTrainState(loader core.Loader) *State {
	return newState("train", loader, true)
}

// NewEvalState creates the evaluation mode: gradients off.
func NewEvalState(loader core.Loader) *State {
	return newState("eval", loader, false)
}

// NewState creates a custom mode.
func NewState(name string, loader core.Loader, gradEnabled bool) *State {
	return newState(name, loader, gradEnabled)
}

func newState(name string, loader core.Loader, grad bool) *State {
	return &State{
		name:         name,
		loader:       loader,
		grad:         grad,
		lossMeters:   metric.NewMeterDict(),
		metricMeters: metric.NewMeterDict(),
	}
}

// Loader implements core.ModelState.
func (s *State) Loader(*core.Context) core.Loader { return s.loader }

// GradEnabled implements core.ModelState.
func (s *State) GradEnabled() bool { return s.grad }

// InitMeter implements core.ModelState.
func (s *State) InitMeter(*core.Context) error {
	s.lossMeters.Reset()
	s.metricMeters.Reset()

	return nil
}

// UpdateMeter implements core.ModelState.
func (s *State) UpdateMeter(_ *core.Context, lossValues, metrics map[string]float64) error {
	s.lossMeters.Update(lossValues)
	s.metricMeters.Update(metrics)

	return nil
}

// String implements core.ModelState.
func (s *State) String() string { return s.name }

// LossMean returns the epoch-level per-key loss averages.
func (s *State) LossMean() map[string]float64 { return s.lossMeters.Mean() }

// MetricMean returns the epoch-level per-key metric averages.
func (s *State) MetricMean() map[string]float64 { return s.metricMeters.Mean() }
