package handler

import (
	"fmt"

	"github.com/hupe1980/trainmesh/core"
	"github.com/hupe1980/trainmesh/metric"
)

// Metric computes the step's named metric values. Pipelines without a metric
// function skip the stage.
type Metric struct {
	Base
}

// NewMetric creates the metric handler.
func NewMetric(opts ...Option) *Metric {
	return &Metric{Base: NewBase(opts...)}
}

func (h *Metric) Handle(ctx *core.Context) error {
	mf := ctx.MetricFunc()
	if mf == nil {
		return nil
	}

	values, err := mf(ctx)
	if err != nil {
		return fmt.Errorf("compute metrics: %w", err)
	}

	return ctx.Step.SetAttr(core.AttrMetricVals, values)
}

// GatherAverage all-gathers the step's loss and metric values across ranks
// and replaces them with the cross-rank mean, so meters and logs on every
// rank reflect the whole world. Outside distributed runs it is a no-op.
type GatherAverage struct {
	Base
}

// NewGatherAverage creates the cross-rank averaging handler.
func NewGatherAverage(opts ...Option) *GatherAverage {
	return &GatherAverage{Base: NewBase(opts...)}
}

func (h *GatherAverage) Handle(ctx *core.Context) error {
	comm := ctx.Comm()
	if comm == nil {
		return nil
	}

	if loss := ctx.LossValues(); loss != nil {
		gathered, err := comm.AllGatherObject(ctx.Context(), loss)
		if err != nil {
			return fmt.Errorf("all-gather loss values: %w", err)
		}

		if err := ctx.Step.SetAttr(core.AttrLossValues, averageGathered(gathered)); err != nil {
			return err
		}
	}

	if metrics := ctx.MetricValues(); metrics != nil {
		gathered, err := comm.AllGatherObject(ctx.Context(), metrics)
		if err != nil {
			return fmt.Errorf("all-gather metric values: %w", err)
		}

		if err := ctx.Step.SetAttr(core.AttrMetricVals, averageGathered(gathered)); err != nil {
			return err
		}
	}

	return nil
}

func averageGathered(gathered []any) map[string]float64 {
	maps := make([]map[string]float64, 0, len(gathered))

	for _, g := range gathered {
		if m, ok := g.(map[string]float64); ok {
			maps = append(maps, m)
		}
	}

	return metric.MeanOf(maps...)
}

// MeterInit resets the model state's epoch-level meters at the start of an
// epoch pass.
type MeterInit struct {
	Base
}

// NewMeterInit creates the meter reset handler.
func NewMeterInit(opts ...Option) *MeterInit {
	return &MeterInit{Base: NewBase(opts...)}
}

func (h *MeterInit) Handle(ctx *core.Context) error {
	if err := ctx.Check(false, "pipeline.model_state"); err != nil {
		return err
	}

	return ctx.ModelState().InitMeter(ctx)
}

// Meter folds the step's loss and metric values into the model state's
// epoch-level meters.
type Meter struct {
	Base
}

// NewMeter creates the meter update handler.
func NewMeter(opts ...Option) *Meter {
	return &Meter{Base: NewBase(opts...)}
}

func (h *Meter) Handle(ctx *core.Context) error {
	if err := ctx.Check(false, "pipeline.model_state"); err != nil {
		return err
	}

	return ctx.ModelState().UpdateMeter(ctx, ctx.LossValues(), ctx.MetricValues())
}

// LRSchedule advances the learning-rate scheduler, typically once per epoch.
// Pipelines without a scheduler skip the stage.
type LRSchedule struct {
	Base
}

// NewLRSchedule creates the LR scheduler handler.
func NewLRSchedule(opts ...Option) *LRSchedule {
	return &LRSchedule{Base: NewBase(opts...)}
}

func (h *LRSchedule) Handle(ctx *core.Context) error {
	if s := ctx.LRScheduler(); s != nil {
		s.Step()
	}

	return nil
}
