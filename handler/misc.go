package handler

import (
	"sort"
	"strconv"
	"strings"

	"github.com/hupe1980/trainmesh/core"
)

// Empty is a placeholder handler that does nothing. Useful as an anchor for
// InsertAfter when building trees programmatically.
type Empty struct {
	Base
}

// NewEmpty creates a no-op handler.
func NewEmpty(opts ...Option) *Empty {
	return &Empty{Base: NewBase(opts...)}
}

func (h *Empty) Handle(*core.Context) error { return nil }

// Func runs a sequence of plain functions against the context, letting user
// code hook into a tree without defining a handler type.
type Func struct {
	Base

	fns []core.HandleFunc
}

// NewFunc wraps the given functions as a handler. They run in order; the
// first error stops the sequence.
func NewFunc(fns []core.HandleFunc, opts ...Option) *Func {
	return &Func{
		Base: NewBase(opts...),
		fns:  fns,
	}
}

func (h *Func) Handle(ctx *core.Context) error {
	for _, fn := range h.fns {
		if err := fn(ctx); err != nil {
			return err
		}
	}

	return nil
}

// Logging reports the current epoch, step and accumulated loss/metric values
// through the context logger. It defaults to running on rank 0 only so
// distributed runs produce a single log stream.
type Logging struct {
	Base
}

// NewLogging creates the progress logging handler. The default rank gate is
// Ranks(0); pass WithExecRanks to override.
func NewLogging(opts ...Option) *Logging {
	opts = append([]Option{WithExecRanks(core.Ranks(0))}, opts...)

	return &Logging{Base: NewBase(opts...)}
}

func (h *Logging) Handle(ctx *core.Context) error {
	args := []any{
		"epoch", ctx.IterationCurrent() + 1,
	}

	if total := ctx.IterationTotal(); total > 0 {
		args = append(args, "totalEpochs", total)
	}

	if loss := ctx.LossValues(); len(loss) > 0 {
		args = append(args, "loss", formatValues(loss))
	}

	if metrics := ctx.MetricValues(); len(metrics) > 0 {
		args = append(args, "metrics", formatValues(metrics))
	}

	ctx.Logger.Info("Progress", args...)

	return nil
}

func formatValues(values map[string]float64) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	var sb strings.Builder

	for i, k := range keys {
		if i > 0 {
			sb.WriteString(" ")
		}

		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(strconv.FormatFloat(values[k], 'g', 6, 64))
	}

	return sb.String()
}

// RootContainer is the top of a handler tree. It binds the configured
// progress sink into the display scope for the duration of the run and
// unwinds it afterwards.
type RootContainer struct {
	*Container

	sink core.ProgressSink
}

// NewRoot creates the tree root. A nil sink falls back to the no-op sink.
func NewRoot(children []core.Handler, sink core.ProgressSink, opts ...Option) *RootContainer {
	if sink == nil {
		sink = core.NoopProgress
	}

	return &RootContainer{
		Container: NewContainer(children, opts...),
		sink:      sink,
	}
}

func (c *RootContainer) Handle(ctx *core.Context) error {
	defer core.Assign(ctx.Display, core.Values{
		core.AttrProgress: c.sink,
	}, core.WithScopeLogger(ctx.Logger)).Exit()

	return c.Traverse(ctx)
}
