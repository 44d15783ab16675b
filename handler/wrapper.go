package handler

import (
	"github.com/hupe1980/trainmesh/core"
)

// DebugWrapper logs entry and exit of the wrapped handler when the enabled
// switch reports true. Wire the switch to a config key to toggle handler
// tracing at runtime without rebuilding the tree.
type DebugWrapper struct {
	// Name identifies the wrapped handler in log output.
	Name string
	// Enabled gates the tracing. A nil func means always on.
	Enabled func() bool
}

// Wrap implements core.Wrapper.
func (w *DebugWrapper) Wrap(next core.HandleFunc) core.HandleFunc {
	return func(ctx *core.Context) error {
		if w.Enabled != nil && !w.Enabled() {
			return next(ctx)
		}

		ctx.Logger.Debug("Handler begins", "handler", w.Name)

		err := next(ctx)
		if err != nil {
			ctx.Logger.Debug("Handler failed", "handler", w.Name, "error", err)
		} else {
			ctx.Logger.Debug("Handler ends", "handler", w.Name)
		}

		return err
	}
}

// GradWrapper toggles gradient tracking around the wrapped handler according
// to the pipeline's model state. The iteration containers already apply the
// equivalent scope around whole passes; this wrapper covers custom trees that
// bypass them.
type GradWrapper struct{}

// Wrap implements core.Wrapper.
func (GradWrapper) Wrap(next core.HandleFunc) core.HandleFunc {
	return func(ctx *core.Context) error {
		enabled := false
		if state := ctx.ModelState(); state != nil {
			enabled = state.GradEnabled()
		}

		return withGradMode(ctx, enabled, func() error {
			return next(ctx)
		})
	}
}
