// Package launch provides the launch hooks: the single-process Vanilla hook
// that dispatches every handler directly, and the Distributed hook that
// applies per-handler rank gating against a collective communicator and
// rewrites built trees for cross-rank metric synchronization.
package launch

import (
	"github.com/hupe1980/trainmesh/core"
	"github.com/hupe1980/trainmesh/handler"
)

// Hook extends the core launch hook with tree post-processing applied by the
// pipeline after assembling a handler tree.
type Hook interface {
	core.LaunchHook

	// AfterBuild adjusts a freshly assembled tree before its first run.
	AfterBuild(root *handler.RootContainer) error
}

// Vanilla is the single-process launch hook. Every handler runs except those
// gated ExecNever; explicit rank sets are honored against an implicit rank 0.
type Vanilla struct{}

// NewVanilla creates the single-process hook.
func NewVanilla() *Vanilla { return &Vanilla{} }

// HandlerCall implements core.LaunchHook.
func (v *Vanilla) HandlerCall(h core.Handler, ctx *core.Context) error {
	gate := h.ExecRanks()
	if gate.Never() {
		return nil
	}

	if !gate.Always() && !gate.Contains(0) {
		return nil
	}

	return core.Invoke(h, ctx)
}

// Rank implements core.LaunchHook; single-process runs have no rank.
func (v *Vanilla) Rank() (int, bool) { return 0, false }

// WorldSize implements core.LaunchHook.
func (v *Vanilla) WorldSize() (int, bool) { return 0, false }

// IsDistributed implements core.LaunchHook.
func (v *Vanilla) IsDistributed() bool { return false }

// AfterBuild implements Hook; vanilla trees run as assembled.
func (v *Vanilla) AfterBuild(*handler.RootContainer) error { return nil }

// Distributed is the multi-process launch hook. The gating decision per
// handler:
//
//   - ExecAlways admits every rank
//   - ExecNever admits none
//   - Ranks(r...) admits exactly the listed ranks
//
// Gated-out handlers are silent no-ops; their subtrees do not run on the
// excluded ranks.
type Distributed struct {
	comm core.Comm
}

// NewDistributed creates a distributed hook backed by comm.
func NewDistributed(comm core.Comm) *Distributed {
	return &Distributed{comm: comm}
}

// HandlerCall implements core.LaunchHook.
func (d *Distributed) HandlerCall(h core.Handler, ctx *core.Context) error {
	if !h.ExecRanks().Admits(d.comm.Rank()) {
		return nil
	}

	return core.Invoke(h, ctx)
}

// Rank implements core.LaunchHook.
func (d *Distributed) Rank() (int, bool) { return d.comm.Rank(), true }

// WorldSize implements core.LaunchHook.
func (d *Distributed) WorldSize() (int, bool) { return d.comm.WorldSize(), true }

// IsDistributed implements core.LaunchHook.
func (d *Distributed) IsDistributed() bool { return true }

// Comm returns the hook's collective communicator.
func (d *Distributed) Comm() core.Comm { return d.comm }

// AfterBuild implements Hook: a GatherAverage handler is inserted after every
// Metric handler in the tree, so per-step metric and loss values are averaged
// across ranks before meters and logging consume them.
func (d *Distributed) AfterBuild(root *handler.RootContainer) error {
	var metrics []core.Handler

	handler.Walk(root, func(h core.Handler) bool {
		if _, ok := h.(*handler.Metric); ok {
			metrics = append(metrics, h)
		}

		return true
	})

	for _, m := range metrics {
		parent, ok := m.Parent().(interface {
			InsertAfter(core.Handler, ...core.Handler) error
		})
		if !ok {
			continue
		}

		if err := parent.InsertAfter(m, handler.NewGatherAverage()); err != nil {
			return err
		}
	}

	return nil
}
