package core

import (
	"fmt"
	"sort"
)

// HandleFunc is the executable signature shared by handlers and wrappers.
type HandleFunc func(ctx *Context) error

// Handler is the unit of executable pipeline work: a node that may be
// standalone or contain children (see the handler package for the composite
// Container). Handlers are built once before a run; Handle is invoked by the
// active launch hook after the rank gate admits it.
type Handler interface {
	// ID returns the handler's identifier. Implementations generate one when
	// none was configured, so IDs are always usable in diagnostics.
	ID() string
	// ExecRanks returns the rank gate for this handler.
	ExecRanks() ExecRanks
	// SetExecRanks replaces the rank gate. Legal before a run starts.
	SetExecRanks(ranks ExecRanks)
	// Wrappers returns the ordered cross-cutting behaviors applied around
	// Handle, outermost first.
	Wrappers() []Wrapper
	// Lifecycle returns the lifecycle tag ("train", "eval", "predict" or "").
	Lifecycle() string
	// Handle executes the handler's own logic against the shared context.
	Handle(ctx *Context) error
	// Parent returns the owning container, or nil for a detached handler.
	Parent() Handler
}

// Invoke runs a handler with its wrapper chain applied outer to inner. The
// rank gate must already have admitted the handler; launch hooks call Invoke
// after gating.
func Invoke(h Handler, ctx *Context) error {
	fn := h.Handle
	wrappers := h.Wrappers()
	for i := len(wrappers) - 1; i >= 0; i-- {
		fn = wrappers[i].Wrap(fn)
	}
	return fn(ctx)
}

// Wrapper is a cross-cutting behavior composed around a handler's Handle at
// tree-build time. Wrap receives the next stage of the chain and returns the
// decorated stage.
type Wrapper interface {
	Wrap(next HandleFunc) HandleFunc
}

// WrapperFunc adapts a plain function to the Wrapper interface.
type WrapperFunc func(next HandleFunc) HandleFunc

// Wrap implements Wrapper.
func (f WrapperFunc) Wrap(next HandleFunc) HandleFunc { return f(next) }

type execMode int

const (
	execModeAlways execMode = iota // zero value: run unconditionally
	execModeNever
	execModeRanks
)

// ExecRanks is the three-state rank gate attached to every handler:
//
//   - ExecAlways: run unconditionally (single-process mode, or handlers every
//     rank must execute)
//   - ExecNever: never run
//   - Ranks(r...): run iff the current process rank is in the set
//
// The three states are deliberately kept distinct; collapsing "always" into
// "unset" or "empty set" conflates unrelated conditions. The zero value is
// ExecAlways.
type ExecRanks struct {
	mode  execMode
	ranks map[int]struct{}
}

// ExecAlways gates nothing: the handler runs on every rank.
var ExecAlways = ExecRanks{mode: execModeAlways}

// ExecNever suppresses execution on every rank.
var ExecNever = ExecRanks{mode: execModeNever}

// Ranks builds an explicit rank set gate. Ranks() with no arguments is an
// empty explicit set, which admits no rank but is still distinct from
// ExecNever in intent.
func Ranks(ranks ...int) ExecRanks {
	set := make(map[int]struct{}, len(ranks))
	for _, r := range ranks {
		set[r] = struct{}{}
	}
	return ExecRanks{mode: execModeRanks, ranks: set}
}

// Always reports whether the gate admits every rank unconditionally.
func (e ExecRanks) Always() bool { return e.mode == execModeAlways }

// Never reports whether the gate admits no rank.
func (e ExecRanks) Never() bool { return e.mode == execModeNever }

// Contains reports whether an explicit rank set admits rank. It returns false
// for the Always and Never states; callers check those first.
func (e ExecRanks) Contains(rank int) bool {
	if e.mode != execModeRanks {
		return false
	}
	_, ok := e.ranks[rank]
	return ok
}

// Admits is the full gating decision for a known current rank.
func (e ExecRanks) Admits(rank int) bool {
	switch e.mode {
	case execModeAlways:
		return true
	case execModeNever:
		return false
	default:
		return e.Contains(rank)
	}
}

// String returns a diagnostic representation of the gate.
func (e ExecRanks) String() string {
	switch e.mode {
	case execModeAlways:
		return "always"
	case execModeNever:
		return "never"
	default:
		ranks := make([]int, 0, len(e.ranks))
		for r := range e.ranks {
			ranks = append(ranks, r)
		}
		sort.Ints(ranks)
		return fmt.Sprintf("ranks%v", ranks)
	}
}
