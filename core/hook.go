package core

import "context"

// LaunchHook is the rank gating collaborator consulted for every handler
// dispatch. Implementations decide whether a handler's ExecRanks admit
// execution on the current process rank and, if so, invoke it (wrappers
// included) via Invoke.
type LaunchHook interface {
	// HandlerCall performs the gating decision and, when admitted, runs the
	// handler. Gated-out handlers are a silent no-op.
	HandlerCall(h Handler, ctx *Context) error
	// Rank returns the current process rank; ok is false outside a
	// distributed group (the absent state).
	Rank() (rank int, ok bool)
	// WorldSize returns the process group size; ok is false outside a
	// distributed group.
	WorldSize() (size int, ok bool)
	// IsDistributed reports whether a multi-process group is active.
	IsDistributed() bool
}

// Comm is the collective object-communication surface handlers use to
// synchronize values across ranks. The distributed package provides the
// implementation; the interface lives here so handlers need no transport
// dependency. All calls block until every participating rank arrives; a
// missing participant deadlocks, which is the transport's documented
// contract, not this layer's.
type Comm interface {
	Rank() int
	WorldSize() int
	// AllGatherObject returns every rank's object in rank order on every rank.
	AllGatherObject(ctx context.Context, obj any) ([]any, error)
	// GatherObject returns every rank's object in rank order on dst; other
	// ranks receive nil.
	GatherObject(ctx context.Context, obj any, dst int) ([]any, error)
	// BroadcastObject returns src's object on every rank. Only src's obj
	// argument is consulted.
	BroadcastObject(ctx context.Context, obj any, src int) (any, error)
	// ScatterObject distributes objs[i] (supplied on src) to rank i.
	ScatterObject(ctx context.Context, objs []any, src int) (any, error)
}
