package handler

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/hupe1980/trainmesh/core"
	"github.com/hupe1980/trainmesh/logging"
)

// Option configures a handler's common fields.
type Option func(*Base)

// WithID sets an explicit handler ID instead of the generated one.
func WithID(id string) Option {
	return func(b *Base) {
		b.id = id
	}
}

// WithExecRanks sets the rank-gating policy for the handler.
func WithExecRanks(r core.ExecRanks) Option {
	return func(b *Base) {
		b.execRanks = r
	}
}

// WithWrappers sets the wrapper chain applied around the handler's Handle.
func WithWrappers(ws ...core.Wrapper) Option {
	return func(b *Base) {
		b.wrappers = ws
	}
}

// WithLifecycle tags the handler with a lifecycle label ("train", "eval", ...)
// used by launch hooks and tree post-processing.
func WithLifecycle(lifecycle string) Option {
	return func(b *Base) {
		b.lifecycle = lifecycle
	}
}

// Base carries the state shared by every handler: identity, rank gating,
// wrappers, lifecycle tag and the parent link maintained by containers.
// Concrete handlers embed Base and implement Handle.
type Base struct {
	id        string
	execRanks core.ExecRanks
	wrappers  []core.Wrapper
	lifecycle string
	parent    core.Handler
}

// NewBase creates handler base state with a generated ID, applying the given
// options.
func NewBase(opts ...Option) Base {
	b := Base{
		id: fmt.Sprintf("handler-%s", uuid.New().String()[:8]),
	}

	for _, opt := range opts {
		opt(&b)
	}

	return b
}

// ID returns the handler's unique identifier.
func (b *Base) ID() string { return b.id }

// ExecRanks returns the handler's rank-gating policy.
func (b *Base) ExecRanks() core.ExecRanks { return b.execRanks }

// SetExecRanks replaces the handler's rank-gating policy.
func (b *Base) SetExecRanks(r core.ExecRanks) { b.execRanks = r }

// Wrappers returns the wrapper chain applied around Handle.
func (b *Base) Wrappers() []core.Wrapper { return b.wrappers }

// SetWrappers replaces the wrapper chain. Legal before a run starts.
func (b *Base) SetWrappers(ws ...core.Wrapper) { b.wrappers = ws }

// Lifecycle returns the handler's lifecycle tag, empty if untagged.
func (b *Base) Lifecycle() string { return b.lifecycle }

// Parent returns the container holding this handler, nil for a root.
func (b *Base) Parent() core.Handler { return b.parent }

func (b *Base) setParent(p core.Handler) {
	if b.parent != nil && b.parent != p {
		logging.Default().Warn("Handler reattached to a new parent", "handlerID", b.id)
	}

	b.parent = p
}

func (b *Base) detachParent() {
	b.parent = nil
}

type parentSetter interface {
	setParent(core.Handler)
	detachParent()
}
