package handler

import (
	"errors"
	"fmt"

	"github.com/hupe1980/trainmesh/core"
)

// ErrTraversalMutation is returned when a container's child list is modified
// while the container is traversing.
var ErrTraversalMutation = errors.New("handler: container mutated during traversal")

// Container is an ordered composite of handlers. Handle traverses the
// children in insertion order, dispatching each through the launch hook so
// rank gating applies uniformly at every level of the tree.
type Container struct {
	Base

	children   []core.Handler
	traversing bool
}

// NewContainer creates a container holding the given children in order.
func NewContainer(children []core.Handler, opts ...Option) *Container {
	c := &Container{
		Base: NewBase(opts...),
	}

	for _, child := range children {
		c.adopt(child)
		c.children = append(c.children, child)
	}

	return c
}

// Handle traverses the container's children.
func (c *Container) Handle(ctx *core.Context) error {
	return c.Traverse(ctx)
}

// Traverse dispatches each child in insertion order, stopping at the first
// error. The child list is locked against mutation for the duration.
func (c *Container) Traverse(ctx *core.Context) error {
	c.traversing = true
	defer func() { c.traversing = false }()

	for _, child := range c.children {
		if err := dispatch(ctx, child); err != nil {
			return err
		}
	}

	return nil
}

// Children returns a copy of the container's child list.
func (c *Container) Children() []core.Handler {
	out := make([]core.Handler, len(c.children))
	copy(out, c.children)

	return out
}

// Len returns the number of direct children.
func (c *Container) Len() int { return len(c.children) }

// Append adds handlers to the end of the child list.
func (c *Container) Append(hs ...core.Handler) error {
	if c.traversing {
		return ErrTraversalMutation
	}

	for _, h := range hs {
		c.adopt(h)
		c.children = append(c.children, h)
	}

	return nil
}

// Insert places handlers at index i, shifting later children right.
func (c *Container) Insert(i int, hs ...core.Handler) error {
	if c.traversing {
		return ErrTraversalMutation
	}

	if i < 0 || i > len(c.children) {
		return fmt.Errorf("handler: insert index %d out of range [0,%d]", i, len(c.children))
	}

	for _, h := range hs {
		c.adopt(h)
	}

	c.children = append(c.children[:i], append(append([]core.Handler{}, hs...), c.children[i:]...)...)

	return nil
}

// InsertAfter places handlers immediately after the given child.
func (c *Container) InsertAfter(target core.Handler, hs ...core.Handler) error {
	for i, child := range c.children {
		if child == target {
			return c.Insert(i+1, hs...)
		}
	}

	return fmt.Errorf("handler: handler %q is not a child of container %q", target.ID(), c.ID())
}

// Remove detaches the given child from the container.
func (c *Container) Remove(h core.Handler) error {
	if c.traversing {
		return ErrTraversalMutation
	}

	for i, child := range c.children {
		if child == h {
			c.children = append(c.children[:i], c.children[i+1:]...)

			if ps, ok := h.(parentSetter); ok {
				ps.detachParent()
			}

			return nil
		}
	}

	return fmt.Errorf("handler: handler %q is not a child of container %q", h.ID(), c.ID())
}

// FindByID searches the subtree rooted at this container for a handler with
// the given ID, returning nil if none matches.
func (c *Container) FindByID(id string) core.Handler {
	var found core.Handler

	Walk(c, func(h core.Handler) bool {
		if h.ID() == id {
			found = h
			return false
		}

		return true
	})

	return found
}

func (c *Container) adopt(h core.Handler) {
	if ps, ok := h.(parentSetter); ok {
		ps.setParent(c)
	}
}

// Walk visits h and its descendants in preorder, descending into any handler
// exposing a child list. Traversal stops when fn returns false.
func Walk(h core.Handler, fn func(core.Handler) bool) {
	walk(h, fn)
}

func walk(h core.Handler, fn func(core.Handler) bool) bool {
	if !fn(h) {
		return false
	}

	if parent, ok := h.(interface{ Children() []core.Handler }); ok {
		for _, child := range parent.Children() {
			if !walk(child, fn) {
				return false
			}
		}
	}

	return true
}

// dispatch routes a handler through the launch hook when one is configured,
// otherwise invokes it directly, honoring a "never" gating policy.
func dispatch(ctx *core.Context, h core.Handler) error {
	if hook := ctx.Launch(); hook != nil {
		return hook.HandlerCall(h, ctx)
	}

	if h.ExecRanks().Never() {
		return nil
	}

	return core.Invoke(h, ctx)
}
