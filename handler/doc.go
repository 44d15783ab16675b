// Package handler implements the composite handler tree: the Base node with
// identity, rank gating and wrapper support; the ordered Container composite;
// the iteration containers driving epoch, single-pass and global-step loops;
// and the leaf handlers of the training pipeline (forward, loss, backward,
// optimizer, metrics, meters, LR schedule, checkpointing, logging).
//
// Trees are built once before a run and treated as read-only during a
// traversal pass; structural mutation while a container is traversing is
// rejected. Handlers mutate the shared core.Context, using scoped assignment
// so per-epoch and per-step state unwinds automatically.
package handler
