package handler

import (
	"fmt"

	"github.com/hupe1980/trainmesh/checkpoint"
	"github.com/hupe1980/trainmesh/core"
)

// CheckpointOption configures the checkpoint handler.
type CheckpointOption func(*Checkpoint)

// WithEvery saves only every n-th epoch (1-based epoch count). The default
// saves after every epoch.
func WithEvery(n int) CheckpointOption {
	return func(h *Checkpoint) {
		h.every = n
	}
}

// WithHandlerOptions forwards common handler options.
func WithHandlerOptions(opts ...Option) CheckpointOption {
	return func(h *Checkpoint) {
		for _, opt := range opts {
			opt(&h.Base)
		}
	}
}

// Checkpoint snapshots the pipeline state through the pipeline's snapshot
// collaborator and persists it in a checkpoint store. It defaults to running
// on rank 0 only; in data-parallel training every rank holds the same state,
// so one copy suffices.
type Checkpoint struct {
	Base

	store checkpoint.Store
	runID string
	every int
}

// NewCheckpoint creates a checkpoint handler writing to store under runID.
func NewCheckpoint(store checkpoint.Store, runID string, opts ...CheckpointOption) *Checkpoint {
	h := &Checkpoint{
		Base:  NewBase(WithExecRanks(core.Ranks(0))),
		store: store,
		runID: runID,
		every: 1,
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.every < 1 {
		h.every = 1
	}

	return h
}

// Handle requires pipeline.snapshot. Epochs outside the save cadence are
// skipped.
func (h *Checkpoint) Handle(ctx *core.Context) error {
	if err := ctx.Check(false, "pipeline.snapshot"); err != nil {
		return err
	}

	epoch := ctx.IterationCurrent()
	if (epoch+1)%h.every != 0 {
		return nil
	}

	data, err := ctx.Snapshot()(ctx)
	if err != nil {
		return fmt.Errorf("snapshot pipeline: %w", err)
	}

	name := fmt.Sprintf("epoch-%04d", epoch+1)

	if err := h.store.Save(h.runID, name, data); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", name, err)
	}

	ctx.Logger.Info("Checkpoint saved", "runID", h.runID, "name", name)

	return nil
}
