// Package trainmesh provides a high-level façade over the handler-tree
// training engine: composite handler execution with per-handler rank gating,
// scoped context mutation with guaranteed rollback, and collective object
// communication across process ranks. Most applications interact with this
// package by:
//  1. Creating a TrainMesh via New() (optionally overriding the default
//     in-memory checkpoint store, logger and launch hook)
//  2. Configuring the pipeline collaborators (states, forward, loss,
//     backward, optimizer)
//  3. Running epoch-based (Train), step-based (TrainSteps) or evaluation
//     (Eval) flows
//
// The façade delegates execution to pipeline.Pipeline while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; distributed deployments supply a launch.Distributed hook backed by
// a collective transport.
package trainmesh

import (
	"context"

	"github.com/hupe1980/trainmesh/checkpoint"
	"github.com/hupe1980/trainmesh/config"
	"github.com/hupe1980/trainmesh/core"
	"github.com/hupe1980/trainmesh/launch"
	"github.com/hupe1980/trainmesh/logging"
	"github.com/hupe1980/trainmesh/pipeline"
)

// Options configures the TrainMesh instance.
type Options struct {
	// Launch selects the execution mode. Defaults to the single-process
	// Vanilla hook; distributed runs supply launch.NewDistributed.
	Launch launch.Hook

	// Comm is the collective communicator for distributed runs. Leave nil
	// for single-process execution.
	Comm core.Comm

	// CheckpointStore persists pipeline snapshots (defaults to in-memory).
	CheckpointStore checkpoint.Store
	// CheckpointEvery saves a snapshot every n epochs. 0 disables
	// checkpointing even when a store is present.
	CheckpointEvery int

	// Config is the runtime configuration store. Defaults to an empty store;
	// the "debug.handlers" key toggles handler tracing.
	Config *config.Store

	// Progress receives task progress updates. Defaults to none.
	Progress core.ProgressSink

	// Logger defaults to the NoOp logger if nil.
	Logger logging.Logger

	// Pipeline carries the per-run collaborator options (states, forward,
	// loss, optimizer, gradient accumulation).
	Pipeline []pipeline.Option
}

// TrainMesh is the high-level façade aggregating the pipeline and its
// supporting services.
type TrainMesh struct {
	opts Options
	pipe *pipeline.Pipeline
}

// New creates a TrainMesh instance with optional overrides. Any unset service
// is initialized with a safe default.
func New(optFns ...func(o *Options)) *TrainMesh {
	opts := Options{
		Launch:          launch.NewVanilla(),
		CheckpointStore: checkpoint.NewInMemoryStore(),
		Config:          config.New(),
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	popts := []pipeline.Option{
		pipeline.WithLogger(opts.Logger),
		pipeline.WithLaunch(opts.Launch),
		pipeline.WithConfig(opts.Config),
	}

	if opts.Comm != nil {
		popts = append(popts, pipeline.WithComm(opts.Comm))
	}

	if opts.Progress != nil {
		popts = append(popts, pipeline.WithProgress(opts.Progress))
	}

	if opts.CheckpointStore != nil && opts.CheckpointEvery > 0 {
		popts = append(popts, pipeline.WithCheckpoints(opts.CheckpointStore, opts.CheckpointEvery))
	}

	popts = append(popts, opts.Pipeline...)

	return &TrainMesh{
		opts: opts,
		pipe: pipeline.New(popts...),
	}
}

// Pipeline exposes the underlying pipeline for advanced use (custom trees via
// Pipeline.Run).
func (t *TrainMesh) Pipeline() *pipeline.Pipeline { return t.pipe }

// CheckpointStore returns the configured checkpoint store.
func (t *TrainMesh) CheckpointStore() checkpoint.Store { return t.opts.CheckpointStore }

// Train runs epoch-based training.
func (t *TrainMesh) Train(ctx context.Context, epochs int) error {
	return t.pipe.Train(ctx, epochs)
}

// TrainSteps runs flat global-step training.
func (t *TrainMesh) TrainSteps(ctx context.Context, steps int) error {
	return t.pipe.TrainSteps(ctx, steps)
}

// Eval runs a single evaluation pass.
func (t *TrainMesh) Eval(ctx context.Context) error {
	return t.pipe.Eval(ctx)
}
