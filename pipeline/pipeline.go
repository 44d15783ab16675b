// Package pipeline assembles handler trees for the standard training and
// evaluation flows and runs them against a configured context. It is the
// high-level entry point: construct a Pipeline with functional options, then
// call Train, TrainSteps or Eval.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hupe1980/trainmesh/checkpoint"
	"github.com/hupe1980/trainmesh/config"
	"github.com/hupe1980/trainmesh/core"
	"github.com/hupe1980/trainmesh/handler"
	"github.com/hupe1980/trainmesh/launch"
	"github.com/hupe1980/trainmesh/logging"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger logging.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithLaunch sets the launch hook. The default is the single-process Vanilla
// hook.
func WithLaunch(hook launch.Hook) Option {
	return func(p *Pipeline) { p.hook = hook }
}

// WithComm sets the collective communicator for distributed runs.
func WithComm(comm core.Comm) Option {
	return func(p *Pipeline) { p.comm = comm }
}

// WithProgress sets the progress sink bound at the tree root.
func WithProgress(sink core.ProgressSink) Option {
	return func(p *Pipeline) { p.progress = sink }
}

// WithConfig attaches a runtime configuration store. When present, the
// "debug.handlers" switch enables handler tracing.
func WithConfig(conf *config.Store) Option {
	return func(p *Pipeline) { p.conf = conf }
}

// WithRunID sets the run identifier used for checkpoints and log context.
func WithRunID(runID string) Option {
	return func(p *Pipeline) { p.runID = runID }
}

// WithTrainState sets the training mode state.
func WithTrainState(s core.ModelState) Option {
	return func(p *Pipeline) { p.trainState = s }
}

// WithEvalState sets the evaluation mode state. When present, BuildTrain
// appends an evaluation pass to every epoch.
func WithEvalState(s core.ModelState) Option {
	return func(p *Pipeline) { p.evalState = s }
}

// WithDataParser sets the batch parser.
func WithDataParser(fn core.DataParser) Option {
	return func(p *Pipeline) { p.parser = fn }
}

// WithForward sets the forward-pass collaborator.
func WithForward(fn core.ForwardFunc) Option {
	return func(p *Pipeline) { p.forward = fn }
}

// WithLoss sets the loss function.
func WithLoss(fn core.LossFunc) Option {
	return func(p *Pipeline) { p.loss = fn }
}

// WithBackward sets the backward-pass collaborator.
func WithBackward(fn core.BackwardFunc) Option {
	return func(p *Pipeline) { p.backward = fn }
}

// WithOptimizer sets the optimizer.
func WithOptimizer(opt core.Optimizer) Option {
	return func(p *Pipeline) { p.optimizer = opt }
}

// WithLRScheduler sets the learning-rate scheduler.
func WithLRScheduler(s core.LRScheduler) Option {
	return func(p *Pipeline) { p.scheduler = s }
}

// WithMetrics sets the metric function.
func WithMetrics(fn core.MetricFunc) Option {
	return func(p *Pipeline) { p.metrics = fn }
}

// WithGradToggle sets the gradient mode toggle.
func WithGradToggle(fn core.GradToggle) Option {
	return func(p *Pipeline) { p.gradToggle = fn }
}

// WithGradAcc sets the gradient-accumulation factor (default 1).
func WithGradAcc(n int) Option {
	return func(p *Pipeline) { p.gradAcc = n }
}

// WithStart sets the starting epoch or global step (default 0), used when
// resuming a run.
func WithStart(n int) Option {
	return func(p *Pipeline) { p.start = n }
}

// WithSnapshot sets the snapshot collaborator for checkpointing.
func WithSnapshot(fn core.SnapshotFunc) Option {
	return func(p *Pipeline) { p.snapshot = fn }
}

// WithCheckpoints enables checkpointing to store every n epochs.
func WithCheckpoints(store checkpoint.Store, every int) Option {
	return func(p *Pipeline) {
		p.ckpt = store
		p.ckptEvery = every
	}
}

// Pipeline bundles the collaborators of a training run and assembles the
// handler trees that execute it.
type Pipeline struct {
	logger   logging.Logger
	hook     launch.Hook
	comm     core.Comm
	progress core.ProgressSink
	conf     *config.Store
	runID    string

	trainState core.ModelState
	evalState  core.ModelState
	parser     core.DataParser
	forward    core.ForwardFunc
	loss       core.LossFunc
	backward   core.BackwardFunc
	optimizer  core.Optimizer
	scheduler  core.LRScheduler
	metrics    core.MetricFunc
	gradToggle core.GradToggle
	snapshot   core.SnapshotFunc
	gradAcc    int
	start      int

	ckpt      checkpoint.Store
	ckptEvery int
}

// New creates a pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		logger:  logging.Default(),
		hook:    launch.NewVanilla(),
		gradAcc: 1,
		runID:   uuid.New().String()[:8],
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.gradAcc < 1 {
		p.gradAcc = 1
	}

	return p
}

// RunID returns the pipeline's run identifier.
func (p *Pipeline) RunID() string { return p.runID }

// Train runs epoch-based training for the given number of epochs.
func (p *Pipeline) Train(ctx context.Context, epochs int) error {
	root, err := p.BuildTrain()
	if err != nil {
		return err
	}

	tctx := p.newContext(ctx)
	if err := tctx.Iteration.Update(map[string]any{
		core.AttrStart: p.start,
		core.AttrTotal: epochs,
	}); err != nil {
		return err
	}

	return p.run(tctx, root)
}

// TrainSteps runs flat global-step training for the given number of steps,
// cycling the training loader as needed.
func (p *Pipeline) TrainSteps(ctx context.Context, steps int) error {
	root, err := p.BuildTrainSteps()
	if err != nil {
		return err
	}

	tctx := p.newContext(ctx)
	if err := tctx.Iteration.Update(map[string]any{
		core.AttrStart: p.start,
		core.AttrTotal: steps,
	}); err != nil {
		return err
	}

	return p.run(tctx, root)
}

// Eval runs a single evaluation pass.
func (p *Pipeline) Eval(ctx context.Context) error {
	root, err := p.BuildEval()
	if err != nil {
		return err
	}

	return p.run(p.newContext(ctx), root)
}

// Run executes a custom handler tree against a pipeline-configured context.
func (p *Pipeline) Run(ctx context.Context, root *handler.RootContainer) error {
	if err := p.hook.AfterBuild(root); err != nil {
		return fmt.Errorf("post-process tree: %w", err)
	}

	return p.run(p.newContext(ctx), root)
}

func (p *Pipeline) run(tctx *core.Context, root *handler.RootContainer) error {
	return p.hook.HandlerCall(root, tctx)
}

// BuildTrain assembles the epoch-based training tree: per epoch, a training
// pass (forward, loss, backward, optimizer stepping at accumulation
// boundaries, metrics, meters), the LR schedule, an optional evaluation pass,
// and optional checkpointing. The launch hook's AfterBuild is applied before
// the tree is returned.
func (p *Pipeline) BuildTrain() (*handler.RootContainer, error) {
	if p.trainState == nil {
		return nil, fmt.Errorf("pipeline: no train state configured")
	}

	epochChildren := []core.Handler{
		p.stateSwitch(p.trainState, "train.state"),
		handler.NewMeterInit(handler.WithID("train.meter_init"), handler.WithLifecycle("train")),
		handler.NewIteration(p.trainStages(), handler.WithID("train.iteration"), handler.WithLifecycle("train")),
		handler.NewLRSchedule(handler.WithID("train.lr_schedule"), handler.WithLifecycle("train")),
		p.summary(p.trainState, "train.summary"),
	}

	if p.evalState != nil {
		epochChildren = append(epochChildren,
			p.stateSwitch(p.evalState, "eval.state"),
			handler.NewMeterInit(handler.WithID("eval.meter_init"), handler.WithLifecycle("eval")),
			handler.NewIteration(p.evalStages(), handler.WithID("eval.iteration"), handler.WithLifecycle("eval")),
			p.summary(p.evalState, "eval.summary"),
		)
	}

	if p.ckpt != nil {
		epochChildren = append(epochChildren,
			handler.NewCheckpoint(p.ckpt, p.runID, handler.WithEvery(p.ckptEvery)))
	}

	epoch := handler.NewEpochIteration(epochChildren, handler.WithID("epoch"))

	return p.finishTree(epoch)
}

// BuildTrainSteps assembles the flat global-step training tree.
func (p *Pipeline) BuildTrainSteps() (*handler.RootContainer, error) {
	if p.trainState == nil {
		return nil, fmt.Errorf("pipeline: no train state configured")
	}

	children := []core.Handler{
		p.stateSwitch(p.trainState, "train.state"),
		handler.NewMeterInit(handler.WithID("train.meter_init"), handler.WithLifecycle("train")),
		handler.NewStepIteration(p.trainStages(), handler.WithID("train.steps"), handler.WithLifecycle("train")),
		p.summary(p.trainState, "train.summary"),
	}

	return p.finishTree(children...)
}

// BuildEval assembles the standalone evaluation tree.
func (p *Pipeline) BuildEval() (*handler.RootContainer, error) {
	if p.evalState == nil {
		return nil, fmt.Errorf("pipeline: no eval state configured")
	}

	children := []core.Handler{
		p.stateSwitch(p.evalState, "eval.state"),
		handler.NewMeterInit(handler.WithID("eval.meter_init"), handler.WithLifecycle("eval")),
		handler.NewIteration(p.evalStages(), handler.WithID("eval.iteration"), handler.WithLifecycle("eval")),
		p.summary(p.evalState, "eval.summary"),
	}

	return p.finishTree(children...)
}

func (p *Pipeline) trainStages() []core.Handler {
	return []core.Handler{
		handler.NewOptimizer([]core.Handler{
			handler.NewForward(handler.WithID("train.forward")),
			handler.NewLoss(handler.WithID("train.loss")),
			handler.NewBackward(handler.WithID("train.backward")),
		}, handler.WithID("train.optimizer")),
		handler.NewMetric(handler.WithID("train.metric")),
		handler.NewMeter(handler.WithID("train.meter")),
	}
}

func (p *Pipeline) evalStages() []core.Handler {
	return []core.Handler{
		handler.NewForward(handler.WithID("eval.forward")),
		handler.NewLoss(handler.WithID("eval.loss")),
		handler.NewMetric(handler.WithID("eval.metric")),
		handler.NewMeter(handler.WithID("eval.meter")),
	}
}

func (p *Pipeline) finishTree(children ...core.Handler) (*handler.RootContainer, error) {
	root := handler.NewRoot(children, p.progress, handler.WithID("root"))

	if p.conf != nil {
		p.enableDebug(root)
	}

	if err := p.hook.AfterBuild(root); err != nil {
		return nil, fmt.Errorf("post-process tree: %w", err)
	}

	return root, nil
}

// stateSwitch returns a handler that makes s the active model state.
func (p *Pipeline) stateSwitch(s core.ModelState, id string) core.Handler {
	return handler.NewFunc([]core.HandleFunc{
		func(ctx *core.Context) error {
			return ctx.Pipeline.SetAttr(core.AttrModelState, s)
		},
	}, handler.WithID(id))
}

// summary returns a rank-0 handler logging the state's epoch-level meter
// averages.
func (p *Pipeline) summary(s core.ModelState, id string) core.Handler {
	return handler.NewFunc([]core.HandleFunc{
		func(ctx *core.Context) error {
			means, ok := s.(interface {
				LossMean() map[string]float64
				MetricMean() map[string]float64
			})
			if !ok {
				return nil
			}

			ctx.Logger.Info("Epoch summary",
				"state", s.String(),
				"epoch", ctx.IterationCurrent()+1,
				"loss", means.LossMean(),
				"metrics", means.MetricMean(),
			)

			return nil
		},
	}, handler.WithID(id), handler.WithExecRanks(core.Ranks(0)))
}

// enableDebug attaches a config-gated debug wrapper to every handler in the
// tree that does not already carry wrappers.
func (p *Pipeline) enableDebug(root *handler.RootContainer) {
	enabled := p.conf.BoolSwitch("debug.handlers")

	handler.Walk(root, func(h core.Handler) bool {
		if setter, ok := h.(interface{ SetWrappers(...core.Wrapper) }); ok && len(h.Wrappers()) == 0 {
			setter.SetWrappers(&handler.DebugWrapper{Name: h.ID(), Enabled: enabled})
		}

		return true
	})
}

// newContext builds the run context: collaborators into the pipeline scope,
// launch hook and communicator into the hook scope.
func (p *Pipeline) newContext(ctx context.Context) *core.Context {
	logger := p.logger

	if rank, ok := p.hook.Rank(); ok {
		if tl, isTL := logger.(*logging.TrainMeshLogger); isTL {
			logger = tl.WithRank(rank)
		}
	}

	tctx := core.NewContext(ctx, logger)

	if p.trainState != nil {
		tctx.Pipeline.SetAttr(core.AttrModelState, p.trainState)
	}
	if p.parser != nil {
		tctx.Pipeline.SetAttr(core.AttrDataParser, p.parser)
	}
	if p.forward != nil {
		tctx.Pipeline.SetAttr(core.AttrForward, p.forward)
	}
	if p.loss != nil {
		tctx.Pipeline.SetAttr(core.AttrLossFunc, p.loss)
	}
	if p.backward != nil {
		tctx.Pipeline.SetAttr(core.AttrBackward, p.backward)
	}
	if p.optimizer != nil {
		tctx.Pipeline.SetAttr(core.AttrOptimizer, p.optimizer)
	}
	if p.scheduler != nil {
		tctx.Pipeline.SetAttr(core.AttrLRScheduler, p.scheduler)
	}
	if p.metrics != nil {
		tctx.Pipeline.SetAttr(core.AttrMetrics, p.metrics)
	}
	if p.gradToggle != nil {
		tctx.Pipeline.SetAttr(core.AttrGradToggle, p.gradToggle)
	}
	if p.snapshot != nil {
		tctx.Pipeline.SetAttr(core.AttrSnapshot, p.snapshot)
	}

	tctx.Pipeline.SetAttr(core.AttrGradAcc, p.gradAcc)

	tctx.Hook.SetAttr(core.AttrLaunch, p.hook)

	if p.comm != nil {
		tctx.Hook.SetAttr(core.AttrComm, p.comm)
	}

	return tctx
}
