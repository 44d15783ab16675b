package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/trainmesh/config"
	"github.com/hupe1980/trainmesh/core"
	"github.com/hupe1980/trainmesh/distributed"
	"github.com/hupe1980/trainmesh/handler"
	"github.com/hupe1980/trainmesh/internal/testutil"
	"github.com/hupe1980/trainmesh/launch"
	"github.com/hupe1980/trainmesh/logging"
)

func TestPipeline_TrainEndToEnd(t *testing.T) {
	opt := &testutil.CountingOptimizer{}
	sched := &testutil.CountingScheduler{}
	bw := &testutil.RecordingBackward{}

	state := &testutil.StubModelState{
		Name:        "train",
		BatchLoader: core.NewSliceLoader(1.0, 2.0, 3.0, 4.0),
		Grad:        true,
	}

	p := New(
		WithLogger(logging.NoOpLogger{}),
		WithTrainState(state),
		WithDataParser(testutil.PassthroughParser()),
		WithForward(testutil.IdentityForward()),
		WithLoss(testutil.ConstLoss(map[string]float64{"mse": 1})),
		WithBackward(bw.Func()),
		WithOptimizer(opt),
		WithLRScheduler(sched),
		WithGradAcc(2),
	)

	require.NoError(t, p.Train(context.Background(), 2))

	// 2 epochs x 4 steps with accumulation factor 2: updates after steps 1
	// and 3 of each epoch.
	assert.Equal(t, 4, opt.Steps)
	assert.Equal(t, 4, opt.Zeros)

	// Every window is full, so every backward call is scaled by 1/2.
	require.Len(t, bw.Scales, 8)
	for _, scale := range bw.Scales {
		assert.InDelta(t, 0.5, scale, 1e-12)
	}

	// One LR step per epoch, one meter reset per epoch, one meter update per
	// step.
	assert.Equal(t, 2, sched.Steps)
	assert.Equal(t, 2, state.InitCalls)
	assert.Len(t, state.MeterCalls, 8)
}

func TestPipeline_TrainLeavesStepScopeClean(t *testing.T) {
	state := &testutil.StubModelState{
		BatchLoader: core.NewSliceLoader(1.0),
	}

	p := New(
		WithLogger(logging.NoOpLogger{}),
		WithTrainState(state),
		WithDataParser(testutil.PassthroughParser()),
		WithForward(testutil.IdentityForward()),
	)

	root, err := p.BuildTrain()
	require.NoError(t, err)

	tctx := p.newContext(context.Background())
	tctx.Iteration.Update(map[string]any{
		core.AttrStart: 0,
		core.AttrTotal: 2,
	})

	require.NoError(t, p.run(tctx, root))

	// The epoch counter persists for resumption; per-step state unwinds.
	assert.Equal(t, 1, tctx.IterationCurrent())
	assert.False(t, tctx.Step.HasAttr(core.AttrCurrent))
	assert.False(t, tctx.Step.HasAttr(core.AttrBatch))
}

func TestPipeline_TrainStepsResumesFromStart(t *testing.T) {
	bw := &testutil.RecordingBackward{}

	state := &testutil.StubModelState{
		BatchLoader: core.NewSliceLoader(1.0, 2.0),
		Grad:        true,
	}

	p := New(
		WithLogger(logging.NoOpLogger{}),
		WithTrainState(state),
		WithDataParser(testutil.PassthroughParser()),
		WithForward(testutil.IdentityForward()),
		WithLoss(testutil.ConstLoss(map[string]float64{"mse": 1})),
		WithBackward(bw.Func()),
		WithStart(3),
	)

	require.NoError(t, p.TrainSteps(context.Background(), 5))

	// Steps 3 and 4 only.
	assert.Len(t, bw.Scales, 2)
}

func TestPipeline_EvalRequiresEvalState(t *testing.T) {
	p := New(WithLogger(logging.NoOpLogger{}))
	assert.Error(t, p.Eval(context.Background()))
}

func TestPipeline_EvalPassSkipsOptimizer(t *testing.T) {
	opt := &testutil.CountingOptimizer{}

	state := &testutil.StubModelState{
		Name:        "eval",
		BatchLoader: core.NewSliceLoader(1.0, 2.0),
	}

	p := New(
		WithLogger(logging.NoOpLogger{}),
		WithEvalState(state),
		WithDataParser(testutil.PassthroughParser()),
		WithForward(testutil.IdentityForward()),
		WithLoss(testutil.ConstLoss(map[string]float64{"mse": 1})),
		WithOptimizer(opt),
	)

	require.NoError(t, p.Eval(context.Background()))

	assert.Zero(t, opt.Steps)
	assert.Equal(t, 1, state.InitCalls)
	assert.Len(t, state.MeterCalls, 2)
}

func TestPipeline_DebugWrappersAttachedWhenConfigured(t *testing.T) {
	conf := config.New()

	p := New(
		WithLogger(logging.NoOpLogger{}),
		WithTrainState(&testutil.StubModelState{}),
		WithConfig(conf),
	)

	root, err := p.BuildTrain()
	require.NoError(t, err)

	wrapped := 0
	handler.Walk(root, func(h core.Handler) bool {
		if len(h.Wrappers()) > 0 {
			wrapped++
		}

		return true
	})

	assert.Positive(t, wrapped)
}

func TestPipeline_DistributedTrainAveragesLossAcrossRanks(t *testing.T) {
	group, err := distributed.NewLocalGroup(2)
	require.NoError(t, err)

	var mu sync.Mutex
	states := make(map[int]*testutil.StubModelState)

	err = group.Run(context.Background(), func(ctx context.Context, tr distributed.Transport) error {
		comm := distributed.New(tr)
		rank := comm.Rank()

		state := &testutil.StubModelState{
			Name:        "train",
			BatchLoader: core.NewSliceLoader(1.0, 2.0),
			Grad:        true,
		}

		mu.Lock()
		states[rank] = state
		mu.Unlock()

		p := New(
			WithLogger(logging.NoOpLogger{}),
			WithLaunch(launch.NewDistributed(comm)),
			WithComm(comm),
			WithTrainState(state),
			WithDataParser(testutil.PassthroughParser()),
			WithForward(testutil.IdentityForward()),
			// Each rank reports its own rank as the loss.
			WithLoss(testutil.ConstLoss(map[string]float64{"loss": float64(rank)})),
		)

		return p.Train(ctx, 1)
	})
	require.NoError(t, err)

	// GatherAverage replaced every rank's loss with the cross-rank mean
	// before the meters consumed it.
	for rank := 0; rank < 2; rank++ {
		state := states[rank]
		require.Len(t, state.MeterCalls, 2, "rank %d", rank)

		for _, call := range state.MeterCalls {
			assert.InDelta(t, 0.5, call.Loss["loss"], 1e-12, "rank %d", rank)
		}
	}
}
