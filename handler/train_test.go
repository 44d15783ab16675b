package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/trainmesh/core"
	"github.com/hupe1980/trainmesh/internal/testutil"
)

func TestAccumulationDivisor(t *testing.T) {
	cases := []struct {
		name    string
		total   int
		current int
		factor  int
		want    int
	}{
		{"full window", 10, 0, 3, 3},
		{"full window end", 10, 8, 3, 3},
		{"short trailing window", 10, 9, 3, 1},
		{"even split", 4, 3, 2, 2},
		{"trailing pair", 5, 3, 3, 2},
		{"trailing pair last", 5, 4, 3, 2},
		{"factor one", 5, 2, 1, 1},
		{"unknown total uses factor", 0, 7, 4, 4},
		{"factor clamped", 5, 0, 0, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, AccumulationDivisor(tc.total, tc.current, tc.factor))
		})
	}
}

func TestShouldUpdate(t *testing.T) {
	// total=10, factor=3: updates after steps 2, 5, 8 and the final step 9.
	var updates []int
	for i := 0; i < 10; i++ {
		if ShouldUpdate(10, i, 3) {
			updates = append(updates, i)
		}
	}

	assert.Equal(t, []int{2, 5, 8, 9}, updates)
}

func TestForward_StoresParsedAndOutput(t *testing.T) {
	h := NewForward()

	ctx := testutil.NewContextBuilder().
		Pipeline(core.AttrDataParser, testutil.PassthroughParser()).
		Pipeline(core.AttrForward, testutil.IdentityForward()).
		Step(core.AttrBatch, "batch-0").
		Build()

	require.NoError(t, h.Handle(ctx))

	assert.Equal(t, "batch-0", ctx.Step.GetAttr(core.AttrInput))
	assert.Equal(t, "batch-0", ctx.Step.GetAttr(core.AttrOutput))
	assert.Nil(t, ctx.Step.GetAttr(core.AttrLabel))
}

func TestForward_MissingCollaboratorsIsConfigError(t *testing.T) {
	h := NewForward()

	err := h.Handle(testutil.NewContextBuilder().Build())

	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ElementsMatch(t, []string{"pipeline.data_parser", "pipeline.forward"}, cfgErr.Paths)
}

func TestLoss_SetsValuesAndSkipsWithoutFunc(t *testing.T) {
	h := NewLoss()

	ctx := testutil.NewContextBuilder().Build()
	require.NoError(t, h.Handle(ctx))
	assert.False(t, ctx.Step.HasAttr(core.AttrLossValues))

	ctx = testutil.NewContextBuilder().
		Pipeline(core.AttrLossFunc, testutil.ConstLoss(map[string]float64{"mse": 0.5})).
		Build()
	require.NoError(t, h.Handle(ctx))
	assert.Equal(t, map[string]float64{"mse": 0.5}, ctx.LossValues())
}

func TestBackward_ScalesByDivisor(t *testing.T) {
	bw := &testutil.RecordingBackward{}
	h := NewBackward()

	// step 9 of 10 with factor 3 is the short trailing window of length 1.
	ctx := testutil.NewContextBuilder().
		Pipeline(core.AttrBackward, bw.Func()).
		GradAcc(3).
		Step(core.AttrLossValues, map[string]float64{"mse": 1}).
		Step(core.AttrCurrent, 9).
		Step(core.AttrTotal, 10).
		Build()

	require.NoError(t, h.Handle(ctx))
	require.Len(t, bw.Scales, 1)
	assert.InDelta(t, 1.0, bw.Scales[0], 1e-12)

	// A full window divides by the factor.
	ctx = testutil.NewContextBuilder().
		Pipeline(core.AttrBackward, bw.Func()).
		GradAcc(3).
		Step(core.AttrLossValues, map[string]float64{"mse": 1}).
		Step(core.AttrCurrent, 4).
		Step(core.AttrTotal, 10).
		Build()

	require.NoError(t, h.Handle(ctx))
	require.Len(t, bw.Scales, 2)
	assert.InDelta(t, 1.0/3.0, bw.Scales[1], 1e-12)
}

func TestBackward_SkipsWithoutLossValues(t *testing.T) {
	bw := &testutil.RecordingBackward{}
	h := NewBackward()

	ctx := testutil.NewContextBuilder().
		Pipeline(core.AttrBackward, bw.Func()).
		Build()

	require.NoError(t, h.Handle(ctx))
	assert.Empty(t, bw.Scales)
}

func TestOptimizerContainer_StepsAtBoundaries(t *testing.T) {
	opt := &testutil.CountingOptimizer{}
	c := NewOptimizer(nil)

	run := func(current, total, factor int) {
		ctx := testutil.NewContextBuilder().
			Pipeline(core.AttrOptimizer, opt).
			GradAcc(factor).
			Step(core.AttrCurrent, current).
			Step(core.AttrTotal, total).
			Build()

		require.NoError(t, c.Handle(ctx))
	}

	for i := 0; i < 10; i++ {
		run(i, 10, 3)
	}

	// Updates after steps 2, 5, 8 and the final step 9.
	assert.Equal(t, 4, opt.Steps)
	assert.Equal(t, 4, opt.Zeros)
}

func TestOptimizerContainer_TraversesChildrenFirst(t *testing.T) {
	opt := &testutil.CountingOptimizer{}
	rec := testutil.NewRecordingHandler("backward")

	c := NewOptimizer([]core.Handler{rec})

	ctx := testutil.NewContextBuilder().
		Pipeline(core.AttrOptimizer, opt).
		Step(core.AttrCurrent, 0).
		Step(core.AttrTotal, 1).
		Build()

	require.NoError(t, c.Handle(ctx))
	assert.Len(t, rec.Calls, 1)
	assert.Equal(t, 1, opt.Steps)
}
