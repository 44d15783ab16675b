package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/trainmesh/checkpoint"
	"github.com/hupe1980/trainmesh/core"
	"github.com/hupe1980/trainmesh/internal/testutil"
)

func TestCheckpoint_SavesOnCadence(t *testing.T) {
	store := checkpoint.NewInMemoryStore()

	snap := core.SnapshotFunc(func(ctx *core.Context) ([]byte, error) {
		return []byte{byte(ctx.IterationCurrent())}, nil
	})

	h := NewCheckpoint(store, "run-1", WithEvery(2))

	for epoch := 0; epoch < 5; epoch++ {
		ctx := testutil.NewContextBuilder().
			Pipeline(core.AttrSnapshot, snap).
			Iteration(core.AttrCurrent, epoch).
			Build()

		require.NoError(t, h.Handle(ctx))
	}

	names, err := store.List("run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"epoch-0002", "epoch-0004"}, names)

	saved, err := store.Get("run-1", "epoch-0002")
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, saved.Data)
}

func TestCheckpoint_DefaultsToRankZero(t *testing.T) {
	h := NewCheckpoint(checkpoint.NewInMemoryStore(), "run-1")
	assert.True(t, h.ExecRanks().Contains(0))
	assert.False(t, h.ExecRanks().Contains(1))
}

func TestCheckpoint_MissingSnapshotIsConfigError(t *testing.T) {
	h := NewCheckpoint(checkpoint.NewInMemoryStore(), "run-1")

	err := h.Handle(testutil.NewContextBuilder().Build())

	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Paths, "pipeline.snapshot")
}
