package distributed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalGroup_SizeMustBePositive(t *testing.T) {
	_, err := NewLocalGroup(0)
	assert.Error(t, err)

	group, err := NewLocalGroup(1)
	require.NoError(t, err)
	assert.Equal(t, 1, group.Size())
}

func TestLocalTransport_AllGatherSharesAllBuffers(t *testing.T) {
	group, err := NewLocalGroup(2)
	require.NoError(t, err)

	var mu sync.Mutex
	results := make(map[int][][]byte)

	err = group.Run(context.Background(), func(ctx context.Context, tr Transport) error {
		got, err := tr.AllGather(ctx, []byte{byte(tr.Rank()), 0xff})
		if err != nil {
			return err
		}

		mu.Lock()
		results[tr.Rank()] = got
		mu.Unlock()

		return nil
	})
	require.NoError(t, err)

	for rank := 0; rank < 2; rank++ {
		got := results[rank]
		require.Len(t, got, 2)
		assert.Equal(t, []byte{0, 0xff}, got[0])
		assert.Equal(t, []byte{1, 0xff}, got[1])
	}
}

func TestLocalTransport_AllGatherRejectsUnequalLengths(t *testing.T) {
	group, err := NewLocalGroup(2)
	require.NoError(t, err)

	err = group.Run(context.Background(), func(ctx context.Context, tr Transport) error {
		send := make([]byte, 1+tr.Rank())
		_, err := tr.AllGather(ctx, send)
		return err
	})
	assert.ErrorContains(t, err, "length mismatch")
}

func TestLocalTransport_BroadcastClonesPayload(t *testing.T) {
	group, err := NewLocalGroup(3)
	require.NoError(t, err)

	var mu sync.Mutex
	results := make(map[int][]byte)

	err = group.Run(context.Background(), func(ctx context.Context, tr Transport) error {
		var send []byte
		if tr.Rank() == 0 {
			send = []byte("weights")
		}

		got, err := tr.Broadcast(ctx, send, 0)
		if err != nil {
			return err
		}

		// Mutating the received buffer must not leak into other ranks.
		if len(got) > 0 {
			got[0] = 'X'
		}

		mu.Lock()
		results[tr.Rank()] = got
		mu.Unlock()

		return nil
	})
	require.NoError(t, err)

	for rank := 0; rank < 3; rank++ {
		assert.Equal(t, []byte("Xeights"), results[rank])
	}
}

func TestLocalGroup_OrderingMismatchIsFatal(t *testing.T) {
	group, err := NewLocalGroup(2)
	require.NoError(t, err)

	err = group.Run(context.Background(), func(ctx context.Context, tr Transport) error {
		if tr.Rank() == 0 {
			_, err := tr.AllGather(ctx, []byte{0})
			return err
		}

		// Give rank 0 a head start so it opens the round first.
		time.Sleep(10 * time.Millisecond)

		_, err := tr.Broadcast(ctx, []byte{1}, 1)
		return err
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "ordering mismatch")
}

func TestLocalGroup_CancellationUnblocksWaiters(t *testing.T) {
	group, err := NewLocalGroup(2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- group.Run(ctx, func(ctx context.Context, tr Transport) error {
			if tr.Rank() == 1 {
				// Rank 1 never joins the collective.
				<-ctx.Done()
				return ctx.Err()
			}

			_, err := tr.AllGather(ctx, []byte{0})
			return err
		})
	}()

	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("group did not unblock after cancellation")
	}
}

func TestDeviceFor(t *testing.T) {
	assert.Equal(t, DeviceAccelerator, DeviceFor("nccl"))
	assert.Equal(t, DeviceHost, DeviceFor("gloo"))
	assert.Equal(t, DeviceHost, DeviceFor("local"))
	assert.Equal(t, DeviceHost, DeviceFor("unknown"))
}
