package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingObserver records every notification for a single attribute.
type recordingObserver struct {
	BaseObserver
	attr   string
	calls  []observation
	err    error
	onCall func()
}

type observation struct {
	newValue any
	oldValue any
}

func newRecordingObserver(attr string) *recordingObserver {
	return &recordingObserver{BaseObserver: NewBaseObserver(), attr: attr}
}

func (o *recordingObserver) Observations() map[string]ObserveFunc {
	return map[string]ObserveFunc{
		o.attr: func(newValue, oldValue any) error {
			o.calls = append(o.calls, observation{newValue: newValue, oldValue: oldValue})
			if o.onCall != nil {
				o.onCall()
			}
			return o.err
		},
	}
}

func TestAttach_InitNotificationUsesNothingAsOld(t *testing.T) {
	store := NewAttrs("test")
	require.NoError(t, store.SetAttr("lr", 0.1))

	obs := newRecordingObserver("lr")
	require.NoError(t, store.Attach(obs, true))

	require.Len(t, obs.calls, 1)
	assert.Equal(t, 0.1, obs.calls[0].newValue)
	assert.True(t, IsNothing(obs.calls[0].oldValue))
}

func TestAttach_DuplicateIsIdempotent(t *testing.T) {
	store := NewAttrs("test")

	obs := newRecordingObserver("lr")
	require.NoError(t, store.Attach(obs, false))
	require.NoError(t, store.Attach(obs, false))

	require.NoError(t, store.SetAttr("lr", 0.01))

	assert.Len(t, obs.calls, 1, "duplicate attach must not double-notify")
}

func TestSetAttr_EqualValueDoesNotNotify(t *testing.T) {
	store := NewAttrs("test")
	require.NoError(t, store.SetAttr("weights", map[string]float64{"w": 1}))

	obs := newRecordingObserver("weights")
	require.NoError(t, store.Attach(obs, false))

	// A rebuilt but deep-equal map must not retrigger.
	require.NoError(t, store.SetAttr("weights", map[string]float64{"w": 1}))
	assert.Empty(t, obs.calls)

	require.NoError(t, store.SetAttr("weights", map[string]float64{"w": 2}))
	assert.Len(t, obs.calls, 1)
}

func TestDelAttr_NotifiesWithNothing(t *testing.T) {
	store := NewAttrs("test")
	require.NoError(t, store.SetAttr("lr", 0.1))

	obs := newRecordingObserver("lr")
	require.NoError(t, store.Attach(obs, false))

	require.NoError(t, store.DelAttr("lr"))

	require.Len(t, obs.calls, 1)
	assert.True(t, IsNothing(obs.calls[0].newValue))
}

func TestDelAttr_ObserverErrorPropagates(t *testing.T) {
	store := NewAttrs("test")
	require.NoError(t, store.SetAttr("lr", 0.1))

	obs := newRecordingObserver("lr")
	obs.err = errors.New("rejected")
	require.NoError(t, store.Attach(obs, false))

	err := store.DelAttr("lr")
	require.Error(t, err)

	// The attribute is removed even when fan-out fails.
	assert.False(t, store.HasAttr("lr"))
}

func TestDetach_StopsNotifications(t *testing.T) {
	store := NewAttrs("test")

	obs := newRecordingObserver("lr")
	require.NoError(t, store.Attach(obs, false))

	store.Detach(obs)
	require.NoError(t, store.SetAttr("lr", 0.5))

	assert.Empty(t, obs.calls)
}

func TestDetach_DuringFanoutKeepsRemainingOrder(t *testing.T) {
	store := NewAttrs("test")

	first := newRecordingObserver("lr")
	second := newRecordingObserver("lr")
	third := newRecordingObserver("lr")

	// The first observer removes itself while a notification is in flight;
	// the later subscribers must still each be notified exactly once.
	first.onCall = func() { store.Detach(first) }

	require.NoError(t, store.Attach(first, false))
	require.NoError(t, store.Attach(second, false))
	require.NoError(t, store.Attach(third, false))

	require.NoError(t, store.SetAttr("lr", 0.5))

	assert.Len(t, first.calls, 1)
	assert.Len(t, second.calls, 1)
	assert.Len(t, third.calls, 1)

	// After the fan-out the detached observer stays silent.
	require.NoError(t, store.SetAttr("lr", 0.1))
	assert.Len(t, first.calls, 1)
	assert.Len(t, second.calls, 2)
	assert.Len(t, third.calls, 2)
}

func TestSetAttr_ObserverErrorPropagates(t *testing.T) {
	store := NewAttrs("test")

	obs := newRecordingObserver("lr")
	obs.err = errors.New("bad value")
	require.NoError(t, store.Attach(obs, false))

	require.Error(t, store.SetAttr("lr", 0.5))

	// The attribute is updated even when fan-out fails.
	assert.Equal(t, 0.5, store.GetAttr("lr"))
}
