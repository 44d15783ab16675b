package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeter_RunningStats(t *testing.T) {
	m := NewMeter()
	assert.Zero(t, m.Mean())

	m.Add(1)
	m.Add(3)
	m.Add(2)

	assert.Equal(t, 3, m.Count)
	assert.InDelta(t, 2.0, m.Mean(), 1e-12)
	assert.Equal(t, 1.0, m.Min)
	assert.Equal(t, 3.0, m.Max)

	m.Reset()
	assert.Zero(t, m.Count)
	assert.Zero(t, m.Mean())
}

func TestMeterDict_LazyKeysAndMean(t *testing.T) {
	d := NewMeterDict()

	d.Update(map[string]float64{"loss": 2})
	d.Update(map[string]float64{"loss": 4, "acc": 0.5})
	d.Update(nil)

	assert.Equal(t, []string{"acc", "loss"}, d.Keys())

	mean := d.Mean()
	assert.InDelta(t, 3.0, mean["loss"], 1e-12)
	assert.InDelta(t, 0.5, mean["acc"], 1e-12)

	sum := d.Sum()
	assert.InDelta(t, 6.0, sum["loss"], 1e-12)
}

func TestMeanOf_AveragesAcrossReporters(t *testing.T) {
	got := MeanOf(
		map[string]float64{"loss": 1},
		map[string]float64{"loss": 3},
		map[string]float64{"loss": 2, "acc": 0.8},
	)

	assert.InDelta(t, 2.0, got["loss"], 1e-12)
	// Keys reported by a subset average over the ranks that reported them.
	assert.InDelta(t, 0.8, got["acc"], 1e-12)

	assert.Empty(t, MeanOf())
}
