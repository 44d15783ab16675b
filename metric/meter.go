// Package metric provides running meters for named scalar values. Handlers
// use a MeterDict to average loss values and metrics across steps and, in
// distributed runs, across ranks.
package metric

import (
	"math"
	"sort"
)

// Meter accumulates a single scalar series.
type Meter struct {
	Count int
	Sum   float64
	Min   float64
	Max   float64
}

// NewMeter returns an empty meter.
func NewMeter() *Meter {
	return &Meter{Min: math.Inf(1), Max: math.Inf(-1)}
}

// Add folds one observation into the meter.
func (m *Meter) Add(v float64) {
	m.Count++
	m.Sum += v
	if v < m.Min {
		m.Min = v
	}
	if v > m.Max {
		m.Max = v
	}
}

// Mean returns the running average, or 0 for an empty meter.
func (m *Meter) Mean() float64 {
	if m.Count == 0 {
		return 0
	}
	return m.Sum / float64(m.Count)
}

// Reset clears the meter.
func (m *Meter) Reset() {
	*m = *NewMeter()
}

// MeterDict keeps one Meter per key. Keys appear lazily as they are first
// observed, so ranks reporting disjoint metric sets still merge cleanly.
type MeterDict struct {
	meters map[string]*Meter
}

// NewMeterDict returns an empty meter dictionary.
func NewMeterDict() *MeterDict {
	return &MeterDict{meters: make(map[string]*Meter)}
}

// Update folds a map of named scalars into the dictionary. Nil maps are a
// no-op so callers can pass optional results straight through.
func (d *MeterDict) Update(values map[string]float64) {
	for k, v := range values {
		m, ok := d.meters[k]
		if !ok {
			m = NewMeter()
			d.meters[k] = m
		}
		m.Add(v)
	}
}

// Mean returns the per-key running averages.
func (d *MeterDict) Mean() map[string]float64 {
	out := make(map[string]float64, len(d.meters))
	for k, m := range d.meters {
		out[k] = m.Mean()
	}
	return out
}

// Sum returns the per-key running sums.
func (d *MeterDict) Sum() map[string]float64 {
	out := make(map[string]float64, len(d.meters))
	for k, m := range d.meters {
		out[k] = m.Sum
	}
	return out
}

// Keys returns the sorted observed keys.
func (d *MeterDict) Keys() []string {
	keys := make([]string, 0, len(d.meters))
	for k := range d.meters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reset clears every meter while keeping the dictionary allocated.
func (d *MeterDict) Reset() {
	for _, m := range d.meters {
		m.Reset()
	}
}

// MeanOf averages a list of named scalar maps key by key. It is the
// aggregation used after a cross-rank gather: each rank contributes one map
// and the result is the per-key mean over the ranks that reported the key.
func MeanOf(maps ...map[string]float64) map[string]float64 {
	d := NewMeterDict()
	for _, m := range maps {
		d.Update(m)
	}
	return d.Mean()
}
