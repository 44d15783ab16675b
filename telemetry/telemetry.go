// Package telemetry exports training progress and collective-communication
// activity. It provides a logging progress sink for simple runs and a
// Prometheus-backed sink for scraped deployments, plus a collective observer
// feeding per-operation byte counters.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/trainmesh/core"
	"github.com/hupe1980/trainmesh/logging"
)

// LogSink reports progress through a structured logger.
type LogSink struct {
	logger logging.Logger
}

// NewLogSink creates a progress sink writing to logger. A nil logger falls
// back to the process default.
func NewLogSink(logger logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.Default()
	}

	return &LogSink{logger: logger}
}

// Begin implements core.ProgressSink.
func (s *LogSink) Begin(task string, total int) {
	s.logger.Info("Task begins", "task", task, "total", total)
}

// Update implements core.ProgressSink.
func (s *LogSink) Update(task string, current, total int) {
	s.logger.Debug("Task progress", "task", task, "current", current, "total", total)
}

// End implements core.ProgressSink.
func (s *LogSink) End(task string) {
	s.logger.Info("Task ends", "task", task)
}

// PromSink exports progress as Prometheus gauges labeled by task.
type PromSink struct {
	current *prometheus.GaugeVec
	total   *prometheus.GaugeVec
}

// NewPromSink creates a Prometheus progress sink and registers its collectors
// with reg, which defaults to the global default registerer when nil.
func NewPromSink(namespace string, reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	s := &PromSink{
		current: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "current",
			Help:      "Current position within the named task.",
		}, []string{"task"}),
		total: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "total",
			Help:      "Total units of the named task, 0 when unknown.",
		}, []string{"task"}),
	}

	for _, c := range []prometheus.Collector{s.current, s.total} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Begin implements core.ProgressSink.
func (s *PromSink) Begin(task string, total int) {
	s.current.WithLabelValues(task).Set(0)
	s.total.WithLabelValues(task).Set(float64(total))
}

// Update implements core.ProgressSink.
func (s *PromSink) Update(task string, current, total int) {
	s.current.WithLabelValues(task).Set(float64(current))
	s.total.WithLabelValues(task).Set(float64(total))
}

// End implements core.ProgressSink.
func (s *PromSink) End(task string) {
	s.current.DeleteLabelValues(task)
	s.total.DeleteLabelValues(task)
}

var _ core.ProgressSink = (*LogSink)(nil)
var _ core.ProgressSink = (*PromSink)(nil)

// CollectiveObserver counts collective operations and serialized payload
// bytes per operation, for use with distributed.WithObserver.
type CollectiveObserver struct {
	calls *prometheus.CounterVec
	bytes *prometheus.CounterVec
}

// NewCollectiveObserver creates and registers the collective counters.
func NewCollectiveObserver(namespace string, reg prometheus.Registerer) (*CollectiveObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &CollectiveObserver{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collective",
			Name:      "calls_total",
			Help:      "Collective operations issued by this rank.",
		}, []string{"op"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collective",
			Name:      "payload_bytes_total",
			Help:      "Serialized payload bytes sent into collectives by this rank.",
		}, []string{"op"}),
	}

	for _, c := range []prometheus.Collector{o.calls, o.bytes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// Observe records one collective call. Pass this method to
// distributed.WithObserver.
func (o *CollectiveObserver) Observe(op string, payloadBytes int) {
	o.calls.WithLabelValues(op).Inc()
	o.bytes.WithLabelValues(op).Add(float64(payloadBytes))
}
