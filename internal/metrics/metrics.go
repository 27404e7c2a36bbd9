// Package metrics holds the Prometheus collectors for one bridge instance.
// Every method is safe to call on a nil *Metrics so components can run
// without instrumentation in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels.
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Metrics groups the bridge collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	queueDepth    prometheus.Gauge
	queueTasks    *prometheus.CounterVec
	notifyCalls   *prometheus.CounterVec
	sweepRows     *prometheus.CounterVec
	sweepDuration prometheus.Histogram
}

// New creates and registers the collectors for the given instance.
func New(instanceID string) *Metrics {
	labels := prometheus.Labels{"instance": instanceID}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "wpp_queue_depth",
			Help:        "Tasks waiting in the event queue.",
			ConstLabels: labels,
		}),
		queueTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "wpp_queue_tasks_total",
			Help:        "Event queue tasks executed, by kind and result.",
			ConstLabels: labels,
		}, []string{"kind", "result"}),
		notifyCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "wpp_notify_calls_total",
			Help:        "Remote backend calls, by operation and result.",
			ConstLabels: labels,
		}, []string{"op", "result"}),
		sweepRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "wpp_sweep_rows_total",
			Help:        "Rows handled by the reconciliation sweep, by action and result.",
			ConstLabels: labels,
		}, []string{"action", "result"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "wpp_sweep_duration_seconds",
			Help:        "Duration of reconciliation sweeps.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(
		m.queueDepth,
		m.queueTasks,
		m.notifyCalls,
		m.sweepRows,
		m.sweepDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) TaskDone(kind, result string) {
	if m == nil {
		return
	}
	m.queueTasks.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) NotifyDone(op string, ok bool) {
	if m == nil {
		return
	}
	m.notifyCalls.WithLabelValues(op, resultOf(ok)).Inc()
}

func (m *Metrics) SweepRow(action, result string) {
	if m == nil {
		return
	}
	m.sweepRows.WithLabelValues(action, result).Inc()
}

func (m *Metrics) ObserveSweep(seconds float64) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(seconds)
}

func resultOf(ok bool) string {
	if ok {
		return ResultOK
	}
	return ResultFailed
}
