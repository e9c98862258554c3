// Package metrics provides Prometheus metric collections for the
// overlay front-end services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerMetrics contains Prometheus metrics for the display
// scheduler's poll loop and display transitions.
type SchedulerMetrics struct {
	registry *prometheus.Registry

	pollsTotal       *prometheus.CounterVec
	pollDuration     *prometheus.HistogramVec
	transitionsTotal *prometheus.CounterVec
	queueDepth       *prometheus.GaugeVec
}

// NewSchedulerMetrics creates and registers new scheduler metrics
func NewSchedulerMetrics(registry *prometheus.Registry) (*SchedulerMetrics, error) {
	m := &SchedulerMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SchedulerMetrics) initMetrics() error {
	m.pollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_polls_total",
			Help: "Total number of status poll cycles",
		},
		[]string{"scheduler", "status"}, // status: success, error, stale
	)

	m.pollDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_poll_duration_seconds",
			Help:    "Time taken to fetch and apply a status snapshot",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"scheduler"},
	)

	m.transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_transitions_total",
			Help: "Total number of display state transitions",
		},
		[]string{"scheduler", "transition"},
	)

	m.queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_queue_depth",
			Help: "Number of detections waiting to be displayed",
		},
		[]string{"scheduler"},
	)

	return nil
}

// Describe implements the prometheus.Collector interface
func (m *SchedulerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.pollsTotal.Describe(ch)
	m.pollDuration.Describe(ch)
	m.transitionsTotal.Describe(ch)
	m.queueDepth.Describe(ch)
}

// Collect implements the prometheus.Collector interface
func (m *SchedulerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.pollsTotal.Collect(ch)
	m.pollDuration.Collect(ch)
	m.transitionsTotal.Collect(ch)
	m.queueDepth.Collect(ch)
}

// RecordPoll records the outcome of one poll cycle.
func (m *SchedulerMetrics) RecordPoll(scheduler, status string) {
	m.pollsTotal.WithLabelValues(scheduler, status).Inc()
}

// RecordPollDuration records how long one poll cycle took.
func (m *SchedulerMetrics) RecordPollDuration(scheduler string, seconds float64) {
	m.pollDuration.WithLabelValues(scheduler).Observe(seconds)
}

// RecordTransition records a display state transition.
func (m *SchedulerMetrics) RecordTransition(scheduler, transition string) {
	m.transitionsTotal.WithLabelValues(scheduler, transition).Inc()
}

// UpdateQueueDepth sets the current pending queue depth.
func (m *SchedulerMetrics) UpdateQueueDepth(scheduler string, depth int) {
	m.queueDepth.WithLabelValues(scheduler).Set(float64(depth))
}
