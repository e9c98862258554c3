package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains Prometheus metrics for requests made to the
// external detection pipeline server.
type PipelineMetrics struct {
	registry *prometheus.Registry

	requestsTotal *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
}

// NewPipelineMetrics creates and registers new pipeline client metrics
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() error {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_requests_total",
			Help: "Total number of HTTP requests to the pipeline server",
		},
		[]string{"endpoint", "status_code"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_request_errors_total",
			Help: "Total number of failed HTTP requests to the pipeline server",
		},
		[]string{"endpoint"},
	)

	return nil
}

// Describe implements the prometheus.Collector interface
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.requestsTotal.Describe(ch)
	m.errorsTotal.Describe(ch)
}

// Collect implements the prometheus.Collector interface
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.requestsTotal.Collect(ch)
	m.errorsTotal.Collect(ch)
}

// RecordRequest records a completed request by endpoint and status code.
func (m *PipelineMetrics) RecordRequest(endpoint string, statusCode int) {
	m.requestsTotal.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
}

// RecordError records a request that failed before receiving a response.
func (m *PipelineMetrics) RecordError(endpoint string) {
	m.errorsTotal.WithLabelValues(endpoint).Inc()
}
