package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the application
type Registry struct {
	// Codec Metrics
	BlocksDecodedTotal      *prometheus.CounterVec
	MissingCodecBlocksTotal *prometheus.CounterVec

	// Pipeline Metrics
	PipelineFlushesTotal *prometheus.CounterVec
	PipelineFlushBytes   prometheus.Histogram

	// Operation Metrics
	OperationsTotal       *prometheus.CounterVec
	OperationDuration     *prometheus.HistogramVec
	EntriesProcessedTotal *prometheus.CounterVec

	// System Metrics
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge
	MemorySysBytes   prometheus.Gauge

	registry *prometheus.Registry
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initCodecMetrics()
	r.initPipelineMetrics()
	r.initOperationMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
