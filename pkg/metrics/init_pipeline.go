package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initPipelineMetrics() {
	r.PipelineFlushesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "hackdb_pipeline_flushes_total",
			Help: "Write batches committed by the buffered write pipeline",
		},
		[]string{"status"},
	)

	r.PipelineFlushBytes = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hackdb_pipeline_flush_bytes",
			Help:    "Approximate size of each committed write batch",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1 KiB .. 256 MiB
		},
	)
}
