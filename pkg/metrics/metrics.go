package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dd0wney/hackdb/pkg/compress"
)

// Status label values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

func statusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// RecordBlocksDecoded adds a counter snapshot to the per-codec block totals
func (r *Registry) RecordBlocksDecoded(counts map[compress.ID]uint64) {
	for id, n := range counts {
		r.BlocksDecodedTotal.WithLabelValues(compress.Builtin().Name(id)).Add(float64(n))
	}
}

// RecordMissingCodecs records blocks whose codec was not configured
func (r *Registry) RecordMissingCodecs(missing map[compress.ID]uint64) {
	for id, n := range missing {
		r.MissingCodecBlocksTotal.WithLabelValues(compress.Builtin().Name(id)).Add(float64(n))
	}
}

// RecordFlush records one pipeline batch commit
func (r *Registry) RecordFlush(bytes int, err error) {
	r.PipelineFlushesTotal.WithLabelValues(statusOf(err)).Inc()
	if err == nil {
		r.PipelineFlushBytes.Observe(float64(bytes))
	}
}

// RecordEntries counts entries handled by an operation
func (r *Registry) RecordEntries(operation string, n int) {
	r.EntriesProcessedTotal.WithLabelValues(operation).Add(float64(n))
}

// RecordOperation records a finished operation with its duration
func (r *Registry) RecordOperation(operation string, err error, duration time.Duration) {
	r.OperationsTotal.WithLabelValues(operation, statusOf(err)).Inc()
	r.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateSystemMetrics samples goroutine and memory gauges
func (r *Registry) UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
	r.MemoryAllocBytes.Set(float64(m.Alloc))
	r.MemorySysBytes.Set(float64(m.Sys))
}

// WriteTextfile writes every metric in the Prometheus text format, suitable
// for the node_exporter textfile collector. The file is replaced atomically.
func (r *Registry) WriteTextfile(path string) error {
	r.UpdateSystemMetrics()
	return prometheus.WriteToTextfile(path, r.registry)
}
