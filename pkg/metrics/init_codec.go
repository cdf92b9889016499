package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initCodecMetrics() {
	r.BlocksDecodedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "hackdb_blocks_decoded_total",
			Help: "Data blocks read from disk, by the codec recorded in the block",
		},
		[]string{"codec"},
	)

	r.MissingCodecBlocksTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "hackdb_missing_codec_blocks_total",
			Help: "Data blocks written with a codec the handle was not configured to decode",
		},
		[]string{"codec"},
	)
}
