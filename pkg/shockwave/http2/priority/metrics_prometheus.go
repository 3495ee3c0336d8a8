//go:build prometheus

package priority

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the priority distributor, following the same
// promauto construction style as buffer_pool_prometheus.go.
var (
	retentionSizeGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "shockwave",
			Subsystem: "http2_priority",
			Name:      "retained_nodes",
			Help:      "Current number of state-only (priority-only) nodes retained.",
		},
	)

	distributeBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "shockwave",
			Subsystem: "http2_priority",
			Name:      "distributed_bytes_total",
			Help:      "Total bytes handed to writer.Write across all Distribute calls.",
		},
	)

	distributeCallsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "shockwave",
			Subsystem: "http2_priority",
			Name:      "distribute_calls_total",
			Help:      "Total number of Distribute invocations.",
		},
	)
)

// observeDistribute records one Distribute() call's outcome. Called
// from Distribute when built with the prometheus tag.
func (d *Distributor) observeDistribute(bytesSent int64) {
	distributeCallsTotal.Inc()
	distributeBytesTotal.Add(float64(bytesSent))
	retentionSizeGauge.Set(float64(d.retentionHeap.Len()))
}
