// Package metrics registers the Prometheus instruments this module exposes,
// grounded on leptonai-gpud's components/fd/metrics.go.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "gpu_checkpoint"

var (
	AllocationsDetected = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "detector",
		Name:      "allocations",
		Help:      "Number of GPU allocations detected for the last scanned process, by allocation type.",
	}, []string{"alloc_type"})

	BytesCheckpointed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checkpoint",
		Name:      "bytes_total",
		Help:      "Total payload bytes written across all checkpoint operations.",
	})

	BytesRestored = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "restore",
		Name:      "bytes_total",
		Help:      "Total payload bytes consumed across all restore operations, including degraded-mode discards.",
	})

	StrategySelections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "strategy",
		Name:      "selections_total",
		Help:      "Count of checkpoint strategy selections, by strategy.",
	}, []string{"strategy"})
)

func init() {
	prometheus.MustRegister(AllocationsDetected, BytesCheckpointed, BytesRestored, StrategySelections)
}
