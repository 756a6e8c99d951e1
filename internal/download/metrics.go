package download

import "github.com/prometheus/client_golang/prometheus"

var (
	downloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pocketlm",
			Subsystem: "download",
			Name:      "total",
			Help:      "Finished downloads by outcome",
		},
		[]string{"outcome"},
	)

	downloadedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pocketlm",
			Subsystem: "download",
			Name:      "bytes_total",
			Help:      "Bytes written to model artifacts",
		},
	)

	downloadsInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pocketlm",
			Subsystem: "download",
			Name:      "inflight",
			Help:      "Transfers currently in flight",
		},
	)
)

func init() {
	prometheus.MustRegister(downloadsTotal, downloadedBytes, downloadsInflight)
}

const (
	outcomeSuccess   = "success"
	outcomeError     = "error"
	outcomeCancelled = "cancelled"
	outcomeCached    = "cached"
)
