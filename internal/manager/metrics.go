package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	loadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pocketlm",
			Subsystem: "manager",
			Name:      "load_duration_seconds",
			Help:      "Time to create an inference task",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pocketlm",
			Subsystem: "manager",
			Name:      "generation_duration_seconds",
			Help:      "Time to generate one reply",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	busyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pocketlm",
			Subsystem: "manager",
			Name:      "busy_total",
			Help:      "Operations rejected because the handle was busy",
		},
		[]string{"op"},
	)

	loadedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pocketlm",
			Subsystem: "manager",
			Name:      "model_loaded",
			Help:      "1 while an inference task is held",
		},
	)
)

func init() {
	prometheus.MustRegister(loadDuration, generationDuration, busyTotal, loadedGauge)
}

func (m *Manager) busy(op string, st State) error {
	busyTotal.WithLabelValues(op).Inc()
	return busyError{op: op, state: st}
}
