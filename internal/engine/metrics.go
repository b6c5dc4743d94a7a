package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics counts executions by operation and outcome. Exposition is the
// embedding application's concern; the engine only records.
type metrics struct {
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	saturation prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		executions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "papyr",
			Subsystem: "engine",
			Name:      "executions_total",
			Help:      "Script executions by operation and outcome.",
		}, []string{"operation", "status"}),
		saturation: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "papyr",
			Subsystem: "engine",
			Name:      "pool_saturation_total",
			Help:      "Executions refused because no runtime slot freed in time.",
		}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "papyr",
			Subsystem: "engine",
			Name:      "execution_duration_seconds",
			Help:      "Script execution wall time.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"operation"}),
	}
}

func (m *metrics) observe(op Operation, status Status, seconds float64) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(string(op), string(status)).Inc()
	m.duration.WithLabelValues(string(op)).Observe(seconds)
	if status == StatusEngineBusy {
		m.saturation.Inc()
	}
}
