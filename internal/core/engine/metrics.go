package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks request outcomes, retries and processing latency.
type Metrics struct {
	requests *prometheus.CounterVec
	retries  prometheus.Counter
	duration *prometheus.HistogramVec
}

// NewMetrics builds the engine metric set and registers it when a registerer
// is given.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tokend",
			Subsystem: "engine",
			Name:      "requests_total",
			Help:      "Requests processed to a terminal state, by variant and outcome.",
		}, []string{"variant", "outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tokend",
			Subsystem: "engine",
			Name:      "retries_total",
			Help:      "Transient-fault re-entries of the transaction handler.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tokend",
			Subsystem: "engine",
			Name:      "request_duration_seconds",
			Help:      "Wall time from delivery to terminal state.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"variant"}),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.retries, m.duration)
	}

	return m
}

func (m *Metrics) observe(variant Variant, outcome string, elapsed time.Duration) {
	m.requests.WithLabelValues(variant.String(), outcome).Inc()
	m.duration.WithLabelValues(variant.String()).Observe(elapsed.Seconds())
}
