package thumbnail

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts derivation attempts. A nil *Metrics records nothing.
type Metrics struct {
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the derivation collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edits",
			Subsystem: "thumbnail",
			Name:      "derivations_total",
			Help:      "Thumbnail derivation attempts by outcome and failure reason.",
		}, []string{"outcome", "reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "edits",
			Subsystem: "thumbnail",
			Name:      "derivation_duration_seconds",
			Help:      "Wall-clock time of thumbnail derivation attempts.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.duration)
	}
	return m
}

func (m *Metrics) observe(r Result) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(string(r.Outcome), r.Reason()).Inc()
	m.duration.WithLabelValues(string(r.Outcome)).Observe(r.Duration.Seconds())
}
