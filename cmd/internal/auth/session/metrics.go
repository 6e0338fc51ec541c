package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors for the session service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	refresh  *prometheus.CounterVec
	revoked  *prometheus.CounterVec
	issued   prometheus.Counter
	duration prometheus.Histogram
}

// NewMetrics builds the collectors and registers them with reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiond",
			Name:      "refresh_total",
			Help:      "Refresh attempts by outcome.",
		}, []string{"outcome"}),
		revoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiond",
			Name:      "sessions_revoked_total",
			Help:      "Sessions revoked, by reason.",
		}, []string{"reason"}),
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessiond",
			Name:      "sessions_issued_total",
			Help:      "Sessions created at login.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sessiond",
			Name:      "refresh_duration_seconds",
			Help:      "Refresh latency including row lock wait.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.refresh, m.revoked, m.issued, m.duration)
	}
	return m
}

func (m *Metrics) observeRefresh(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.refresh.WithLabelValues(outcome).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) addRevoked(reason RevokeReason, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.revoked.WithLabelValues(string(reason)).Add(float64(n))
}

func (m *Metrics) incIssued() {
	if m == nil {
		return
	}
	m.issued.Inc()
}
