package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "authgate"

// Session lookup results
const (
	LookupSession   = "session"
	LookupNone      = "none"
	LookupRefreshed = "refreshed"
	LookupError     = "error"
)

// Metrics collects gate metrics. A nil *Metrics records nothing.
type Metrics struct {
	decisions      *prometheus.CounterVec
	lookups        *prometheus.CounterVec
	lookupDuration prometheus.Histogram
	upstreamErrors prometheus.Counter
}

// NewMetrics registers the gate metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Total number of gate decisions by path class and outcome",
		}, []string{"class", "decision"}),

		lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_lookups_total",
			Help:      "Total number of session lookups by result",
		}, []string{"result"}),

		lookupDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_lookup_duration_seconds",
			Help:      "Session lookup duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),

		upstreamErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Total number of failed upstream proxy requests",
		}),
	}
}

// RecordDecision counts one gate decision
func (m *Metrics) RecordDecision(class, decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(class, decision).Inc()
}

// RecordLookup counts one session lookup and observes its duration
func (m *Metrics) RecordLookup(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(result).Inc()
	m.lookupDuration.Observe(d.Seconds())
}

// RecordUpstreamError counts one failed proxy request
func (m *Metrics) RecordUpstreamError() {
	if m == nil {
		return
	}
	m.upstreamErrors.Inc()
}
