package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing, so tests can pass nil.
type Metrics struct {
	AmendmentsProposed  prometheus.Counter
	AmendmentsResolved  *prometheus.CounterVec
	SubmissionAdvances  *prometheus.CounterVec
	RollupDuration      prometheus.Histogram
	ConsistencyFindings prometheus.Counter
}

// New registers all collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AmendmentsProposed: factory.NewCounter(prometheus.CounterOpts{
			Name: "amendments_proposed_total",
			Help: "Amendments created through the propose operation.",
		}),
		AmendmentsResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "amendments_resolved_total",
			Help: "Amendments resolved, labeled by action.",
		}, []string{"action"}),
		SubmissionAdvances: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "submission_advances_total",
			Help: "Submission gate advances, labeled by hierarchy level.",
		}, []string{"level"}),
		RollupDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rollup_duration_seconds",
			Help:    "Time spent computing a rollup.",
			Buckets: prometheus.DefBuckets,
		}),
		ConsistencyFindings: factory.NewCounter(prometheus.CounterOpts{
			Name: "consistency_findings_total",
			Help: "Data anomalies surfaced by the rollup engine.",
		}),
	}
}

// IncProposed is nil-safe.
func (m *Metrics) IncProposed() {
	if m != nil {
		m.AmendmentsProposed.Inc()
	}
}

// IncResolved is nil-safe.
func (m *Metrics) IncResolved(action string) {
	if m != nil {
		m.AmendmentsResolved.WithLabelValues(action).Inc()
	}
}

// IncAdvance is nil-safe.
func (m *Metrics) IncAdvance(level string) {
	if m != nil {
		m.SubmissionAdvances.WithLabelValues(level).Inc()
	}
}

// ObserveRollup is nil-safe.
func (m *Metrics) ObserveRollup(seconds float64) {
	if m != nil {
		m.RollupDuration.Observe(seconds)
	}
}

// IncConsistency is nil-safe.
func (m *Metrics) IncConsistency(n int) {
	if m != nil && n > 0 {
		m.ConsistencyFindings.Add(float64(n))
	}
}
