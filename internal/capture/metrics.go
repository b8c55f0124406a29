package capture

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gosuda/audittrail/internal/domain"
)

// Skip reasons reported on the skipped counter.
const (
	ReasonDisabled    = "disabled"
	ReasonScenario    = "scenario"
	ReasonEmptyUpdate = "empty_update"
	ReasonVetoed      = "vetoed"
)

// Metrics holds Prometheus metrics for change capture.
type Metrics struct {
	Entries         *prometheus.CounterVec
	Skipped         *prometheus.CounterVec
	PersistFailures *prometheus.CounterVec
	Duration        *prometheus.HistogramVec
}

// NewMetrics registers the capture metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Entries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audittrail_capture_entries_total",
			Help: "Total number of audit trail entries persisted",
		}, []string{"kind"}),
		Skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audittrail_capture_skipped_total",
			Help: "Total number of lifecycle events that produced no entry",
		}, []string{"kind", "reason"}),
		PersistFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audittrail_capture_persist_failures_total",
			Help: "Total number of audit trail entries that failed to persist",
		}, []string{"kind"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audittrail_capture_duration_seconds",
			Help:    "Time spent capturing and persisting one lifecycle event",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"kind"}),
	}
}

// IncEntries increments the persisted counter.
func (m *Metrics) IncEntries(kind domain.EntryKind) {
	m.Entries.WithLabelValues(string(kind)).Inc()
}

// IncSkipped increments the skipped counter.
func (m *Metrics) IncSkipped(kind domain.EntryKind, reason string) {
	m.Skipped.WithLabelValues(string(kind), reason).Inc()
}

// IncPersistFailures increments the persist failures counter.
func (m *Metrics) IncPersistFailures(kind domain.EntryKind) {
	m.PersistFailures.WithLabelValues(string(kind)).Inc()
}

// ObserveDuration records the capture time of one event.
func (m *Metrics) ObserveDuration(kind domain.EntryKind, seconds float64) {
	m.Duration.WithLabelValues(string(kind)).Observe(seconds)
}
