// Package metrics exposes engine measurements through Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"torrens/internal/domain"
	"torrens/internal/usecase"
)

// Recorder implements usecase.MetricsRecorder on Prometheus collectors.
type Recorder struct {
	transitions        *prometheus.CounterVec
	transitionDuration *prometheus.HistogramVec
	auditAppends       *prometheus.CounterVec
	orphanedAppends    prometheus.Counter
	integrityChecks    *prometheus.CounterVec
	archivedEntries    prometheus.Counter
}

var _ usecase.MetricsRecorder = (*Recorder)(nil)

// NewRecorder registers the engine collectors with reg. Pass
// prometheus.DefaultRegisterer outside of tests.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Recorder{
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "torrens",
				Name:      "transitions_total",
				Help:      "Workflow transition attempts by domain and result.",
			},
			[]string{"domain", "result"},
		),
		transitionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "torrens",
				Name:      "transition_duration_seconds",
				Help:      "End-to-end transition latency including the audit append.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"domain"},
		),
		auditAppends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "torrens",
				Name:      "audit_appends_total",
				Help:      "Audit ledger appends by result.",
			},
			[]string{"result"},
		),
		orphanedAppends: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "torrens",
				Name:      "audit_append_orphans_total",
				Help:      "Committed transitions whose audit append failed.",
			},
		),
		integrityChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "torrens",
				Name:      "integrity_checks_total",
				Help:      "Chain verifications by result.",
			},
			[]string{"result"},
		),
		archivedEntries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "torrens",
				Name:      "archived_entries_total",
				Help:      "Audit entries flagged by retention sweeps.",
			},
		),
	}
}

func (r *Recorder) ObserveTransition(dom domain.WorkflowDomain, result string, elapsed time.Duration) {
	r.transitions.WithLabelValues(string(dom), result).Inc()
	r.transitionDuration.WithLabelValues(string(dom)).Observe(elapsed.Seconds())
}

func (r *Recorder) CountAuditAppend(result string) {
	r.auditAppends.WithLabelValues(result).Inc()
}

func (r *Recorder) CountOrphanedAppend() {
	r.orphanedAppends.Inc()
}

func (r *Recorder) ObserveIntegrityCheck(result string) {
	r.integrityChecks.WithLabelValues(result).Inc()
}

func (r *Recorder) CountArchived(n int64) {
	if n <= 0 {
		return
	}
	r.archivedEntries.Add(float64(n))
}
