package metrics

import (
	"errors"
	"time"

	"erp-approval-middleware/internal/adapter/erp"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the approval pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Decisions created by detect, by verdict
	DecisionsCreated *prometheus.CounterVec

	// State transitions by from/to
	Transitions *prometheus.CounterVec

	// Scheduler tick duration
	TickDuration prometheus.Histogram

	// Commit outcomes: committed, retry, failed, skipped
	CommitOutcomes *prometheus.CounterVec

	// ERP call latency by adapter and operation, plus errors by kind
	ERPLatency *prometheus.HistogramVec
	ERPErrors  *prometheus.CounterVec
}

// New registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DecisionsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "erp_approval_decisions_created_total",
			Help: "Decisions created by detect, by verdict",
		}, []string{"verdict"}),

		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "erp_approval_transitions_total",
			Help: "Decision state transitions",
		}, []string{"from", "to"}),

		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "erp_approval_scheduler_tick_duration_seconds",
			Help:    "Duration of one commit scheduler tick",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		CommitOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "erp_approval_commit_outcomes_total",
			Help: "Scheduler commit attempts by outcome",
		}, []string{"outcome"}),

		ERPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "erp_approval_erp_call_duration_seconds",
			Help:    "Duration of ERP adapter calls",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		}, []string{"adapter", "op"}),

		ERPErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "erp_approval_erp_call_errors_total",
			Help: "Failed ERP adapter calls by kind",
		}, []string{"adapter", "op", "kind"}),
	}
}

func (m *Metrics) IncDecisionCreated(verdict string) {
	if m != nil {
		m.DecisionsCreated.WithLabelValues(verdict).Inc()
	}
}

func (m *Metrics) IncTransition(from, to string) {
	if m != nil {
		m.Transitions.WithLabelValues(from, to).Inc()
	}
}

func (m *Metrics) ObserveTick(d time.Duration) {
	if m != nil {
		m.TickDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) IncCommitOutcome(outcome string) {
	if m != nil {
		m.CommitOutcomes.WithLabelValues(outcome).Inc()
	}
}

// ObserveERPCall implements erp.Observer.
func (m *Metrics) ObserveERPCall(adapter, op string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.ERPLatency.WithLabelValues(adapter, op).Observe(elapsed.Seconds())
	if err != nil && !erp.Succeeded(err) {
		m.ERPErrors.WithLabelValues(adapter, op, errorKind(err)).Inc()
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, erp.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, erp.ErrRejected):
		return "rejected"
	case errors.Is(err, erp.ErrNotFound):
		return "not_found"
	default:
		return "other"
	}
}
