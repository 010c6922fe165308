package core

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments the service emits. A nil *Metrics
// is valid and records nothing, so callers that do not scrape can leave the
// option unset.
type Metrics struct {
	plans       *prometheus.CounterVec
	transfers   *prometheus.CounterVec
	conflicts   prometheus.Counter
	vialsMoved  prometheus.Counter
	overflowed  prometheus.Counter
	assessments prometheus.Counter
}

// NewMetrics registers the service instruments on reg and returns the bundle.
// A nil registerer falls back to prometheus.DefaultRegisterer; an empty
// namespace defaults to "labaid".
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "labaid"
	}
	m := &Metrics{
		plans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "planner",
			Name:      "plans_total",
			Help:      "Destination plans requested, by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "transfers_total",
			Help:      "Transfer requests processed, by outcome.",
		}, []string{"outcome"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "conflicts_total",
			Help:      "Transfers rejected because a destination was taken or a source moved mid-flight.",
		}),
		vialsMoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "vials_moved_total",
			Help:      "Vials placed by committed transfers.",
		}),
		overflowed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capacity",
			Name:      "overflow_advisories_total",
			Help:      "Capacity assessments that reported an overflow.",
		}),
		assessments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capacity",
			Name:      "assessments_total",
			Help:      "Capacity assessments served, cached or computed.",
		}),
	}
	reg.MustRegister(m.plans, m.transfers, m.conflicts, m.vialsMoved, m.overflowed, m.assessments)
	return m
}

// Plan outcome labels.
const (
	outcomePlanned      = "planned"
	outcomeInsufficient = "insufficient_capacity"
	outcomeInvalid      = "invalid_selection"
	outcomeCommitted    = "committed"
	outcomeConflict     = "conflict"
	outcomeRejected     = "rejected"
	outcomeError        = "error"
)

func (m *Metrics) recordPlan(strategy Strategy, outcome string) {
	if m == nil {
		return
	}
	m.plans.WithLabelValues(string(strategy), outcome).Inc()
}

func (m *Metrics) recordTransfer(outcome string, moved int) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(outcome).Inc()
	if outcome == outcomeConflict {
		m.conflicts.Inc()
	}
	if moved > 0 {
		m.vialsMoved.Add(float64(moved))
	}
}

func (m *Metrics) recordAssessment(report CapacityReport) {
	if m == nil {
		return
	}
	m.assessments.Inc()
	if report.Overflow > 0 {
		m.overflowed.Inc()
	}
}
