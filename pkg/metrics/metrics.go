// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	LabelOutcome   = "outcome"
	LabelCondition = "condition"
	LabelSeverity  = "severity"
	LabelFrom      = "from"
	LabelTo        = "to"
	LabelEntity    = "entity"
)

var (
	GateEvaluations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qagate_gate_evaluations_total",
		Help: "Gate evaluations by outcome (passed or blocked)",
	}, []string{LabelOutcome})

	GateViolations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qagate_gate_violations_total",
		Help: "Gate violations by condition type and severity",
	}, []string{LabelCondition, LabelSeverity})

	GateWaivedViolations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qagate_gate_waived_violations_total",
		Help: "Gate violations covered by a valid waiver",
	}, []string{LabelCondition})

	GateEvaluationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "qagate_gate_evaluation_duration_seconds",
		Help:    "Time taken to evaluate a release gate",
		Buckets: prometheus.DefBuckets,
	})

	StatusTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qagate_status_transitions_total",
		Help: "Successful status transitions of releases and revisions",
	}, []string{LabelEntity, LabelFrom, LabelTo})

	ReleaseApprovals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qagate_release_approvals_total",
		Help: "Release approval attempts by outcome (approved, blocked or failed)",
	}, []string{LabelOutcome})

	WaiversIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qagate_waivers_issued_total",
		Help: "Waivers issued",
	})

	WaiversSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qagate_waivers_swept_total",
		Help: "Expired waivers deleted by sweeps",
	})

	AuditEventsPurged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qagate_audit_events_purged_total",
		Help: "Audit events deleted by retention",
	})
)

func init() {
	prometheus.MustRegister(GateEvaluations)
	prometheus.MustRegister(GateViolations)
	prometheus.MustRegister(GateWaivedViolations)
	prometheus.MustRegister(GateEvaluationDuration)
	prometheus.MustRegister(StatusTransitions)
	prometheus.MustRegister(ReleaseApprovals)
	prometheus.MustRegister(WaiversIssued)
	prometheus.MustRegister(WaiversSwept)
	prometheus.MustRegister(AuditEventsPurged)
}
