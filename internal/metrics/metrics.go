// Package metrics holds the Prometheus collectors exported by the control plane.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transition sources.
const (
	SourceCreate    = "create"
	SourceApproval  = "approval"
	SourceReconcile = "reconcile"
	SourceOperator  = "operator"
)

// Runtime request outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeCircuitOpen = "circuit_open"
)

// Metrics groups every collector used by the services and the runtime client.
type Metrics struct {
	// RunsCreated counts runs by the policy decision taken at creation.
	RunsCreated *prometheus.CounterVec

	// RunTransitions counts committed run status changes.
	RunTransitions *prometheus.CounterVec

	// RuntimeRequests counts orchestrator calls by operation and outcome.
	RuntimeRequests *prometheus.CounterVec

	// RuntimeDuration observes orchestrator call latency.
	RuntimeDuration *prometheus.HistogramVec

	// CircuitState is the orchestrator breaker state by breaker (0 closed, 1 half-open, 2 open).
	CircuitState *prometheus.GaugeVec

	// ApprovalsDecided counts operator decisions.
	ApprovalsDecided *prometheus.CounterVec
}

// New registers the collectors on reg. A nil registerer gets a private registry,
// which keeps tests and tools that do not export metrics working.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RunsCreated: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "commandcenter_runs_created_total",
			Help: "Runs created, by policy decision.",
		}, []string{"decision"}),

		RunTransitions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "commandcenter_run_transitions_total",
			Help: "Run status transitions, by new status and source.",
		}, []string{"status", "source"}),

		RuntimeRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "commandcenter_runtime_requests_total",
			Help: "Requests sent to the runtime orchestrator.",
		}, []string{"operation", "outcome"}),

		RuntimeDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "commandcenter_runtime_request_duration_seconds",
			Help:    "Latency of runtime orchestrator requests.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		}, []string{"operation"}),

		CircuitState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "commandcenter_runtime_circuit_state",
			Help: "Runtime orchestrator circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"breaker"}),

		ApprovalsDecided: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "commandcenter_approvals_decided_total",
			Help: "Approval requests resolved by operators.",
		}, []string{"decision"}),
	}
}
