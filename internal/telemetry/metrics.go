package telemetry

import "github.com/prometheus/client_golang/prometheus"

var PulsesStartedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "pulsekeeper",
		Subsystem: "pulses",
		Name:      "started_total",
		Help:      "Total number of pulses started.",
	},
)

var PulsesStoppedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "pulsekeeper",
		Subsystem: "pulses",
		Name:      "stopped_total",
		Help:      "Total number of pulses stopped.",
	},
)

var PulsesArchivedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pulsekeeper",
		Subsystem: "pulses",
		Name:      "archived_total",
		Help:      "Total number of pulses archived, by enrichment path.",
	},
	[]string{"path"}, // "llm" or "rule"
)

var AdmissionDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pulsekeeper",
		Subsystem: "admission",
		Name:      "decisions_total",
		Help:      "Total number of admission-controller decisions, by reason.",
	},
	[]string{"reason"}, // exceptional, low_roll, low_worthiness, budget, ai_disabled
)

var OrchestratorDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "pulsekeeper",
		Subsystem: "orchestrator",
		Name:      "processing_duration_seconds",
		Help:      "Lifecycle orchestrator per-record processing duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
	[]string{"outcome"}, // archived, demoted, failed
)

var LLMCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pulsekeeper",
		Subsystem: "llm",
		Name:      "calls_total",
		Help:      "Total number of LLM enrichment calls, by model and outcome.",
	},
	[]string{"model", "outcome"}, // outcome: success, parse_error, unavailable
)

var BudgetDebitedCentsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pulsekeeper",
		Subsystem: "budget",
		Name:      "debited_cents_total",
		Help:      "Total AI cost debited, in cents, by tier.",
	},
	[]string{"tier"},
)

var SlackNotificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pulsekeeper",
		Subsystem: "slack",
		Name:      "notifications_total",
		Help:      "Total number of Slack notifications sent, by type.",
	},
	[]string{"type"},
)

var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "pulsekeeper",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds, by method, route and status.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"method", "route", "status"},
)

// All returns all pulsekeeper-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		PulsesStartedTotal,
		PulsesStoppedTotal,
		PulsesArchivedTotal,
		AdmissionDecisionsTotal,
		OrchestratorDuration,
		LLMCallsTotal,
		BudgetDebitedCentsTotal,
		SlackNotificationsTotal,
		HTTPRequestDuration,
	}
}
