package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency. Shared across all routes.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "creditcore",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// Ledger metrics (Module B).
var (
	LedgerCreditsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditcore",
			Subsystem: "ledger",
			Name:      "credits_total",
			Help:      "Total number of credit entries posted, by reason.",
		},
		[]string{"reason"},
	)

	LedgerDebitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditcore",
			Subsystem: "ledger",
			Name:      "debits_total",
			Help:      "Total number of debit entries posted, by reason.",
		},
		[]string{"reason"},
	)

	LedgerDuplicateReferenceTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "creditcore",
			Subsystem: "ledger",
			Name:      "duplicate_reference_total",
			Help:      "Total number of ledger entries rejected as duplicate reference IDs.",
		},
	)
)

// Meter pipeline metrics (Module C).
var (
	MeterEventsEmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "creditcore",
			Subsystem: "meter",
			Name:      "events_emitted_total",
			Help:      "Total number of usage events appended to the meter WAL.",
		},
	)

	MeterEventsFlushedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "creditcore",
			Subsystem: "meter",
			Name:      "events_flushed_total",
			Help:      "Total number of usage events flushed from the WAL to storage.",
		},
	)

	MeterEventsDeadLetteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "creditcore",
			Subsystem: "meter",
			Name:      "events_dead_lettered_total",
			Help:      "Total number of usage events moved to the dead-letter queue.",
		},
	)

	MeterAggregateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "creditcore",
			Subsystem: "meter",
			Name:      "aggregate_duration_seconds",
			Help:      "Duration of a single meter aggregation pass.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Gateway credit gate metrics (Module E).
var (
	GatewayGateDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditcore",
			Subsystem: "gateway",
			Name:      "gate_decisions_total",
			Help:      "Total number of pre-check gate decisions, by outcome.",
		},
		[]string{"decision"},
	)
)

// Fleet control metrics (Module G).
var (
	FleetHeartbeatTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "creditcore",
			Subsystem: "fleet",
			Name:      "heartbeat_timeouts_total",
			Help:      "Total number of nodes declared lost due to missed heartbeats.",
		},
	)

	FleetNodesByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "creditcore",
			Subsystem: "fleet",
			Name:      "nodes_by_state",
			Help:      "Current number of nodes in each lifecycle state.",
		},
		[]string{"state"},
	)
)

// Payment reconciliation metrics (Module D).
var (
	PaymentWebhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditcore",
			Subsystem: "payment",
			Name:      "webhooks_total",
			Help:      "Total number of processor webhooks handled, by outcome.",
		},
		[]string{"outcome"},
	)

	AutoTopupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditcore",
			Subsystem: "payment",
			Name:      "auto_topups_total",
			Help:      "Total number of automatic top-up attempts, by outcome.",
		},
		[]string{"outcome"},
	)
)

// Credential vault metrics (Module I).
var (
	VaultCredentialMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditcore",
			Subsystem: "vault",
			Name:      "credential_mutations_total",
			Help:      "Total number of credential store/rotate/activate/delete operations, by action.",
		},
		[]string{"action"},
	)
)

// All returns all creditcore-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		LedgerCreditsTotal,
		LedgerDebitsTotal,
		LedgerDuplicateReferenceTotal,
		MeterEventsEmittedTotal,
		MeterEventsFlushedTotal,
		MeterEventsDeadLetteredTotal,
		MeterAggregateDuration,
		GatewayGateDecisionsTotal,
		FleetHeartbeatTimeoutsTotal,
		FleetNodesByState,
		PaymentWebhooksTotal,
		AutoTopupsTotal,
		VaultCredentialMutationsTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTPRequestDuration metric, and any additional service-specific
// collectors passed as arguments.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
