// Package metrics provides Prometheus instrumentation for the fraud-core
// pipeline, following the same promauto/CounterVec/HistogramVec pattern as
// the teacher's observability/metrics package, namespaced for this domain.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "innovabiz"
	subsystem = "fraud_core"
)

var (
	// AssessmentsTotal counts completed risk assessments.
	AssessmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "assessments_total",
			Help:      "Total risk assessments completed, by tenant and risk level.",
		},
		[]string{"tenant_id", "region_code", "risk_level"},
	)

	// AssessmentDuration measures end-to-end pipeline latency.
	AssessmentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "assessment_duration_seconds",
			Help:      "Time to produce a risk assessment.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tenant_id", "region_code"},
	)

	// SignalProcessorDuration measures per-processor latency (§4.2 budget).
	SignalProcessorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "signal_processor_duration_seconds",
			Help:      "Execution time of an individual signal processor.",
			Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1},
		},
		[]string{"processor"},
	)

	// SignalProcessorFailuresTotal counts processor errors isolated per P8.
	SignalProcessorFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "signal_processor_failures_total",
			Help:      "Signal processor invocations that errored and were dropped.",
		},
		[]string{"processor"},
	)

	// RuleEvaluationDuration measures per-rule evaluation latency.
	RuleEvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rule_evaluation_duration_seconds",
			Help:      "Execution time of an individual rule.",
			Buckets:   []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.02},
		},
		[]string{"rule_id"},
	)

	// RuleTimeoutsTotal counts rules killed by the per-rule timeout.
	RuleTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rule_timeouts_total",
			Help:      "Rules that exceeded the per-rule evaluation timeout.",
		},
		[]string{"rule_id"},
	)

	// ContextStoreSize tracks live profile count, sampled by the sweeper.
	ContextStoreSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "context_store_profiles",
			Help:      "Number of user profiles currently held in the context store.",
		},
	)

	// ContextStoreEvictionsTotal counts profiles evicted by the sweeper.
	ContextStoreEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "context_store_evictions_total",
			Help:      "Profiles evicted by the background sweeper for exceeding the memory window.",
		},
	)

	// ContextStoreProfileLoadFailuresTotal counts Store.Repo.Load errors,
	// each of which falls back to a fresh default profile (§4.1 failure
	// semantics) rather than blocking the caller.
	ContextStoreProfileLoadFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "context_store_profile_load_failures_total",
			Help:      "Behavioral profile loads from the durable repository that failed and fell back to a default profile.",
		},
	)

	// ConsumerMessagesTotal counts Kafka messages processed per consumer/outcome.
	ConsumerMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "consumer_messages_total",
			Help:      "Kafka messages processed, by consumer name and outcome.",
		},
		[]string{"consumer", "outcome"},
	)

	// ConsumerProcessingDuration measures per-message handling time.
	ConsumerProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "consumer_processing_duration_seconds",
			Help:      "Time to process a single consumed message.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"consumer"},
	)

	// ConsumerLagMessages reports the last observed partition lag.
	ConsumerLagMessages = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "consumer_partition_lag",
			Help:      "Last observed lag for a consumer partition.",
		},
		[]string{"consumer", "partition"},
	)

	// AlertsSentTotal counts dispatched fraud alerts, by channel and outcome.
	AlertsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "alerts_sent_total",
			Help:      "Alerts dispatched to gateways, by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)

	// AlertsSuppressedTotal counts alerts suppressed by cooldown (P7).
	AlertsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "alerts_suppressed_total",
			Help:      "Alerts suppressed by the active cooldown window.",
		},
		[]string{"tenant_id"},
	)

	// OrchestratorAgentDuration measures per-agent fan-out latency.
	OrchestratorAgentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "orchestrator_agent_duration_seconds",
			Help:      "Time an individual agent took within a fan-out deadline.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"agent"},
	)

	// OrchestratorDeadlineExceededTotal counts agents cut off by the shared deadline.
	OrchestratorDeadlineExceededTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "orchestrator_deadline_exceeded_total",
			Help:      "Agent invocations cut off by the shared orchestrator deadline.",
		},
		[]string{"agent"},
	)
)
