package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Compliance pipeline, recorder, and supporting-store metrics.

var (
	// Pipeline
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "compliance",
		Name:      "decisions_total",
		Help:      "Total compliance decisions",
	}, []string{"decision"})

	CheckFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "compliance",
		Name:      "check_failures_total",
		Help:      "Total check failures, by the check that rejected",
	}, []string{"check"})

	EvaluateLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Subsystem: "compliance",
		Name:      "evaluate_duration_seconds",
		Help:      "Pipeline evaluation duration",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	// Recorder
	AuditWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "recorder",
		Name:      "audit_writes_total",
		Help:      "Total audit log write attempts",
	}, []string{"status"})

	AuditWriteRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "recorder",
		Name:      "audit_write_retries_total",
		Help:      "Total audit log write retries after transient failures",
	})

	// Payment rail
	RailExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "rail",
		Name:      "executions_total",
		Help:      "Total payment rail executions",
	}, []string{"status", "mode"})

	// Vendor cache
	VendorCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "store",
		Name:      "vendor_cache_lookups_total",
		Help:      "Vendor whitelist cache lookups",
	}, []string{"result"})

	// Reconciliation
	ReconcileMismatches = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Subsystem: "reconciliation",
		Name:      "mismatched_categories",
		Help:      "Categories whose recorded spend disagrees with the audit log",
	})

	// Alerting
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Total alerts dispatched",
	}, []string{"type"})

	AlertsSuppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "alert",
		Name:      "suppressed_total",
		Help:      "Alerts suppressed by cooldown",
	}, []string{"type"})
)
