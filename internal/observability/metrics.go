// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"math"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the agent.
type Metrics struct {
	// Tick metrics
	TicksTotal         *prometheus.CounterVec
	TickDuration       prometheus.Histogram
	LastSuccessfulTick prometheus.Gauge

	// Wallet metrics
	BalanceSOL         prometheus.Gauge
	BalanceCheckErrors prometheus.Counter

	// Scanner metrics
	ScannerRuns           *prometheus.CounterVec
	ScannerDuration       *prometheus.HistogramVec
	OpportunitiesFound    *prometheus.GaugeVec
	OpportunitiesEligible prometheus.Gauge

	// Oracle metrics
	OracleDecisions *prometheus.CounterVec
	OracleLatency   prometheus.Histogram

	// Execution metrics
	ExecutionsTotal *prometheus.CounterVec

	// Goal metrics
	GoalDaysToGoal  prometheus.Gauge
	GoalProgressPct prometheus.Gauge

	// Infrastructure metrics
	RPCCallLatency     *prometheus.HistogramVec
	AuditWriteFailures *prometheus.CounterVec
	YieldReportsStored prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_yield_agent"
	}

	return &Metrics{
		TicksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "ticks_total",
			Help:      "Total number of ticks by outcome",
		}, []string{"outcome"}),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "tick_duration_seconds",
			Help:      "Tick duration in seconds",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
		LastSuccessfulTick: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_tick_timestamp",
			Help:      "Unix timestamp of the last completed tick",
		}),

		BalanceSOL: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "balance_sol",
			Help:      "Last observed wallet balance in SOL",
		}),
		BalanceCheckErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "balance_check_errors_total",
			Help:      "Balance queries that fell back to the cached value",
		}),

		ScannerRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "runs_total",
			Help:      "Scanner invocations by scanner and status",
		}, []string{"scanner", "status"}),
		ScannerDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "duration_seconds",
			Help:      "Scanner call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"scanner"}),
		OpportunitiesFound: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "opportunities",
			Help:      "Opportunities returned by the last scan, by scanner",
		}, []string{"scanner"}),
		OpportunitiesEligible: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "eligible_opportunities",
			Help:      "Opportunities passing the filter in the last tick",
		}),

		OracleDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "decisions_total",
			Help:      "Oracle decisions by action and outcome",
		}, []string{"action", "outcome"}),
		OracleLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "latency_seconds",
			Help:      "Oracle consultation latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		ExecutionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "executions_total",
			Help:      "Trade executions by status and stage",
		}, []string{"status", "stage"}),

		GoalDaysToGoal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "goal",
			Name:      "days_to_goal",
			Help:      "Projected days to reach the goal, -1 when unreachable",
		}),
		GoalProgressPct: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "goal",
			Name:      "progress_percent",
			Help:      "Current balance as a percentage of the target",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		AuditWriteFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "write_failures_total",
			Help:      "Audit entries that could not be persisted, by reason",
		}, []string{"reason"}),
		YieldReportsStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "yield_reports_stored_total",
			Help:      "Total number of yield reports stored",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTick records a finished tick.
func RecordTick(outcome string, durationSeconds float64, finishedUnix int64) {
	DefaultMetrics.TicksTotal.WithLabelValues(outcome).Inc()
	DefaultMetrics.TickDuration.Observe(durationSeconds)
	if finishedUnix > 0 {
		DefaultMetrics.LastSuccessfulTick.Set(float64(finishedUnix))
	}
}

// RecordBalance records a balance observation. degraded marks a cached fallback.
func RecordBalance(sol float64, degraded bool) {
	DefaultMetrics.BalanceSOL.Set(sol)
	if degraded {
		DefaultMetrics.BalanceCheckErrors.Inc()
	}
}

// RecordScan records one scanner invocation.
func RecordScan(scanner string, found int, durationSeconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.ScannerRuns.WithLabelValues(scanner, status).Inc()
	DefaultMetrics.ScannerDuration.WithLabelValues(scanner).Observe(durationSeconds)
	DefaultMetrics.OpportunitiesFound.WithLabelValues(scanner).Set(float64(found))
}

// RecordEligible records how many opportunities survived filtering.
func RecordEligible(n int) {
	DefaultMetrics.OpportunitiesEligible.Set(float64(n))
}

// RecordOracleDecision records an oracle decision.
func RecordOracleDecision(action, outcome string, seconds float64) {
	DefaultMetrics.OracleDecisions.WithLabelValues(action, outcome).Inc()
	if seconds > 0 {
		DefaultMetrics.OracleLatency.Observe(seconds)
	}
}

// RecordExecution records a trade execution result.
func RecordExecution(status, stage string) {
	DefaultMetrics.ExecutionsTotal.WithLabelValues(status, stage).Inc()
}

// RecordGoal updates the goal gauges.
func RecordGoal(daysToGoal, progressPct float64) {
	if math.IsInf(daysToGoal, 0) || math.IsNaN(daysToGoal) {
		daysToGoal = -1
	}
	DefaultMetrics.GoalDaysToGoal.Set(daysToGoal)
	DefaultMetrics.GoalProgressPct.Set(progressPct)
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordAuditFailure records an audit entry that was dropped or failed to persist.
func RecordAuditFailure(reason string) {
	DefaultMetrics.AuditWriteFailures.WithLabelValues(reason).Inc()
}

// RecordYieldReports records stored yield reports.
func RecordYieldReports(n int) {
	DefaultMetrics.YieldReportsStored.Add(float64(n))
}
