package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ErrorsTotal tracks handled errors per category and severity
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worrybox_errors_total",
			Help: "Total number of errors handled by the recovery service",
		},
		[]string{"category", "severity"},
	)

	// RecoveryAttemptsTotal tracks recovery attempts per action type and outcome
	RecoveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worrybox_recovery_attempts_total",
			Help: "Total number of recovery attempts",
		},
		[]string{"type", "success"},
	)

	// BreakerState reports circuit breaker state per endpoint (0=closed, 1=half_open, 2=open)
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worrybox_breaker_state",
			Help: "Circuit breaker state per endpoint (0=closed, 1=half_open, 2=open)",
		},
		[]string{"endpoint"},
	)

	// BreakerTransitionsTotal counts breaker transitions into open
	BreakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worrybox_breaker_transitions_total",
			Help: "Total number of circuit breaker open transitions",
		},
		[]string{"endpoint"},
	)

	// DBOperationSeconds tracks database operation latency
	DBOperationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worrybox_db_operation_seconds",
			Help:    "Database operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)

	// DBQueueDepth reports the number of operations waiting for a healthy connection
	DBQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worrybox_db_queue_depth",
			Help: "Number of database operations waiting for a healthy connection",
		},
	)

	// RequestTimeoutsTotal counts requests aborted by the timeout middleware
	RequestTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worrybox_request_timeouts_total",
			Help: "Total number of requests aborted by the timeout middleware",
		},
		[]string{"path"},
	)

	// AlertsTotal counts alerts raised per level
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worrybox_alerts_total",
			Help: "Total number of alerts raised",
		},
		[]string{"level"},
	)
)
