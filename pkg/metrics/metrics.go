package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks sessions created minus sessions deactivated by this process.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessiongate_active_sessions",
			Help: "Number of active login sessions",
		},
	)

	// SessionDeactivations counts sessions moved to inactive, by reason.
	SessionDeactivations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiongate_session_deactivations_total",
			Help: "Total number of deactivated login sessions",
		},
		[]string{"reason"},
	)

	// DuplicateLogins counts logins that found existing live sessions (evicted=true|false).
	DuplicateLogins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiongate_duplicate_logins_total",
			Help: "Total number of detected duplicate logins",
		},
		[]string{"evicted"},
	)

	// SuspiciousActivity counts client addresses flagged for too many live sessions.
	SuspiciousActivity = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessiongate_suspicious_activity_total",
			Help: "Total number of suspicious activity detections",
		},
	)

	// SessionStoreErrors counts failed session storage calls by manager operation.
	SessionStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiongate_session_store_errors_total",
			Help: "Total number of session storage failures",
		},
		[]string{"operation"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sessiongate_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
