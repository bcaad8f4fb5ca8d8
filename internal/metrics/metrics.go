// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HttpRequestsTotal counts HTTP requests by route pattern, method and status code.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of http requests handled by the service.",
		},
		[]string{"path", "method", "code"},
	)

	// ExecutionWritesTotal counts execution writes by resulting status and
	// operation (insert, update, error).
	ExecutionWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execution_writes_total",
			Help: "Total number of test execution writes.",
		},
		[]string{"status", "op"},
	)

	// ExecutionLockWait observes how long a write waited for its test case slot.
	ExecutionLockWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "execution_lock_wait_seconds",
			Help:    "Time spent waiting for the per test case write lock.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)

	// SessionExecutions exports the last report of each in-progress session.
	SessionExecutions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "session_executions",
			Help: "Test executions of a session by status, as of the last report.",
		},
		[]string{"session_id", "status"},
	)

	// IsLeader marks whether this node currently runs the session reporter.
	IsLeader = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "is_leader",
			Help: "Is this node currently the leader. 1 if leader, 0 otherwise.",
		},
		[]string{"node_id"},
	)
)
