package usage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus mirrors of the Monitor counters, served by the status server's
// /metrics endpoint.
var (
	metricSessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagepool_sessions_created_total",
			Help: "Total number of browser sessions created",
		},
	)

	metricSessionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagepool_sessions_closed_total",
			Help: "Total number of browser sessions closed",
		},
		[]string{"reason"},
	)

	metricLiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagepool_live_sessions",
			Help: "Current number of live browser sessions",
		},
	)

	metricRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagepool_requests_total",
			Help: "Total number of serialized session operations",
		},
		[]string{"outcome"},
	)

	metricRequestLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pagepool_request_latency_seconds",
			Help:    "Session operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	metricErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagepool_errors_total",
			Help: "Total number of classified errors",
		},
		[]string{"kind"},
	)

	metricEngineTime = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagepool_engine_time_seconds_total",
			Help: "Cumulative wall-clock time engine handles were held open",
		},
	)

	metricReleaseFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagepool_release_failures_total",
			Help: "Total number of failed or timed-out handle releases",
		},
	)

	metricHandleRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagepool_handle_refreshes_total",
			Help: "Total number of unhealthy handles replaced in place",
		},
	)
)
