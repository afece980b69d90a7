// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// SocketConnectionsActive tracks active websocket connections.
	SocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "socket_connections_active",
			Help: "Number of active websocket connections",
		},
	)

	// SocketEventsTotal tracks inbound socket events by name and outcome.
	SocketEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socket_events_total",
			Help: "Total inbound socket events processed",
		},
		[]string{"event", "outcome"},
	)

	// MessagesTotal tracks messages persisted.
	MessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages persisted",
		},
	)

	// FanoutDeliveriesTotal tracks events delivered to recipient channels.
	FanoutDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_deliveries_total",
			Help: "Total fan-out deliveries by event",
		},
		[]string{"event"},
	)

	// NotificationJobsTotal tracks offline-notification jobs enqueued.
	NotificationJobsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_jobs_total",
			Help: "Total offline notification jobs enqueued",
		},
	)

	// CacheOperationsTotal tracks cache operations by result.
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Total cache operations",
		},
		[]string{"op", "result"},
	)

	// OnlineUsers tracks the size of the online-user set as seen by this node.
	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "online_users",
			Help: "Users currently marked online",
		},
	)

	// SearchIndexErrorsTotal tracks best-effort search sink failures.
	SearchIndexErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "search_index_errors_total",
			Help: "Total failed search sink writes",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordSocketEvent records an inbound socket event outcome.
func RecordSocketEvent(event, outcome string) {
	SocketEventsTotal.WithLabelValues(event, outcome).Inc()
}

// RecordCacheOp records a cache operation result.
func RecordCacheOp(op, result string) {
	CacheOperationsTotal.WithLabelValues(op, result).Inc()
}
