// Package metrics holds the Prometheus collectors for the chat service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Connection metrics
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketchat_active_connections",
			Help: "Currently open real-time connections",
		},
	)

	ActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketchat_active_rooms",
			Help: "Rooms with at least one member on this instance",
		},
	)

	// Messaging metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketchat_messages_sent_total",
			Help: "Messages persisted and broadcast",
		},
	)

	SendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketchat_send_failures_total",
			Help: "Send requests that were rejected or could not be persisted",
		},
		[]string{"reason"},
	)

	HistoryRowsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketchat_history_rows_skipped_total",
			Help: "Stored rows left out of a replay because they could not be decrypted",
		},
	)

	BroadcastDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketchat_broadcast_dropped_total",
			Help: "Events not delivered because a member's send buffer was full",
		},
	)

	// Storage metrics
	StorageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketchat_storage_latency_seconds",
			Help:    "Message store call latency per attempt",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
		[]string{"op"},
	)

	StorageRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketchat_storage_retries_total",
			Help: "Message store calls retried after a failure",
		},
		[]string{"op"},
	)
)
