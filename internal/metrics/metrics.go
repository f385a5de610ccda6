// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quickchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path"},
	)

	// Chat metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickchat_messages_sent_total",
			Help: "Total messages persisted",
		},
		[]string{"kind"}, // "text", "image" or "mixed"
	)

	PushEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickchat_push_events_total",
			Help: "Push events offered to live connections",
		},
		[]string{"event", "result"}, // result: "queued" or "dropped"
	)

	// Presence metrics
	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quickchat_online_users",
			Help: "Users with an addressable websocket",
		},
	)

	WebsocketConnections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickchat_websocket_connections_total",
			Help: "Websocket connection attempts",
		},
		[]string{"result"}, // "accepted", "unauthorized" or "upgrade_failed"
	)
)

// RecordPush counts one push attempt.
func RecordPush(event string, queued bool) {
	result := "dropped"
	if queued {
		result = "queued"
	}
	PushEvents.WithLabelValues(event, result).Inc()
}
