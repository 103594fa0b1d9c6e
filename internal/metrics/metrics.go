package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eldercare_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eldercare_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Auth metrics
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eldercare_login_attempts_total",
			Help: "Total login attempts",
		},
		[]string{"outcome"}, // "success" or "failure"
	)

	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eldercare_auth_failures_total",
			Help: "Total rejected bearer tokens",
		},
		[]string{"reason"}, // "missing", "malformed", "invalid", "stale_account"
	)

	// Chat metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eldercare_messages_sent_total",
			Help: "Total chat messages persisted",
		},
	)

	// Realtime metrics
	SocketsConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eldercare_sockets_connected",
			Help: "Currently connected WebSocket clients",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eldercare_chat_events_published_total",
			Help: "Total chat events published to the hub",
		},
		[]string{"type"},
	)

	EventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eldercare_chat_events_delivered_total",
			Help: "Total chat events delivered to subscribers",
		},
		[]string{"type"},
	)
)
