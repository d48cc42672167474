package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	ConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "echodesk_connections_active",
			Help: "Live websocket connections tracked by the registry",
		},
		[]string{"role"},
	)

	ConnectionsReplaced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "echodesk_connections_replaced_total",
			Help: "Registrations that displaced an older connection for the same identity",
		},
	)

	OutboxOverflows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "echodesk_outbox_overflows_total",
			Help: "Connections closed because their outbox was full",
		},
	)

	// Business metrics
	InboundEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echodesk_inbound_events_total",
			Help: "Inbound websocket events by name and outcome",
		},
		[]string{"event", "outcome"},
	)

	MessagesSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echodesk_messages_submitted_total",
			Help: "Chat messages committed",
		},
		[]string{"sender_type"},
	)

	RoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "echodesk_rooms_created_total",
			Help: "Support rooms created",
		},
	)

	NotificationsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echodesk_notifications_persisted_total",
			Help: "Notification rows inserted",
		},
		[]string{"type"},
	)

	WelcomesSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "echodesk_welcomes_suppressed_total",
			Help: "Welcome notifications skipped by the login throttle",
		},
	)

	SweeperEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "echodesk_sweeper_evictions_total",
			Help: "Stale registry entries removed by the presence sweeper",
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echodesk_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "echodesk_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Infrastructure metrics
	PostgresLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "echodesk_postgres_latency_seconds",
			Help:    "PostgreSQL transaction latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"op"},
	)
)
