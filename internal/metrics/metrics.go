package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digicam_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "digicam_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Relay metrics
	RelayConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "digicam_relay_connections",
			Help: "Currently open relay connections",
		},
	)

	RelayEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digicam_relay_events_total",
			Help: "Inbound relay events",
		},
		[]string{"event"},
	)

	RelayDroppedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digicam_relay_dropped_events_total",
			Help: "Events dropped because a connection's buffer was full",
		},
		[]string{"event"},
	)

	// Business metrics
	MessagesStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digicam_chat_messages_stored_total",
			Help: "Messages written to the durable store",
		},
		[]string{"role"},
	)

	ConversationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "digicam_chat_conversations_created_total",
			Help: "Conversations created",
		},
	)

	SweptConversations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "digicam_chat_swept_conversations_total",
			Help: "Expired guest conversations deleted by the sweeper",
		},
	)

	FilesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "digicam_chat_files_uploaded_total",
			Help: "Attachments stored by the upload endpoint",
		},
	)

	SweptMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "digicam_chat_swept_messages_total",
			Help: "Messages deleted by the sweeper",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digicam_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
