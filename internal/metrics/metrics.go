package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatroom_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Completion metrics
	CompletionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_completion_requests_total",
			Help: "Completion calls by outcome",
		},
		[]string{"provider", "outcome"}, // outcome: "ok" or an error kind
	)

	CompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatroom_completion_duration_seconds",
			Help:    "Completion call latency",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider"},
	)

	// Conversation metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_messages_total",
			Help: "User messages by final status",
		},
		[]string{"status"},
	)

	SendsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatroom_sends_rejected_total",
			Help: "Sends rejected because another send was in flight",
		},
	)

	// Store metrics
	StoreWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_store_writes_total",
			Help: "Room collection writes by operation and result",
		},
		[]string{"op", "result"},
	)

	StoreUpdateMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatroom_store_update_misses_total",
			Help: "Updates ignored because the room id was not present",
		},
	)

	StoreWriteLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatroom_store_write_latency_seconds",
			Help:    "Latency of full-collection writes",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		},
	)

	RoomsStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatroom_rooms",
			Help: "Rooms currently in the store",
		},
	)
)
