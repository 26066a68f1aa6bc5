package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "travel_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "travel_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Stream session metrics
	StreamsOpened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "travel_streams_opened_total",
			Help: "Stream sessions opened per transport",
		},
		[]string{"transport"},
	)

	StreamEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "travel_stream_events_total",
			Help: "Upstream stream events received",
		},
		[]string{"type"},
	)

	StreamsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "travel_streams_finished_total",
			Help: "Stream sessions by terminal phase",
		},
		[]string{"phase"},
	)

	StopRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "travel_stop_requests_total",
			Help: "Server-side stop requests issued",
		},
		[]string{"result"}, // "ok" or "error"
	)

	// Directive metrics
	DirectivesDecoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "travel_directives_decoded_total",
			Help: "Directives decoded from final replies",
		},
		[]string{"kind"},
	)

	DirectiveDecodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "travel_directive_decode_failures_total",
			Help: "Directive blocks whose JSON failed to parse",
		},
	)

	DirectivesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "travel_directives_dropped_total",
			Help: "Directives dropped before dispatch",
		},
		[]string{"reason"}, // "no_payload", "unknown_kind", "invalid"
	)

	// Relay metrics
	UpdatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "travel_updates_dropped_total",
			Help: "Updates dropped because a subscriber was too slow",
		},
	)
)
