// Package metrics exposes Prometheus instrumentation for the session
// registry, pub/sub bus, broadcast controller, and HTTP surface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rtx_gateway_active_sessions",
		Help: "Current number of registered WebSocket sessions",
	})

	sessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtx_gateway_sessions_swept_total",
		Help: "Total number of sessions removed by the stale sweep",
	})

	pubsubTopics = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rtx_gateway_pubsub_topics",
		Help: "Current number of distinct pub/sub topics",
	})

	pubsubSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rtx_gateway_pubsub_subscribers",
		Help: "Current number of subscribers for a symbol",
	}, []string{"symbol"})

	ticksPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtx_gateway_ticks_published_total",
		Help: "Total tick messages published by symbol",
	}, []string{"symbol"})

	adminEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtx_gateway_admin_events_published_total",
		Help: "Total admin order lifecycle events published by type",
	}, []string{"event_type"})

	broadcastState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rtx_gateway_broadcast_state",
		Help: "Broadcast controller state (0=stopped, 1=paused, 2=running)",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtx_gateway_http_requests_total",
		Help: "Total HTTP requests by route, method, and status",
	}, []string{"route", "method", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rtx_gateway_http_request_duration_milliseconds",
		Help:    "HTTP request latency in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	}, []string{"route", "method"})
)

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetActiveSessions records the SessionRegistry's current count.
func SetActiveSessions(count int) {
	activeSessions.Set(float64(count))
}

// RecordSessionsSwept increments the swept-session counter by n.
func RecordSessionsSwept(n int) {
	if n > 0 {
		sessionsSwept.Add(float64(n))
	}
}

// SetPubSubStats records the bus's (topic_count, per-symbol subscriber
// counts) snapshot.
func SetPubSubStats(topicCount int) {
	pubsubTopics.Set(float64(topicCount))
}

// SetSymbolSubscribers records the subscriber count for one symbol.
func SetSymbolSubscribers(symbol string, count int) {
	pubsubSubscribers.WithLabelValues(symbol).Set(float64(count))
}

// RecordTickPublished increments the published-tick counter for symbol.
func RecordTickPublished(symbol string) {
	ticksPublished.WithLabelValues(symbol).Inc()
}

// RecordAdminEventPublished increments the admin event counter for eventType.
func RecordAdminEventPublished(eventType string) {
	adminEventsPublished.WithLabelValues(eventType).Inc()
}

// BroadcastStateValue maps a broadcast controller state name to the
// numeric gauge value used by SetBroadcastState.
func BroadcastStateValue(state string) float64 {
	switch state {
	case "running":
		return 2
	case "paused":
		return 1
	default:
		return 0
	}
}

// SetBroadcastState records the controller's current state.
func SetBroadcastState(state string) {
	broadcastState.Set(BroadcastStateValue(state))
}

// RecordHTTPRequest records one completed HTTP request.
func RecordHTTPRequest(route, method, status string, duration time.Duration) {
	httpRequests.WithLabelValues(route, method, status).Inc()
	httpRequestDuration.WithLabelValues(route, method).Observe(float64(duration.Milliseconds()))
}
