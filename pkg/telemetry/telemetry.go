// Package telemetry exposes the server's Prometheus metrics. Collectors
// are registered on the default registry and served by the ops listener's
// /metrics endpoint.
package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts dispatched HTTP requests by method and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "servlite_http_requests_total",
		Help: "HTTP requests processed, by method and status code.",
	}, []string{"method", "code"})

	// RequestDuration observes request handling latency.
	RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "servlite_http_request_duration_seconds",
		Help:    "Time spent handling a single HTTP request.",
		Buckets: prometheus.DefBuckets,
	})

	// ActiveConnections tracks connections currently registered with the
	// shutdown coordinator, by kind (http, websocket).
	ActiveConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "servlite_active_connections",
		Help: "Connections currently active, by kind.",
	}, []string{"kind"})

	// WSMessages counts WebSocket messages delivered to handlers.
	WSMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "servlite_ws_messages_total",
		Help: "WebSocket data messages delivered to the application handler.",
	})

	// RateLimited counts requests rejected by the rate limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "servlite_rate_limited_total",
		Help: "Requests rejected with 429 by the rate limiter.",
	})
)

// ObserveRequest records one finished HTTP exchange.
func ObserveRequest(method string, status int, d time.Duration) {
	HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	RequestDuration.Observe(d.Seconds())
}
