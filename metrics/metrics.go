package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NoTarget labels requests that matched no target.
const NoTarget = "none"

// Define Prometheus metrics
var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of HTTP requests processed, partitioned by target, method and status code.",
		},
		[]string{"target", "method", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"target", "method", "status_code"},
	)

	dataTransferred = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_data_transferred_bytes_total",
			Help: "Total amount of data transferred in bytes, partitioned by direction (inbound or outbound).",
		},
		[]string{"direction"},
	)

	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_active_connections",
			Help: "Number of requests and upgraded connections currently being handled.",
		},
	)

	payloadTooLarge = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_payload_too_large_total",
			Help: "Requests answered 413 because the body exceeded the target's size cap.",
		},
		[]string{"target"},
	)

	upstreamUnreachable = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_upstream_unreachable_total",
			Help: "Requests answered 502 because the upstream refused the connection.",
		},
		[]string{"target"},
	)

	upgradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_upgrades_total",
			Help: "Connection upgrades forwarded, partitioned by target.",
		},
		[]string{"target"},
	)

	initOnce sync.Once
)

// InitMetrics registers the collectors with the default registry. Calling it
// more than once is harmless.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpRequestsTotal)
		prometheus.MustRegister(httpRequestDuration)
		prometheus.MustRegister(dataTransferred)
		prometheus.MustRegister(activeConnections)
		prometheus.MustRegister(payloadTooLarge)
		prometheus.MustRegister(upstreamUnreachable)
		prometheus.MustRegister(upgradesTotal)
	})
}

// RecordRequest records metrics for each request
func RecordRequest(target, method string, statusCode int, duration float64) {
	statusCodeStr := statusLabel(statusCode)

	httpRequestsTotal.WithLabelValues(target, method, statusCodeStr).Inc()
	httpRequestDuration.WithLabelValues(target, method, statusCodeStr).Observe(duration)
}

// statusLabel names a status code, falling back to the number for codes
// without a standard text such as 499.
func statusLabel(statusCode int) string {
	if text := http.StatusText(statusCode); text != "" {
		return text
	}
	return strconv.Itoa(statusCode)
}

// RecordDataTransferred records the number of bytes transferred, partitioned by direction (inbound or outbound)
func RecordDataTransferred(direction string, numBytes int64) {
	if numBytes <= 0 {
		return
	}
	dataTransferred.WithLabelValues(direction).Add(float64(numBytes))
}

// UpdateActiveConnections increments or decrements the number of active connections
func UpdateActiveConnections(increment bool) {
	if increment {
		activeConnections.Inc()
	} else {
		activeConnections.Dec()
	}
}

// RecordPayloadTooLarge counts a 413 answered by the gateway.
func RecordPayloadTooLarge(target string) {
	payloadTooLarge.WithLabelValues(target).Inc()
}

// RecordUpstreamUnreachable counts a 502 answered by the gateway.
func RecordUpstreamUnreachable(target string) {
	upstreamUnreachable.WithLabelValues(target).Inc()
}

// RecordUpgrade counts a forwarded connection upgrade.
func RecordUpgrade(target string) {
	upgradesTotal.WithLabelValues(target).Inc()
}

// ExposeMetricsHandler returns a handler that serves the metrics for Prometheus
func ExposeMetricsHandler() http.Handler {
	return promhttp.Handler()
}
