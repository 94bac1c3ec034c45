// Package metrics exposes Prometheus instrumentation for the relay.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//nolint:gochecknoglobals // Collectors register once with the default registry.
var (
	relayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayd",
		Subsystem: "relay",
		Name:      "requests_total",
		Help:      "Outbound requests relayed, labeled by method and captured status.",
	}, []string{"method", "status"})

	relayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "relayd",
		Subsystem: "relay",
		Name:      "duration_seconds",
		Help:      "Wall-clock duration of relayed requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	// HistoryWriteFailures counts best-effort history writes that failed.
	HistoryWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relayd",
		Subsystem: "history",
		Name:      "write_failures_total",
		Help:      "Best-effort history writes that failed.",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayd",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Requests served by the relayd API, labeled by method and status.",
	}, []string{"method", "status"})
)

// ObserveRelay records one relayed outbound call.
func ObserveRelay(method string, status int, duration time.Duration) {
	relayRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	relayDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveHTTPRequest records one served API request.
func ObserveHTTPRequest(method string, status int) {
	httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// Handler returns the Prometheus exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
