package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RouteUnmatched labels requests that matched no registered route, so
// scanners probing random paths add one series instead of one per path.
const RouteUnmatched = "unmatched"

// MethodOther labels requests whose method the API never serves.
const MethodOther = "OTHER"

// latencyBuckets cover store round trips up to the request timeout.
var latencyBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 15}

var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

var (
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Storefront API latency by method, route pattern and status",
			Buckets: latencyBuckets,
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Storefront API requests by method, route pattern and status",
		},
		[]string{"method", "path", "status"},
	)

	// Feed streams stay in flight for their whole connection.
	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Requests being served, open feed streams included",
		},
	)
)

// RecordHTTPMetrics observes one finished request. route is the route
// pattern; an empty route is recorded as RouteUnmatched.
func RecordHTTPMetrics(method, route string, status int, duration time.Duration) {
	if !knownMethods[method] {
		method = MethodOther
	}
	if route == "" {
		route = RouteUnmatched
	}
	labels := prometheus.Labels{"method": method, "path": route, "status": strconv.Itoa(status)}
	httpRequestDuration.With(labels).Observe(duration.Seconds())
	httpRequestsTotal.With(labels).Inc()
}

// IncrementInFlight marks a request as started.
func IncrementInFlight() { httpRequestsInFlight.Inc() }

// DecrementInFlight marks a request as finished.
func DecrementInFlight() { httpRequestsInFlight.Dec() }
