// Package metrics records Prometheus HTTP metrics per route.
package metrics

import (
	"time"

	"github.com/nimburion/storefront/pkg/observability/metrics"
	"github.com/nimburion/storefront/pkg/server/router"
)

// Metrics creates middleware that records Prometheus metrics for HTTP requests:
// the duration histogram and request counter labelled by method, route pattern
// and status, plus the in-flight gauge. Requests without a route pattern are
// counted under metrics.RouteUnmatched.
func Metrics() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			metrics.IncrementInFlight()
			defer metrics.DecrementInFlight()

			start := time.Now()
			err := next(c)

			metrics.RecordHTTPMetrics(
				c.Request().Method,
				routePattern(c),
				router.Status(c, err),
				time.Since(start),
			)
			return err
		}
	}
}

func routePattern(c router.Context) string {
	if route, ok := c.Get(router.RouteKey).(string); ok {
		return route
	}
	return ""
}
