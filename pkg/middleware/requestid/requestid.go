// Package requestid tags every request with an id shared by logs, errors and
// response headers.
package requestid

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/nimburion/storefront/pkg/middleware"
	"github.com/nimburion/storefront/pkg/server/router"
)

// RequestIDHeader is the HTTP header name for request ID.
const RequestIDHeader = "X-Request-ID"

// maxIDLength bounds ids accepted from clients.
const maxIDLength = 128

// RequestID creates middleware that generates or extracts request IDs.
// A usable X-Request-ID header is kept, otherwise a UUID is generated. The id
// is echoed in the response header and stored in the request context.
func RequestID() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			requestID := strings.TrimSpace(c.Request().Header.Get(RequestIDHeader))
			if !usable(requestID) {
				requestID = uuid.NewString()
			}

			c.Set(string(middleware.RequestIDKey), requestID)
			c.Response().Header().Set(RequestIDHeader, requestID)
			c.SetRequest(c.Request().WithContext(middleware.WithRequestID(c.Request().Context(), requestID)))

			return next(c)
		}
	}
}

// GetRequestID extracts the request ID from a context.
// Returns empty string if no request ID is found.
func GetRequestID(ctx context.Context) string {
	return middleware.RequestIDFrom(ctx)
}

func usable(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return false
		}
	}
	return true
}
