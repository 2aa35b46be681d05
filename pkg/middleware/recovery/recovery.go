// Package recovery turns handler panics into 500 responses.
package recovery

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/nimburion/storefront/pkg/middleware"
	"github.com/nimburion/storefront/pkg/observability/logger"
	"github.com/nimburion/storefront/pkg/server/router"
)

// PanicError is returned up the chain after a recovered panic so outer
// middleware records the request as failed.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Recovery creates middleware that recovers from panics in HTTP handlers.
// The panic is logged with its stack and, when nothing was written yet, the
// client gets the same 500 body as any other internal error.
func Recovery(log logger.Logger) router.MiddlewareFunc {
	log = logger.OrNop(log)
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				requestID := middleware.RequestIDFrom(c.Request().Context())
				log.Error("panic recovered",
					"request_id", requestID,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				if !c.Response().Written() {
					body := map[string]any{
						"error":      "internal_server_error",
						"code":       "internal",
						"message":    "an unexpected error occurred",
						"request_id": requestID,
					}
					if writeErr := c.JSON(http.StatusInternalServerError, body); writeErr != nil {
						log.Error("failed to send error response", "request_id", requestID, "error", writeErr)
					}
				}
				err = &PanicError{Value: r}
			}()
			return next(c)
		}
	}
}
