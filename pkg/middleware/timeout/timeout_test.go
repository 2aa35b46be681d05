package timeout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nimburion/storefront/pkg/controller"
	"github.com/nimburion/storefront/pkg/repository/document"
	"github.com/nimburion/storefront/pkg/server/router"
	ginrouter "github.com/nimburion/storefront/pkg/server/router/gin"
)

func newRouter(cfg Config, h router.HandlerFunc) (router.Router, *error) {
	r := ginrouter.NewRouter()
	var seen error
	r.Use(func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			seen = next(c)
			return seen
		}
	}, controller.WriteErrors(), Middleware(cfg))
	r.GET("/v1/products", h)
	r.GET("/healthz", h)
	return r, &seen
}

func waitForDeadline(c router.Context) error {
	<-c.Request().Context().Done()
	// Stores report a cancelled call as an unavailable backend.
	return document.Wrap(document.BackendUnavailable, "find", c.Request().Context().Err())
}

func TestMiddleware_DeadlineExceededReturns504(t *testing.T) {
	r, seen := newRouter(Config{Enabled: true, Default: 5 * time.Millisecond}, waitForDeadline)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/products", nil))

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "deadline_exceeded") {
		t.Errorf("body = %s", rec.Body.String())
	}
	if !errors.Is(*seen, context.DeadlineExceeded) {
		t.Errorf("outer middleware saw %v", *seen)
	}
}

func TestMiddleware_OtherErrorsPassThrough(t *testing.T) {
	r, _ := newRouter(Config{Enabled: true, Default: time.Second}, func(c router.Context) error {
		return document.Errorf(document.NotFound, "get", "missing")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/products", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestMiddleware_Bypass(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		path string
	}{
		{name: "disabled", cfg: Config{Default: time.Millisecond}, path: "/v1/products"},
		{name: "excluded prefix", cfg: Config{Enabled: true, Default: time.Millisecond, ExcludedPathPrefixes: []string{"/healthz"}}, path: "/healthz"},
		{name: "policy off", cfg: Config{Enabled: true, Default: time.Millisecond, PathPolicies: []PathPolicy{{Prefix: "/v1", Mode: "OFF"}}}, path: "/v1/products"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newRouter(tt.cfg, func(c router.Context) error {
				if _, ok := c.Request().Context().Deadline(); ok {
					return errors.New("unexpected deadline")
				}
				return c.String(http.StatusOK, "ok")
			})
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
		})
	}
}
