package router_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nimburion/storefront/pkg/server/router"
	ginadapter "github.com/nimburion/storefront/pkg/server/router/gin"
	gorillaadapter "github.com/nimburion/storefront/pkg/server/router/gorilla"
)

func benchmarkRouter(b *testing.B, name string, create func() router.Router) {
	b.Helper()
	r := create()
	r.Use(func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			c.Set("mw", "1")
			return next(c)
		}
	})
	r.GET("/v1/products/:id", func(c router.Context) error {
		_ = c.Param("id")
		_ = c.Query("cursor")
		_ = c.Get("mw")
		return c.JSON(http.StatusOK, map[string]string{"id": c.Param("id")})
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/products/42?cursor=x", nil)

	b.Run(name, func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != http.StatusOK {
				b.Fatalf("unexpected status: %d", w.Code)
			}
		}
	})
}

func BenchmarkRouterAdapters(b *testing.B) {
	benchmarkRouter(b, "gin", func() router.Router { return ginadapter.NewRouter() })
	benchmarkRouter(b, "gorilla", func() router.Router { return gorillaadapter.NewRouter() })
}
