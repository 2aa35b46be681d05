package router_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nimburion/storefront/pkg/server/router"
	ginadapter "github.com/nimburion/storefront/pkg/server/router/gin"
	gorillaadapter "github.com/nimburion/storefront/pkg/server/router/gorilla"
)

func TestRouterImplementations_ConformToInterface(t *testing.T) {
	var _ router.Router = ginadapter.NewRouter()
	var _ router.Router = gorillaadapter.NewRouter()
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name        string
		body        string
		contentType string
		max         int64
		wantErr     string
	}{
		{name: "ok", body: `{"name":"tee"}`, contentType: "application/json; charset=utf-8"},
		{name: "empty", body: "", contentType: "application/json", wantErr: "request body is empty"},
		{name: "content type", body: `{}`, contentType: "text/plain", wantErr: "unsupported content type"},
		{name: "malformed", body: `{"name":`, contentType: "application/json", wantErr: "malformed json"},
		{name: "wrong type", body: `{"name":3}`, contentType: "application/json", wantErr: "invalid json"},
		{name: "too large", body: `{"name":"a long name"}`, contentType: "application/json", max: 8, wantErr: "exceeds 8 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			var got payload
			err := router.DecodeJSON(req, &got, tt.max)
			if tt.wantErr == "" {
				if err != nil || got.Name != "tee" {
					t.Fatalf("DecodeJSON() = %v, %+v", err, got)
				}
				return
			}
			var bindErr *router.BindError
			if !errors.As(err, &bindErr) {
				t.Fatalf("error = %v, want *BindError", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %q, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewConfig(t *testing.T) {
	cfg := router.NewConfig(router.WithErrorHandler(nil), router.WithMaxBodyBytes(64))
	if cfg.ErrorHandler == nil {
		t.Fatal("nil handler must keep the default")
	}
	if cfg.MaxBodyBytes != 64 {
		t.Fatalf("MaxBodyBytes = %d", cfg.MaxBodyBytes)
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) router.MiddlewareFunc {
		return func(next router.HandlerFunc) router.HandlerFunc {
			return func(c router.Context) error {
				order = append(order, name)
				return next(c)
			}
		}
	}
	h := router.Chain(func(router.Context) error {
		order = append(order, "handler")
		return nil
	}, []router.MiddlewareFunc{mw("g1"), mw("g2")}, []router.MiddlewareFunc{mw("r1")})
	if err := h(nil); err != nil {
		t.Fatal(err)
	}
	if strings.Join(order, ",") != "g1,g2,r1,handler" {
		t.Fatalf("order = %v", order)
	}
}
