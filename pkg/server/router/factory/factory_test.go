package factory

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nimburion/storefront/pkg/server/router"
)

func TestNewRouter_ValidTypes(t *testing.T) {
	types := []string{"gin", "gorilla", "", " GORILLA "}
	for _, typ := range types {
		t.Run(typ, func(t *testing.T) {
			r, err := NewRouter(typ)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if r == nil {
				t.Fatal("expected non-nil router")
			}
		})
	}
}

func TestNewRouter_InvalidType(t *testing.T) {
	_, err := NewRouter("nethttp")
	if err == nil {
		t.Fatal("expected error for invalid type")
	}
	msg := err.Error()
	for _, typ := range []string{"gin", "gorilla"} {
		if !strings.Contains(msg, typ) {
			t.Fatalf("expected error to include %q, got %q", typ, msg)
		}
	}
}

func TestNewRouter_ForwardsOptions(t *testing.T) {
	for _, typ := range SupportedTypes() {
		t.Run(typ, func(t *testing.T) {
			r, err := NewRouter(typ, router.WithErrorHandler(func(c router.Context, err error) {
				_ = c.String(http.StatusServiceUnavailable, err.Error())
			}))
			if err != nil {
				t.Fatal(err)
			}
			r.GET("/x", func(router.Context) error { return errors.New("store down") })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
			if w.Code != http.StatusServiceUnavailable || w.Body.String() != "store down" {
				t.Fatalf("got %d %q", w.Code, w.Body.String())
			}
		})
	}
}
