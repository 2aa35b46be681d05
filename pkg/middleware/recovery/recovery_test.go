package recovery

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nimburion/storefront/pkg/middleware/requestid"
	"github.com/nimburion/storefront/pkg/middleware/testutil"
	"github.com/nimburion/storefront/pkg/server/router"
	ginrouter "github.com/nimburion/storefront/pkg/server/router/gin"
)

func TestRecovery_CatchesPanic(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{name: "string", value: "something went wrong"},
		{name: "error", value: errors.New("nil map write")},
		{name: "int", value: 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &testutil.MockLogger{}
			r := ginrouter.NewRouter()
			var chainErr error
			r.Use(func(next router.HandlerFunc) router.HandlerFunc {
				return func(c router.Context) error {
					chainErr = next(c)
					return chainErr
				}
			}, requestid.RequestID(), Recovery(log))
			r.GET("/panic", func(c router.Context) error {
				panic(tt.value)
			})

			req := httptest.NewRequest(http.MethodGet, "/panic", nil)
			req.Header.Set(requestid.RequestIDHeader, "req-7")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", w.Code)
			}
			var body map[string]any
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != "internal_server_error" || body["request_id"] != "req-7" {
				t.Errorf("unexpected body %v", body)
			}

			var pe *PanicError
			if !errors.As(chainErr, &pe) || pe.Value != tt.value {
				t.Errorf("outer middleware saw %v", chainErr)
			}

			entry, ok := log.Find("panic recovered")
			if !ok || entry.Level != "error" {
				t.Fatalf("panic not logged: %+v", log.Entries())
			}
			if entry.Fields["request_id"] != "req-7" {
				t.Errorf("request_id = %v", entry.Fields["request_id"])
			}
			if stack, _ := entry.Fields["stack"].(string); !strings.Contains(stack, "panic") {
				t.Error("expected a stack trace")
			}
		})
	}
}

func TestRecovery_PassesThroughNormalRequests(t *testing.T) {
	log := &testutil.MockLogger{}
	r := ginrouter.NewRouter()
	r.Use(Recovery(log))
	r.GET("/ok", func(c router.Context) error {
		return c.String(http.StatusOK, "fine")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusOK || w.Body.String() != "fine" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}
	if len(log.Entries()) != 0 {
		t.Fatalf("unexpected log entries %+v", log.Entries())
	}
}

func TestRecovery_DoesNotRewriteStartedResponse(t *testing.T) {
	r := ginrouter.NewRouter()
	r.Use(Recovery(nil))
	r.GET("/partial", func(c router.Context) error {
		_ = c.String(http.StatusAccepted, "partial")
		panic("late failure")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/partial", nil))
	if w.Code != http.StatusAccepted || w.Body.String() != "partial" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}
}
