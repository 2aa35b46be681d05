package requestid

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nimburion/storefront/pkg/middleware"
	"github.com/nimburion/storefront/pkg/server/router"
	ginrouter "github.com/nimburion/storefront/pkg/server/router/gin"
)

var uuidPattern = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)

// serve runs one GET /test through RequestID and returns the id seen by the
// handler and the recorded response.
func serve(t *testing.T, header string) (string, *httptest.ResponseRecorder) {
	t.Helper()
	r := ginrouter.NewRouter()
	r.Use(RequestID())
	var seen string
	r.GET("/test", func(c router.Context) error {
		seen = GetRequestID(c.Request().Context())
		if got, _ := c.Get(string(middleware.RequestIDKey)).(string); got != seen {
			t.Errorf("context value %q differs from request context %q", got, seen)
		}
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if header != "" {
		req.Header.Set(RequestIDHeader, header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return seen, rec
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		wantKeep bool
	}{
		{name: "generated when absent", header: ""},
		{name: "kept when present", header: "existing-request-id-123", wantKeep: true},
		{name: "replaced when it holds spaces", header: "two words"},
		{name: "replaced when too long", header: strings.Repeat("a", maxIDLength+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen, rec := serve(t, tt.header)
			if got := rec.Header().Get(RequestIDHeader); got != seen {
				t.Fatalf("response header %q, handler saw %q", got, seen)
			}
			if tt.wantKeep {
				if seen != tt.header {
					t.Fatalf("expected %q to be kept, got %q", tt.header, seen)
				}
				return
			}
			if !uuidPattern.MatchString(seen) {
				t.Fatalf("expected a generated UUID, got %q", seen)
			}
		})
	}
}

func TestRequestID_PropagatesAcrossMiddleware(t *testing.T) {
	r := ginrouter.NewRouter()
	var inMiddleware, inHandler string
	r.Use(RequestID(), func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			inMiddleware = GetRequestID(c.Request().Context())
			return next(c)
		}
	})
	r.GET("/test", func(c router.Context) error {
		inHandler = GetRequestID(c.Request().Context())
		return c.String(http.StatusOK, "ok")
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))
	if inMiddleware == "" || inMiddleware != inHandler {
		t.Fatalf("middleware saw %q, handler saw %q", inMiddleware, inHandler)
	}
}

func TestGetRequestID_Empty(t *testing.T) {
	if got := GetRequestID(nil); got != "" { //nolint:staticcheck
		t.Fatalf("expected empty id for nil context, got %q", got)
	}
}

func TestProperty_PrintableIDsArePreserved(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	genID := gen.AlphaString().SuchThat(func(s string) bool {
		return len(s) > 0 && len(s) <= maxIDLength
	})

	properties.Property("client ids round trip through header and context", prop.ForAll(
		func(id string) bool {
			seen, rec := serve(t, id)
			return seen == id && rec.Header().Get(RequestIDHeader) == id
		},
		genID,
	))

	properties.Property("generated ids are unique", prop.ForAll(
		func(n int) bool {
			ids := make(map[string]struct{}, n)
			for i := 0; i < n; i++ {
				seen, _ := serve(t, "")
				if _, dup := ids[seen]; dup {
					return false
				}
				ids[seen] = struct{}{}
			}
			return true
		},
		gen.IntRange(2, 10),
	))

	properties.TestingRun(t)
}
