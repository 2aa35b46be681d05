// Package cors answers browser cross origin checks for the storefront API.
package cors

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nimburion/storefront/pkg/middleware/requestid"
	"github.com/nimburion/storefront/pkg/server/router"
)

// Config holds CORS behavior.
type Config struct {
	Enabled bool
	// AllowOrigins lists exact origins, "*" or single wildcard patterns such
	// as https://*.example.com.
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultConfig returns a disabled configuration with the methods and headers
// the storefront API uses.
func DefaultConfig() Config {
	return Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", requestid.RequestIDHeader},
		ExposeHeaders: []string{requestid.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
}

// Middleware sets CORS headers for allowed origins and answers preflight
// requests with 204. Preflights from other origins get 403; plain requests
// from other origins pass through without CORS headers.
func Middleware(cfg Config) router.MiddlewareFunc {
	cfg = normalize(cfg)
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			req := c.Request()
			origin := req.Header.Get("Origin")
			if !cfg.Enabled || origin == "" {
				return next(c)
			}

			header := c.Response().Header()
			if !cfg.AllowsOrigin(origin) {
				if isPreflight(req) {
					c.Response().WriteHeader(http.StatusForbidden)
					return nil
				}
				return next(c)
			}

			header.Add("Vary", "Origin")
			if cfg.allowsAny() && !cfg.AllowCredentials {
				header.Set("Access-Control-Allow-Origin", "*")
			} else {
				header.Set("Access-Control-Allow-Origin", origin)
			}
			if cfg.AllowCredentials {
				header.Set("Access-Control-Allow-Credentials", "true")
			}
			if len(cfg.ExposeHeaders) > 0 {
				header.Set("Access-Control-Expose-Headers", strings.Join(cfg.ExposeHeaders, ", "))
			}

			if !isPreflight(req) {
				return next(c)
			}
			header.Add("Vary", "Access-Control-Request-Method")
			header.Add("Vary", "Access-Control-Request-Headers")
			header.Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowMethods, ", "))
			if len(cfg.AllowHeaders) > 0 {
				header.Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowHeaders, ", "))
			} else if requested := req.Header.Get("Access-Control-Request-Headers"); requested != "" {
				header.Set("Access-Control-Allow-Headers", requested)
			}
			if cfg.MaxAge > 0 {
				header.Set("Access-Control-Max-Age", strconv.FormatInt(int64(cfg.MaxAge/time.Second), 10))
			}
			c.Response().WriteHeader(http.StatusNoContent)
			return nil
		}
	}
}

// AllowsOrigin reports whether origin matches the allow list.
func (cfg Config) AllowsOrigin(origin string) bool {
	if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
		return false
	}
	for _, allowed := range cfg.AllowOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || strings.EqualFold(allowed, origin) || wildcardMatch(allowed, origin) {
			return true
		}
	}
	return false
}

func (cfg Config) allowsAny() bool {
	for _, allowed := range cfg.AllowOrigins {
		if strings.TrimSpace(allowed) == "*" {
			return true
		}
	}
	return false
}

func normalize(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.AllowMethods == nil {
		cfg.AllowMethods = defaults.AllowMethods
	}
	if cfg.AllowHeaders == nil {
		cfg.AllowHeaders = defaults.AllowHeaders
	}
	if cfg.ExposeHeaders == nil {
		cfg.ExposeHeaders = defaults.ExposeHeaders
	}
	methods := make([]string, len(cfg.AllowMethods))
	for i, m := range cfg.AllowMethods {
		methods[i] = strings.ToUpper(strings.TrimSpace(m))
	}
	cfg.AllowMethods = methods
	return cfg
}

func isPreflight(req *http.Request) bool {
	return req.Method == http.MethodOptions && req.Header.Get("Access-Control-Request-Method") != ""
}

func wildcardMatch(pattern, value string) bool {
	if strings.Count(pattern, "*") != 1 {
		return false
	}
	prefix, suffix, _ := strings.Cut(strings.ToLower(pattern), "*")
	value = strings.ToLower(value)
	return len(value) > len(prefix)+len(suffix) &&
		strings.HasPrefix(value, prefix) &&
		strings.HasSuffix(value, suffix)
}
