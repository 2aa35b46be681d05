// Package securityheaders hardens API responses for browser clients.
package securityheaders

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/nimburion/storefront/pkg/repository/document"
	"github.com/nimburion/storefront/pkg/server/router"
)

// Config defines the headers sent with every API response.
type Config struct {
	Enabled bool
	// AllowedHosts restricts the Host header. Empty allows any host.
	AllowedHosts []string
	// STSSeconds is the HSTS max-age, sent on secure requests only.
	STSSeconds int64
	// TrustForwardedProto treats X-Forwarded-Proto: https as a secure request.
	TrustForwardedProto bool
	// ContentSecurityPolicy for JSON responses; nothing is meant to render them.
	ContentSecurityPolicy string
	ReferrerPolicy        string
}

// DefaultConfig returns the API profile.
func DefaultConfig() Config {
	return Config{
		Enabled:               true,
		STSSeconds:            31536000,
		TrustForwardedProto:   true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	}
}

// Middleware applies security headers. Requests for hosts outside
// AllowedHosts fail as Forbidden.
func Middleware(cfg Config) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if !cfg.Enabled {
				return next(c)
			}
			req := c.Request()
			if !hostAllowed(req, cfg.AllowedHosts) {
				return document.Errorf(document.Forbidden, "host", "host %q is not served here", stripPort(req.Host))
			}

			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Cache-Control", "no-store")
			if cfg.ContentSecurityPolicy != "" {
				h.Set("Content-Security-Policy", cfg.ContentSecurityPolicy)
			}
			if cfg.ReferrerPolicy != "" {
				h.Set("Referrer-Policy", cfg.ReferrerPolicy)
			}
			if cfg.STSSeconds > 0 && isSecure(req, cfg.TrustForwardedProto) {
				h.Set("Strict-Transport-Security", "max-age="+strconv.FormatInt(cfg.STSSeconds, 10)+"; includeSubDomains")
			}
			return next(c)
		}
	}
}

func hostAllowed(req *http.Request, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	host := stripPort(req.Host)
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), host) {
			return true
		}
	}
	return false
}

func isSecure(req *http.Request, trustProxy bool) bool {
	if req.TLS != nil || strings.EqualFold(req.URL.Scheme, "https") {
		return true
	}
	return trustProxy && strings.EqualFold(strings.TrimSpace(req.Header.Get("X-Forwarded-Proto")), "https")
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
