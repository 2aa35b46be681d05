// Package logging writes one structured entry per HTTP request.
package logging

import (
	"net"
	"strings"
	"time"

	"github.com/nimburion/storefront/pkg/auth"
	"github.com/nimburion/storefront/pkg/middleware"
	"github.com/nimburion/storefront/pkg/observability/logger"
	"github.com/nimburion/storefront/pkg/server/router"
)

// Mode defines logging verbosity for matching request paths.
type Mode string

const (
	// ModeOff disables request logging
	ModeOff Mode = "off"
	// ModeMinimal logs only the completion entry
	ModeMinimal Mode = "minimal"
	// ModeFull logs start and completion entries
	ModeFull Mode = "full"
)

// Log field names.
const (
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldRoute      = "route"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldDurationMS = "duration_ms"
	FieldRemoteAddr = "remote_addr"
	FieldUserID     = "user_id"
	FieldError      = "error"
)

// Config configures request logging middleware behavior.
type Config struct {
	Enabled              bool
	LogStart             bool
	ExcludedPathPrefixes []string
	PathPolicies         []PathPolicy
}

// PathPolicy configures a logging mode for a path prefix.
type PathPolicy struct {
	Prefix string
	Mode   Mode
}

// DefaultConfig logs every request except health probes, without start entries.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		ExcludedPathPrefixes: []string{"/healthz"},
	}
}

// Logging creates middleware with default configuration.
func Logging(log logger.Logger) router.MiddlewareFunc {
	return WithConfig(log, DefaultConfig())
}

// WithConfig creates request logging middleware.
//
// Completion entries are written at error level for 5xx responses, at warn
// level for 4xx and at info level otherwise. An error that left the response
// unwritten counts as 500. The handler error is passed through unchanged.
func WithConfig(log logger.Logger, cfg Config) router.MiddlewareFunc {
	log = logger.OrNop(log)
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			req := c.Request()
			mode := cfg.modeForPath(req.URL.Path)
			if mode == ModeOff {
				return next(c)
			}

			start := time.Now()
			if cfg.LogStart && mode == ModeFull {
				log.Debug("request started",
					FieldRequestID, middleware.RequestIDFrom(req.Context()),
					FieldMethod, req.Method,
					FieldPath, req.URL.Path,
					FieldRemoteAddr, remoteHost(req.RemoteAddr),
				)
			}

			err := next(c)

			// Handlers may replace the request; read ids from the final one.
			req = c.Request()
			status := router.Status(c, err)
			fields := []any{
				FieldRequestID, middleware.RequestIDFrom(req.Context()),
				FieldMethod, req.Method,
				FieldRoute, router.Route(c),
				FieldStatus, status,
				FieldDurationMS, time.Since(start).Milliseconds(),
				FieldRemoteAddr, remoteHost(req.RemoteAddr),
			}
			if claims := auth.GetClaims(req.Context()); claims != nil {
				fields = append(fields, FieldUserID, claims.Subject)
			}
			if err != nil {
				fields = append(fields, FieldError, err.Error())
			}

			switch {
			case status >= 500:
				log.Error("request completed", fields...)
			case status >= 400:
				log.Warn("request completed", fields...)
			default:
				log.Info("request completed", fields...)
			}
			return err
		}
	}
}

func (c Config) modeForPath(path string) Mode {
	if !c.Enabled {
		return ModeOff
	}
	for _, prefix := range c.ExcludedPathPrefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return ModeOff
		}
	}
	best, bestLen := ModeFull, -1
	for _, p := range c.PathPolicies {
		if strings.HasPrefix(path, p.Prefix) && len(p.Prefix) > bestLen {
			best, bestLen = parseMode(p.Mode), len(p.Prefix)
		}
	}
	return best
}

func parseMode(mode Mode) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(string(mode)))) {
	case ModeOff:
		return ModeOff
	case ModeMinimal:
		return ModeMinimal
	default:
		return ModeFull
	}
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
