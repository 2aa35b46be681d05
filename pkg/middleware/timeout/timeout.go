// Package timeout bounds how long a request may spend in the catalog and its
// document store.
package timeout

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nimburion/storefront/pkg/controller"
	"github.com/nimburion/storefront/pkg/middleware"
	"github.com/nimburion/storefront/pkg/server/router"
)

// Mode defines timeout behavior for matching request paths.
type Mode string

const (
	ModeOff Mode = "off"
	ModeOn  Mode = "on"
)

// Config configures request timeout middleware behavior.
type Config struct {
	Enabled              bool
	Default              time.Duration
	ExcludedPathPrefixes []string
	PathPolicies         []PathPolicy
}

// PathPolicy configures timeout mode for a path prefix.
type PathPolicy struct {
	Prefix string
	Mode   Mode
}

// DefaultConfig returns default timeout middleware behavior.
func DefaultConfig() Config {
	return Config{
		Default:              15 * time.Second,
		ExcludedPathPrefixes: []string{"/healthz", "/metrics"},
	}
}

// Middleware puts a deadline on the request context. A handler that fails
// after the deadline passed, without writing, gets a 504. The handler error is
// still returned so outer middleware can log it.
//
// Register it after controller.WriteErrors so the 504 is written first.
func Middleware(cfg Config) router.MiddlewareFunc {
	normalized := normalize(cfg)
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if normalized.modeForPath(c.Request().URL.Path) == ModeOff {
				return next(c)
			}

			reqCtx, cancel := context.WithTimeout(c.Request().Context(), normalized.Default)
			defer cancel()

			c.SetRequest(c.Request().WithContext(reqCtx))
			err := next(c)
			if err == nil || c.Response().Written() || !isDeadlineExceeded(err, reqCtx.Err()) {
				return err
			}
			_ = c.JSON(http.StatusGatewayTimeout, controller.ErrorResponse{
				Error:     "gateway_timeout",
				Code:      "deadline_exceeded",
				Message:   "request timed out after " + normalized.Default.String(),
				RequestID: middleware.RequestIDFrom(c.Request().Context()),
			})
			return err
		}
	}
}

func normalize(cfg Config) Config {
	normalized := cfg
	policies := make([]PathPolicy, len(cfg.PathPolicies))
	for i, p := range cfg.PathPolicies {
		policies[i] = PathPolicy{Prefix: p.Prefix, Mode: parseMode(p.Mode)}
	}
	normalized.PathPolicies = policies
	if normalized.Default <= 0 {
		normalized.Default = DefaultConfig().Default
	}
	return normalized
}

func (cfg Config) modeForPath(path string) Mode {
	if !cfg.Enabled {
		return ModeOff
	}
	for _, prefix := range cfg.ExcludedPathPrefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return ModeOff
		}
	}

	bestLen := -1
	bestMode := ModeOn
	for _, policy := range cfg.PathPolicies {
		if strings.TrimSpace(policy.Prefix) == "" {
			continue
		}
		if strings.HasPrefix(path, policy.Prefix) && len(policy.Prefix) > bestLen {
			bestLen = len(policy.Prefix)
			bestMode = policy.Mode
		}
	}
	return bestMode
}

func parseMode(mode Mode) Mode {
	if strings.EqualFold(strings.TrimSpace(string(mode)), string(ModeOff)) {
		return ModeOff
	}
	return ModeOn
}

func isDeadlineExceeded(err, reqErr error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(reqErr, context.DeadlineExceeded)
}
