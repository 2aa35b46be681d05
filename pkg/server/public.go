package server

import (
	"strings"

	"github.com/nimburion/storefront/pkg/api"
	"github.com/nimburion/storefront/pkg/config"
	"github.com/nimburion/storefront/pkg/controller"
	"github.com/nimburion/storefront/pkg/middleware/compression"
	"github.com/nimburion/storefront/pkg/middleware/cors"
	"github.com/nimburion/storefront/pkg/middleware/logging"
	"github.com/nimburion/storefront/pkg/middleware/metrics"
	"github.com/nimburion/storefront/pkg/middleware/ratelimit"
	"github.com/nimburion/storefront/pkg/middleware/recovery"
	"github.com/nimburion/storefront/pkg/middleware/requestid"
	"github.com/nimburion/storefront/pkg/middleware/securityheaders"
	timeoutmiddleware "github.com/nimburion/storefront/pkg/middleware/timeout"
	"github.com/nimburion/storefront/pkg/middleware/tracing"
	"github.com/nimburion/storefront/pkg/observability/logger"
	"github.com/nimburion/storefront/pkg/server/router"
	"github.com/nimburion/storefront/pkg/server/router/factory"
)

// PublicAPIServer serves the catalog API.
type PublicAPIServer struct {
	*Server
}

// NewRouter creates the configured router adapter, rendering handler errors
// as JSON and capping request bodies at http.max_request_size.
func NewRouter(cfg *config.Config) (router.Router, error) {
	return factory.NewRouter(cfg.RouterType,
		router.WithErrorHandler(controller.WriteError),
		router.WithMaxBodyBytes(cfg.HTTP.MaxRequestSize),
	)
}

type namedMiddleware struct {
	name string
	fn   router.MiddlewareFunc
}

// publicMiddleware returns the global stack in execution order. Logging,
// tracing and metrics wrap recovery so panics are observed as 500s, and
// WriteErrors sits inside them so they see the final status. The timeout
// runs innermost so its 504 wins over the generic error rendering.
func publicMiddleware(cfg *config.Config, log logger.Logger) []namedMiddleware {
	probePaths := []string{HealthPath, ReadyPath, cfg.Observability.MetricsPath}

	headersCfg := securityheaders.DefaultConfig()
	headersCfg.AllowedHosts = cfg.HTTP.AllowedHosts

	corsCfg := cors.DefaultConfig()
	corsCfg.Enabled = cfg.CORS.Enabled
	corsCfg.AllowOrigins = cfg.CORS.AllowOrigins
	if cfg.CORS.MaxAge > 0 {
		corsCfg.MaxAge = cfg.CORS.MaxAge
	}

	stack := []namedMiddleware{
		{name: "request_id", fn: requestid.RequestID()},
		{name: "security_headers", fn: securityheaders.Middleware(headersCfg)},
		{name: "cors", fn: cors.Middleware(corsCfg)},
		{name: "logging", fn: logging.WithConfig(log, logging.Config{
			Enabled:              true,
			ExcludedPathPrefixes: probePaths,
		})},
	}
	if cfg.Observability.TracingEnabled {
		stack = append(stack, namedMiddleware{name: "tracing", fn: tracing.Tracing(tracing.Config{
			TracerName:           cfg.Service.Name,
			ExcludedPathPrefixes: probePaths,
		})})
	}
	if cfg.Observability.MetricsEnabled {
		stack = append(stack, namedMiddleware{name: "metrics", fn: metrics.Metrics()})
	}
	stack = append(stack, namedMiddleware{name: "recovery", fn: recovery.Recovery(log)})
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewTokenBucketLimiter(float64(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
		stack = append(stack, namedMiddleware{name: "rate_limit", fn: ratelimit.RateLimit(limiter, ratelimit.Config{
			ExcludedPathPrefixes: probePaths,
		})})
	}
	if comp := cfg.HTTP.Compression; comp.Enabled {
		compCfg := compression.DefaultConfig()
		compCfg.MinSize = comp.MinSize
		compCfg.GzipLevel = comp.GzipLevel
		compCfg.BrotliLevel = comp.BrotliLevel
		compCfg.ExcludedPathPrefixes = append([]string{api.FeedPrefix}, probePaths...)
		stack = append(stack, namedMiddleware{name: "compression", fn: compression.Middleware(compCfg)})
	}
	stack = append(stack, namedMiddleware{name: "write_errors", fn: controller.WriteErrors()})
	if cfg.HTTP.RequestTimeout > 0 {
		untimed := probePaths
		if cfg.Feed.Enabled {
			untimed = append(untimed, api.FeedPrefix)
		}
		stack = append(stack, namedMiddleware{name: "timeout", fn: timeoutmiddleware.Middleware(timeoutmiddleware.Config{
			Enabled:              true,
			Default:              cfg.HTTP.RequestTimeout,
			ExcludedPathPrefixes: untimed,
		})})
	}
	return stack
}

// Cosa fa: applica lo stack di middleware pubblico al router e crea il server API.
// Cosa NON fa: non registra le rotte del catalogo; le aggiunge il chiamante (api.Register).
// Esempio minimo: srv := server.NewPublicAPIServer(cfg, r, log)
func NewPublicAPIServer(cfg *config.Config, r router.Router, log logger.Logger) *PublicAPIServer {
	log = logger.OrNop(log)
	stack := publicMiddleware(cfg, log)
	funcs := make([]router.MiddlewareFunc, 0, len(stack))
	names := make([]string, 0, len(stack))
	for _, m := range stack {
		funcs = append(funcs, m.fn)
		names = append(names, m.name)
	}
	log.Debug("active middleware stack", "middlewares", strings.Join(names, ", "))
	r.Use(funcs...)

	return &PublicAPIServer{Server: NewServer(Config{
		Port:            cfg.HTTP.Port,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		IdleTimeout:     cfg.HTTP.IdleTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}, r, log)}
}
