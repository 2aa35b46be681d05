package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"

	"github.com/nimburion/storefront/pkg/config"
	"github.com/nimburion/storefront/pkg/controller"
	"github.com/nimburion/storefront/pkg/health"
	"github.com/nimburion/storefront/pkg/middleware/logging"
	"github.com/nimburion/storefront/pkg/middleware/recovery"
	"github.com/nimburion/storefront/pkg/middleware/requestid"
	"github.com/nimburion/storefront/pkg/observability/logger"
	"github.com/nimburion/storefront/pkg/observability/metrics"
	"github.com/nimburion/storefront/pkg/server/router"
	"github.com/nimburion/storefront/pkg/version"
)

// Probe paths served by the management endpoints.
const (
	HealthPath  = "/healthz"
	ReadyPath   = "/readyz"
	VersionPath = "/version"
)

// Probes holds what the management endpoints report.
type Probes struct {
	Health      *health.Registry
	Metrics     *metrics.Registry
	MetricsPath string
	Version     version.Info
}

// RegisterProbes mounts liveness, readiness, version and, when a metrics
// registry is set, the Prometheus endpoint on r.
//
// Liveness always answers 200. Readiness answers 503 only when a dependency
// is unhealthy; a degraded one still reports ready.
func RegisterProbes(r router.Router, p Probes) {
	registry := p.Health
	if registry == nil {
		registry = health.NewRegistry()
	}
	r.GET(HealthPath, func(c router.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "alive"})
	})
	r.GET(ReadyPath, func(c router.Context) error {
		result := registry.Check(c.Request().Context())
		if !result.IsReady() {
			return c.JSON(http.StatusServiceUnavailable, result)
		}
		return c.JSON(http.StatusOK, result)
	})
	r.GET(VersionPath, func(c router.Context) error {
		return c.JSON(http.StatusOK, p.Version)
	})
	if p.Metrics != nil {
		path := p.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		handler := p.Metrics.Handler()
		r.GET(path, func(c router.Context) error {
			handler.ServeHTTP(c.Response(), c.Request())
			return nil
		})
	}
}

// ManagementServer serves the probes on their own port, away from public
// traffic.
type ManagementServer struct {
	*Server
}

// Cosa fa: crea il server di management con request id, logging e recovery,
// e monta /healthz, /readyz, /version e le metriche Prometheus.
// Cosa NON fa: non espone le API del catalogo; con mTLS attivo rifiuta i client senza certificato.
// Esempio minimo: srv, err := server.NewManagementServer(cfg.Management, r, log, probes)
func NewManagementServer(cfg config.ManagementConfig, r router.Router, log logger.Logger, probes Probes) (*ManagementServer, error) {
	log = logger.OrNop(log)
	r.Use(
		requestid.RequestID(),
		logging.WithConfig(log, logging.Config{
			Enabled:              true,
			ExcludedPathPrefixes: []string{HealthPath, ReadyPath, probes.MetricsPath},
		}),
		recovery.Recovery(log),
		controller.WriteErrors(),
	)

	serverCfg := Config{
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.ReadTimeout * 6,
	}
	if cfg.MTLSEnabled {
		tlsConfig, err := loadMTLSConfig(cfg.TLSCertFile, cfg.TLSKeyFile, cfg.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load management mTLS config: %w", err)
		}
		serverCfg.TLSConfig = tlsConfig
		log.Info("management mTLS enabled")
	}

	RegisterProbes(r, probes)
	return &ManagementServer{Server: NewServer(serverCfg, r, log)}, nil
}

// loadMTLSConfig builds a TLS config that requires client certificates
// signed by the CA in caFile.
func loadMTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	serverCert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate/key: %w", err)
	}
	caBytes, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("failed to parse CA certificate %s", caFile)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
