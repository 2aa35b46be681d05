package config

import "time"

// Router type constants
const (
	RouterTypeGin     = "gin"
	RouterTypeGorilla = "gorilla"
)

// Database type constants
const (
	// DatabaseTypeMemory keeps records in process, for local runs and tests
	DatabaseTypeMemory = "memory"
	// DatabaseTypeMongoDB represents MongoDB database
	DatabaseTypeMongoDB = "mongodb"
	// DatabaseTypeDynamoDB represents AWS DynamoDB
	DatabaseTypeDynamoDB = "dynamodb"
)

// Event bus type constants
const (
	// EventBusTypeNone disables catalog events
	EventBusTypeNone = "none"
	// EventBusTypeKafka represents Apache Kafka event bus
	EventBusTypeKafka = "kafka"
	// EventBusTypeRabbitMQ represents RabbitMQ event bus
	EventBusTypeRabbitMQ = "rabbitmq"
	// EventBusTypeSQS represents AWS SQS event bus
	EventBusTypeSQS = "sqs"
)

// Config is the root configuration of the storefront service
type Config struct {
	RouterType    string              `mapstructure:"router_type" yaml:"router_type"`
	Service       ServiceConfig       `mapstructure:"service" yaml:"service"`
	HTTP          HTTPConfig          `mapstructure:"http" yaml:"http"`
	Management    ManagementConfig    `mapstructure:"management" yaml:"management"`
	Database      DatabaseConfig      `mapstructure:"database" yaml:"database"`
	Catalog       CatalogConfig       `mapstructure:"catalog" yaml:"catalog"`
	Auth          AuthConfig          `mapstructure:"auth" yaml:"auth"`
	EventBus      EventBusConfig      `mapstructure:"eventbus" yaml:"eventbus"`
	Feed          FeedConfig          `mapstructure:"feed" yaml:"feed"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit" yaml:"rate_limit"`
	CORS          CORSConfig          `mapstructure:"cors" yaml:"cors"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// HTTPConfig configures the public API server
type HTTPConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxRequestSize  int64         `mapstructure:"max_request_size" yaml:"max_request_size"`
	// RequestTimeout bounds handler time; zero disables the deadline.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	// AllowedHosts restricts the Host header; empty accepts any host.
	AllowedHosts []string          `mapstructure:"allowed_hosts" yaml:"allowed_hosts"`
	Compression  CompressionConfig `mapstructure:"compression" yaml:"compression"`
}

// CompressionConfig controls Brotli/gzip encoding of API responses.
type CompressionConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// MinSize is the smallest body, in bytes, worth encoding.
	MinSize     int `mapstructure:"min_size" yaml:"min_size"`
	GzipLevel   int `mapstructure:"gzip_level" yaml:"gzip_level"`
	BrotliLevel int `mapstructure:"brotli_level" yaml:"brotli_level"`
}

// ManagementConfig configures the server exposing health, readiness, version
// and metrics. When disabled those endpoints are mounted on the public server.
type ManagementConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Port         int           `mapstructure:"port" yaml:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	MTLSEnabled  bool          `mapstructure:"mtls_enabled" yaml:"mtls_enabled"`
	TLSCertFile  string        `mapstructure:"tls_cert_file" yaml:"tls_cert_file"`
	TLSKeyFile   string        `mapstructure:"tls_key_file" yaml:"tls_key_file"`
	TLSCAFile    string        `mapstructure:"tls_ca_file" yaml:"tls_ca_file"`
}

// DatabaseConfig configures the document store backend
type DatabaseConfig struct {
	Type            string        `mapstructure:"type" yaml:"type"` // memory, mongodb, dynamodb
	URL             string        `mapstructure:"url" yaml:"url"`
	DatabaseName    string        `mapstructure:"database_name" yaml:"database_name"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
	Table           string        `mapstructure:"table" yaml:"table"`
	Region          string        `mapstructure:"region" yaml:"region"`
	Endpoint        string        `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	SessionToken    string        `mapstructure:"session_token" yaml:"session_token"`
}

// CatalogConfig configures listing, search and variant creation.
type CatalogConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size" yaml:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size" yaml:"max_page_size"`
	// PageSizes overrides the default page size per collection.
	PageSizes          map[string]int `mapstructure:"page_sizes" yaml:"page_sizes"`
	SearchLimit        int            `mapstructure:"search_limit" yaml:"search_limit"`
	VariantConcurrency int            `mapstructure:"variant_concurrency" yaml:"variant_concurrency"`
	// SearchCacheSize is the number of search results kept in memory; 0
	// disables the cache.
	SearchCacheSize int           `mapstructure:"search_cache_size" yaml:"search_cache_size"`
	SearchCacheTTL  time.Duration `mapstructure:"search_cache_ttl" yaml:"search_cache_ttl"`
}

// AuthConfig configures token issuing and password hashing
type AuthConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	Secret     string        `mapstructure:"secret" yaml:"secret"`
	Issuer     string        `mapstructure:"issuer" yaml:"issuer"`
	TokenTTL   time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost" yaml:"bcrypt_cost"`
}

// EventBusConfig configures the broker catalog events are published to
type EventBusConfig struct {
	Type             string        `mapstructure:"type" yaml:"type"` // none, kafka, rabbitmq, sqs
	Brokers          []string      `mapstructure:"brokers" yaml:"brokers"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
	URL              string        `mapstructure:"url" yaml:"url"`
	Exchange         string        `mapstructure:"exchange" yaml:"exchange"`
	ExchangeType     string        `mapstructure:"exchange_type" yaml:"exchange_type"`
	Region           string        `mapstructure:"region" yaml:"region"`
	QueueURL         string        `mapstructure:"queue_url" yaml:"queue_url"`
	// QueueURLs routes single topics to dedicated SQS queues.
	QueueURLs       map[string]string `mapstructure:"queue_urls" yaml:"queue_urls"`
	Endpoint        string            `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKeyID     string            `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string            `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	SessionToken    string            `mapstructure:"session_token" yaml:"session_token"`
	// BreakerFailures consecutive publish failures stop publishing for
	// BreakerCoolDown.
	BreakerFailures int           `mapstructure:"breaker_failures" yaml:"breaker_failures"`
	BreakerCoolDown time.Duration `mapstructure:"breaker_cool_down" yaml:"breaker_cool_down"`
}

// FeedConfig configures the server-sent event stream of catalog changes.
// A client is served by the instance it connects to and only sees the
// changes written through that instance.
type FeedConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Channels lists the collections that can be streamed.
	Channels          []string      `mapstructure:"channels" yaml:"channels"`
	MaxConnections    int           `mapstructure:"max_connections" yaml:"max_connections"`
	ClientBuffer      int           `mapstructure:"client_buffer" yaml:"client_buffer"`
	ReplayLimit       int           `mapstructure:"replay_limit" yaml:"replay_limit"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	RetryInterval     time.Duration `mapstructure:"retry_interval" yaml:"retry_interval"`
}

// RateLimitConfig configures the rate limit middleware.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerSecond int  `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int  `mapstructure:"burst" yaml:"burst"`
}

// CORSConfig configures cross origin access for browser storefronts.
type CORSConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	AllowOrigins []string      `mapstructure:"allow_origins" yaml:"allow_origins"`
	MaxAge       time.Duration `mapstructure:"max_age" yaml:"max_age"`
}

// ObservabilityConfig configures logging, metrics, and tracing
type ObservabilityConfig struct {
	LogLevel          string  `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string  `mapstructure:"log_format" yaml:"log_format"` // json, console
	TracingEnabled    bool    `mapstructure:"tracing_enabled" yaml:"tracing_enabled"`
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate" yaml:"tracing_sample_rate"`
	TracingEndpoint   string  `mapstructure:"tracing_endpoint" yaml:"tracing_endpoint"`
	MetricsEnabled    bool    `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
	MetricsPath       string  `mapstructure:"metrics_path" yaml:"metrics_path"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		RouterType: RouterTypeGin,
		Service: ServiceConfig{
			Name:        "storefront",
			Environment: "production",
		},
		HTTP: HTTPConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxRequestSize:  1 << 20,
			RequestTimeout:  15 * time.Second,
			Compression: CompressionConfig{
				Enabled:     true,
				MinSize:     1024,
				GzipLevel:   -1,
				BrotliLevel: 4,
			},
		},
		Management: ManagementConfig{
			Enabled:      true,
			Port:         9090,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Type:           DatabaseTypeMemory,
			MaxOpenConns:   100,
			ConnectTimeout: 10 * time.Second,
			QueryTimeout:   10 * time.Second,
			Table:          "storefront",
		},
		Catalog: CatalogConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
			PageSizes: map[string]int{
				"users":            20,
				"products":         20,
				"stores":           20,
				"categories":       50,
				"subCategories":    50,
				"subCategoryItems": 50,
				"offers":           50,
				"orders":           50,
			},
			SearchLimit:        10,
			VariantConcurrency: 8,
			SearchCacheTTL:     30 * time.Second,
		},
		Auth: AuthConfig{
			Issuer:     "storefront",
			TokenTTL:   24 * time.Hour,
			BcryptCost: 10,
		},
		EventBus: EventBusConfig{
			Type:             EventBusTypeNone,
			OperationTimeout: 10 * time.Second,
			Exchange:         "catalog",
			ExchangeType:     "topic",
			BreakerFailures:  5,
			BreakerCoolDown:  30 * time.Second,
		},
		Feed: FeedConfig{
			Channels:          []string{"products", "offers", "orders"},
			MaxConnections:    10000,
			ClientBuffer:      64,
			ReplayLimit:       100,
			HeartbeatInterval: 20 * time.Second,
			RetryInterval:     3 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
		},
		CORS: CORSConfig{
			MaxAge: 12 * time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "json",
			TracingSampleRate: 0.1,
			MetricsEnabled:    true,
			MetricsPath:       "/metrics",
		},
	}
}
