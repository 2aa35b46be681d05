package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile string
	envPrefix  string
	flags      *pflag.FlagSet
	v          *viper.Viper
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (e.g., "APP")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// WithFlags lets the flags in flagBindings override every other source when
// they were set on the command line.
func (l *ViperLoader) WithFlags(flags *pflag.FlagSet) *ViperLoader {
	l.flags = flags
	return l
}

// ConfigFile returns the path of the config file, or "" when none is used.
func (l *ViperLoader) ConfigFile() string {
	return l.configFile
}

// Load loads configuration with precedence: flags > ENV > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	cfg, _, err := l.load(false)
	return cfg, err
}

// LoadWithSecrets behaves like Load and also merges the secrets file found by
// discoverSecretsFile between the config file and the environment. The raw
// secrets settings are returned so callers can redact them.
func (l *ViperLoader) LoadWithSecrets() (*Config, map[string]interface{}, error) {
	return l.load(true)
}

// AllSettings returns the merged settings of the last load.
func (l *ViperLoader) AllSettings() map[string]interface{} {
	if l == nil || l.v == nil {
		return map[string]interface{}{}
	}
	return l.v.AllSettings()
}

func (l *ViperLoader) load(withSecrets bool) (*Config, map[string]interface{}, error) {
	v := viper.New()
	l.v = v

	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	var secrets map[string]interface{}
	if withSecrets {
		secretsFile, err := l.discoverSecretsFile()
		if err != nil {
			return nil, nil, err
		}
		if secretsFile != "" {
			secretsViper := viper.New()
			secretsViper.SetConfigFile(secretsFile)
			if err := secretsViper.ReadInConfig(); err != nil {
				return nil, nil, fmt.Errorf("failed to read secrets file %s: %w", secretsFile, err)
			}
			secrets = secretsViper.AllSettings()
			if err := v.MergeConfigMap(secrets); err != nil {
				return nil, nil, fmt.Errorf("failed to merge secrets: %w", err)
			}
		}
	}

	v.SetEnvPrefix(l.envPrefix)
	l.bindEnvVars(v)
	if err := l.bindFlags(v); err != nil {
		return nil, nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, secrets, nil
}

// flagBindings maps command line flags to config keys.
var flagBindings = map[string]string{
	"router-type":   "router_type",
	"http-port":     "http.port",
	"database-type": "database.type",
	"log-level":     "observability.log_level",
	"log-format":    "observability.log_format",
}

func (l *ViperLoader) bindFlags(v *viper.Viper) error {
	if l.flags == nil {
		return nil
	}
	for name, key := range flagBindings {
		flag := l.flags.Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	v.BindEnv("router_type", l.prefixedEnv("ROUTER_TYPE"))
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	// HTTP
	v.BindEnv("http.port", l.prefixedEnv("HTTP_PORT"))
	v.BindEnv("http.read_timeout", l.prefixedEnv("HTTP_READ_TIMEOUT"))
	v.BindEnv("http.write_timeout", l.prefixedEnv("HTTP_WRITE_TIMEOUT"))
	v.BindEnv("http.idle_timeout", l.prefixedEnv("HTTP_IDLE_TIMEOUT"))
	v.BindEnv("http.shutdown_timeout", l.prefixedEnv("HTTP_SHUTDOWN_TIMEOUT"))
	v.BindEnv("http.max_request_size", l.prefixedEnv("HTTP_MAX_REQUEST_SIZE"))
	v.BindEnv("http.request_timeout", l.prefixedEnv("HTTP_REQUEST_TIMEOUT"))
	v.BindEnv("http.allowed_hosts", l.prefixedEnv("HTTP_ALLOWED_HOSTS"))
	v.BindEnv("http.compression.enabled", l.prefixedEnv("HTTP_COMPRESSION_ENABLED"))
	v.BindEnv("http.compression.min_size", l.prefixedEnv("HTTP_COMPRESSION_MIN_SIZE"))
	v.BindEnv("http.compression.gzip_level", l.prefixedEnv("HTTP_COMPRESSION_GZIP_LEVEL"))
	v.BindEnv("http.compression.brotli_level", l.prefixedEnv("HTTP_COMPRESSION_BROTLI_LEVEL"))

	// Management
	v.BindEnv("management.enabled", l.prefixedEnv("MANAGEMENT_ENABLED"))
	v.BindEnv("management.port", l.prefixedEnv("MANAGEMENT_PORT"))
	v.BindEnv("management.read_timeout", l.prefixedEnv("MANAGEMENT_READ_TIMEOUT"))
	v.BindEnv("management.write_timeout", l.prefixedEnv("MANAGEMENT_WRITE_TIMEOUT"))
	v.BindEnv("management.mtls_enabled", l.prefixedEnv("MANAGEMENT_MTLS_ENABLED"))
	v.BindEnv("management.tls_cert_file", l.prefixedEnv("MANAGEMENT_TLS_CERT_FILE"))
	v.BindEnv("management.tls_key_file", l.prefixedEnv("MANAGEMENT_TLS_KEY_FILE"))
	v.BindEnv("management.tls_ca_file", l.prefixedEnv("MANAGEMENT_TLS_CA_FILE"))

	// Database
	v.BindEnv("database.type", l.prefixedEnv("DB_TYPE"))
	v.BindEnv("database.url", l.prefixedEnv("DB_URL"))
	v.BindEnv("database.database_name", l.prefixedEnv("DB_NAME"))
	v.BindEnv("database.max_open_conns", l.prefixedEnv("DB_MAX_OPEN_CONNS"))
	v.BindEnv("database.connect_timeout", l.prefixedEnv("DB_CONNECT_TIMEOUT"))
	v.BindEnv("database.query_timeout", l.prefixedEnv("DB_QUERY_TIMEOUT"))
	v.BindEnv("database.table", l.prefixedEnv("DB_TABLE"))
	v.BindEnv("database.region", l.prefixedEnv("DB_REGION"))
	v.BindEnv("database.endpoint", l.prefixedEnv("DB_ENDPOINT"))
	v.BindEnv("database.access_key_id", l.prefixedEnv("DB_ACCESS_KEY_ID"))
	v.BindEnv("database.secret_access_key", l.prefixedEnv("DB_SECRET_ACCESS_KEY"))
	v.BindEnv("database.session_token", l.prefixedEnv("DB_SESSION_TOKEN"))

	// Catalog
	v.BindEnv("catalog.default_page_size", l.prefixedEnv("CATALOG_DEFAULT_PAGE_SIZE"))
	v.BindEnv("catalog.max_page_size", l.prefixedEnv("CATALOG_MAX_PAGE_SIZE"))
	v.BindEnv("catalog.search_limit", l.prefixedEnv("CATALOG_SEARCH_LIMIT"))
	v.BindEnv("catalog.variant_concurrency", l.prefixedEnv("CATALOG_VARIANT_CONCURRENCY"))
	v.BindEnv("catalog.search_cache_size", l.prefixedEnv("CATALOG_SEARCH_CACHE_SIZE"))
	v.BindEnv("catalog.search_cache_ttl", l.prefixedEnv("CATALOG_SEARCH_CACHE_TTL"))

	// Auth
	v.BindEnv("auth.enabled", l.prefixedEnv("AUTH_ENABLED"))
	v.BindEnv("auth.secret", l.prefixedEnv("AUTH_SECRET"))
	v.BindEnv("auth.issuer", l.prefixedEnv("AUTH_ISSUER"))
	v.BindEnv("auth.token_ttl", l.prefixedEnv("AUTH_TOKEN_TTL"))
	v.BindEnv("auth.bcrypt_cost", l.prefixedEnv("AUTH_BCRYPT_COST"))

	// Event bus
	v.BindEnv("eventbus.type", l.prefixedEnv("EVENTBUS_TYPE"))
	v.BindEnv("eventbus.brokers", l.prefixedEnv("EVENTBUS_BROKERS"))
	v.BindEnv("eventbus.operation_timeout", l.prefixedEnv("EVENTBUS_OPERATION_TIMEOUT"))
	v.BindEnv("eventbus.url", l.prefixedEnv("EVENTBUS_URL"))
	v.BindEnv("eventbus.exchange", l.prefixedEnv("EVENTBUS_EXCHANGE"))
	v.BindEnv("eventbus.exchange_type", l.prefixedEnv("EVENTBUS_EXCHANGE_TYPE"))
	v.BindEnv("eventbus.region", l.prefixedEnv("EVENTBUS_REGION"))
	v.BindEnv("eventbus.queue_url", l.prefixedEnv("EVENTBUS_QUEUE_URL"))
	v.BindEnv("eventbus.endpoint", l.prefixedEnv("EVENTBUS_ENDPOINT"))
	v.BindEnv("eventbus.access_key_id", l.prefixedEnv("EVENTBUS_ACCESS_KEY_ID"))
	v.BindEnv("eventbus.secret_access_key", l.prefixedEnv("EVENTBUS_SECRET_ACCESS_KEY"))
	v.BindEnv("eventbus.session_token", l.prefixedEnv("EVENTBUS_SESSION_TOKEN"))
	v.BindEnv("eventbus.breaker_failures", l.prefixedEnv("EVENTBUS_BREAKER_FAILURES"))
	v.BindEnv("eventbus.breaker_cool_down", l.prefixedEnv("EVENTBUS_BREAKER_COOL_DOWN"))

	// Feed
	v.BindEnv("feed.enabled", l.prefixedEnv("FEED_ENABLED"))
	v.BindEnv("feed.channels", l.prefixedEnv("FEED_CHANNELS"))
	v.BindEnv("feed.max_connections", l.prefixedEnv("FEED_MAX_CONNECTIONS"))
	v.BindEnv("feed.client_buffer", l.prefixedEnv("FEED_CLIENT_BUFFER"))
	v.BindEnv("feed.replay_limit", l.prefixedEnv("FEED_REPLAY_LIMIT"))
	v.BindEnv("feed.heartbeat_interval", l.prefixedEnv("FEED_HEARTBEAT_INTERVAL"))
	v.BindEnv("feed.retry_interval", l.prefixedEnv("FEED_RETRY_INTERVAL"))

	// Rate limit
	v.BindEnv("rate_limit.enabled", l.prefixedEnv("RATE_LIMIT_ENABLED"))
	v.BindEnv("rate_limit.requests_per_second", l.prefixedEnv("RATE_LIMIT_REQUESTS_PER_SECOND"))
	v.BindEnv("rate_limit.burst", l.prefixedEnv("RATE_LIMIT_BURST"))

	// CORS
	v.BindEnv("cors.enabled", l.prefixedEnv("CORS_ENABLED"))
	v.BindEnv("cors.allow_origins", l.prefixedEnv("CORS_ALLOW_ORIGINS"))
	v.BindEnv("cors.max_age", l.prefixedEnv("CORS_MAX_AGE"))

	// Observability
	v.BindEnv("observability.log_level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("observability.log_format", l.prefixedEnv("LOG_FORMAT"))
	v.BindEnv("observability.tracing_enabled", l.prefixedEnv("TRACING_ENABLED"))
	v.BindEnv("observability.tracing_sample_rate", l.prefixedEnv("TRACING_SAMPLE_RATE"))
	v.BindEnv("observability.tracing_endpoint", l.prefixedEnv("TRACING_ENDPOINT"))
	v.BindEnv("observability.metrics_enabled", l.prefixedEnv("METRICS_ENABLED"))
	v.BindEnv("observability.metrics_path", l.prefixedEnv("METRICS_PATH"))
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = "APP"
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(prefix), suffix)
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("router_type", cfg.RouterType)
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	// HTTP defaults
	v.SetDefault("http.port", cfg.HTTP.Port)
	v.SetDefault("http.read_timeout", cfg.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", cfg.HTTP.WriteTimeout)
	v.SetDefault("http.idle_timeout", cfg.HTTP.IdleTimeout)
	v.SetDefault("http.shutdown_timeout", cfg.HTTP.ShutdownTimeout)
	v.SetDefault("http.max_request_size", cfg.HTTP.MaxRequestSize)
	v.SetDefault("http.request_timeout", cfg.HTTP.RequestTimeout)
	v.SetDefault("http.allowed_hosts", cfg.HTTP.AllowedHosts)
	v.SetDefault("http.compression.enabled", cfg.HTTP.Compression.Enabled)
	v.SetDefault("http.compression.min_size", cfg.HTTP.Compression.MinSize)
	v.SetDefault("http.compression.gzip_level", cfg.HTTP.Compression.GzipLevel)
	v.SetDefault("http.compression.brotli_level", cfg.HTTP.Compression.BrotliLevel)

	// Management defaults
	v.SetDefault("management.enabled", cfg.Management.Enabled)
	v.SetDefault("management.port", cfg.Management.Port)
	v.SetDefault("management.read_timeout", cfg.Management.ReadTimeout)
	v.SetDefault("management.write_timeout", cfg.Management.WriteTimeout)
	v.SetDefault("management.mtls_enabled", cfg.Management.MTLSEnabled)
	v.SetDefault("management.tls_cert_file", cfg.Management.TLSCertFile)
	v.SetDefault("management.tls_key_file", cfg.Management.TLSKeyFile)
	v.SetDefault("management.tls_ca_file", cfg.Management.TLSCAFile)

	// Database defaults
	v.SetDefault("database.type", cfg.Database.Type)
	v.SetDefault("database.url", cfg.Database.URL)
	v.SetDefault("database.database_name", cfg.Database.DatabaseName)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.SetDefault("database.connect_timeout", cfg.Database.ConnectTimeout)
	v.SetDefault("database.query_timeout", cfg.Database.QueryTimeout)
	v.SetDefault("database.table", cfg.Database.Table)
	v.SetDefault("database.region", cfg.Database.Region)
	v.SetDefault("database.endpoint", cfg.Database.Endpoint)
	v.SetDefault("database.access_key_id", cfg.Database.AccessKeyID)
	v.SetDefault("database.secret_access_key", cfg.Database.SecretAccessKey)
	v.SetDefault("database.session_token", cfg.Database.SessionToken)

	// Catalog defaults
	v.SetDefault("catalog.default_page_size", cfg.Catalog.DefaultPageSize)
	v.SetDefault("catalog.max_page_size", cfg.Catalog.MaxPageSize)
	v.SetDefault("catalog.page_sizes", cfg.Catalog.PageSizes)
	v.SetDefault("catalog.search_limit", cfg.Catalog.SearchLimit)
	v.SetDefault("catalog.variant_concurrency", cfg.Catalog.VariantConcurrency)
	v.SetDefault("catalog.search_cache_size", cfg.Catalog.SearchCacheSize)
	v.SetDefault("catalog.search_cache_ttl", cfg.Catalog.SearchCacheTTL)

	// Auth defaults
	v.SetDefault("auth.enabled", cfg.Auth.Enabled)
	v.SetDefault("auth.secret", cfg.Auth.Secret)
	v.SetDefault("auth.issuer", cfg.Auth.Issuer)
	v.SetDefault("auth.token_ttl", cfg.Auth.TokenTTL)
	v.SetDefault("auth.bcrypt_cost", cfg.Auth.BcryptCost)

	// Event bus defaults
	v.SetDefault("eventbus.type", cfg.EventBus.Type)
	v.SetDefault("eventbus.brokers", cfg.EventBus.Brokers)
	v.SetDefault("eventbus.operation_timeout", cfg.EventBus.OperationTimeout)
	v.SetDefault("eventbus.url", cfg.EventBus.URL)
	v.SetDefault("eventbus.exchange", cfg.EventBus.Exchange)
	v.SetDefault("eventbus.exchange_type", cfg.EventBus.ExchangeType)
	v.SetDefault("eventbus.region", cfg.EventBus.Region)
	v.SetDefault("eventbus.queue_url", cfg.EventBus.QueueURL)
	v.SetDefault("eventbus.queue_urls", cfg.EventBus.QueueURLs)
	v.SetDefault("eventbus.endpoint", cfg.EventBus.Endpoint)
	v.SetDefault("eventbus.access_key_id", cfg.EventBus.AccessKeyID)
	v.SetDefault("eventbus.secret_access_key", cfg.EventBus.SecretAccessKey)
	v.SetDefault("eventbus.session_token", cfg.EventBus.SessionToken)
	v.SetDefault("eventbus.breaker_failures", cfg.EventBus.BreakerFailures)
	v.SetDefault("eventbus.breaker_cool_down", cfg.EventBus.BreakerCoolDown)

	// Rate limit defaults
	// Feed defaults
	v.SetDefault("feed.enabled", cfg.Feed.Enabled)
	v.SetDefault("feed.channels", cfg.Feed.Channels)
	v.SetDefault("feed.max_connections", cfg.Feed.MaxConnections)
	v.SetDefault("feed.client_buffer", cfg.Feed.ClientBuffer)
	v.SetDefault("feed.replay_limit", cfg.Feed.ReplayLimit)
	v.SetDefault("feed.heartbeat_interval", cfg.Feed.HeartbeatInterval)
	v.SetDefault("feed.retry_interval", cfg.Feed.RetryInterval)

	v.SetDefault("rate_limit.enabled", cfg.RateLimit.Enabled)
	v.SetDefault("rate_limit.requests_per_second", cfg.RateLimit.RequestsPerSecond)
	v.SetDefault("rate_limit.burst", cfg.RateLimit.Burst)

	// CORS defaults
	v.SetDefault("cors.enabled", cfg.CORS.Enabled)
	v.SetDefault("cors.allow_origins", cfg.CORS.AllowOrigins)
	v.SetDefault("cors.max_age", cfg.CORS.MaxAge)

	// Observability defaults
	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_format", cfg.Observability.LogFormat)
	v.SetDefault("observability.tracing_enabled", cfg.Observability.TracingEnabled)
	v.SetDefault("observability.tracing_sample_rate", cfg.Observability.TracingSampleRate)
	v.SetDefault("observability.tracing_endpoint", cfg.Observability.TracingEndpoint)
	v.SetDefault("observability.metrics_enabled", cfg.Observability.MetricsEnabled)
	v.SetDefault("observability.metrics_path", cfg.Observability.MetricsPath)
}

// Validate normalizes cfg and reports every invalid setting at once.
func (l *ViperLoader) Validate(cfg *Config) error {
	return cfg.Validate()
}

// contains checks if a string slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// normalizeStringSlice removes empty strings and trims whitespace
func normalizeStringSlice(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
