package config

import (
	"errors"
	"fmt"
	"strings"
)

// feedChannels are the collections catalog events are published for.
var feedChannels = []string{"products", "offers", "orders", "users"}

// Validate normalizes the configuration and reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	c.RouterType = strings.ToLower(strings.TrimSpace(c.RouterType))
	c.Database.Type = strings.ToLower(strings.TrimSpace(c.Database.Type))
	c.EventBus.Type = strings.ToLower(strings.TrimSpace(c.EventBus.Type))
	c.EventBus.Brokers = normalizeStringSlice(c.EventBus.Brokers)
	c.Feed.Channels = normalizeStringSlice(c.Feed.Channels)

	validRouterTypes := []string{RouterTypeGin, RouterTypeGorilla}
	if !contains(validRouterTypes, c.RouterType) {
		errs = append(errs, fmt.Errorf("invalid router_type: %s (must be one of: %v)", c.RouterType, validRouterTypes))
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port))
	}

	if c.Management.Enabled {
		if c.Management.Port < 1 || c.Management.Port > 65535 {
			errs = append(errs, fmt.Errorf("management.port must be between 1 and 65535, got %d", c.Management.Port))
		} else if c.Management.Port == c.HTTP.Port {
			errs = append(errs, fmt.Errorf("management.port must differ from http.port (%d)", c.HTTP.Port))
		}
		if c.Management.MTLSEnabled && (c.Management.TLSCertFile == "" || c.Management.TLSKeyFile == "" || c.Management.TLSCAFile == "") {
			errs = append(errs, errors.New("management.tls_cert_file, tls_key_file and tls_ca_file are required when mtls is enabled"))
		}
	}

	switch c.Database.Type {
	case DatabaseTypeMemory:
	case DatabaseTypeMongoDB:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for MongoDB"))
		}
		if c.Database.DatabaseName == "" {
			errs = append(errs, errors.New("database.database_name is required for MongoDB"))
		}
	case DatabaseTypeDynamoDB:
		if c.Database.Region == "" {
			errs = append(errs, errors.New("database.region is required for DynamoDB"))
		}
		if c.Database.Table == "" {
			errs = append(errs, errors.New("database.table is required for DynamoDB"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid database.type: %q (must be one of: memory, mongodb, dynamodb)", c.Database.Type))
	}

	if c.Catalog.MaxPageSize <= 0 {
		errs = append(errs, errors.New("catalog.max_page_size must be greater than 0"))
	}
	if c.Catalog.DefaultPageSize <= 0 || c.Catalog.DefaultPageSize > c.Catalog.MaxPageSize {
		errs = append(errs, errors.New("catalog.default_page_size must be between 1 and catalog.max_page_size"))
	}
	for name, size := range c.Catalog.PageSizes {
		if size <= 0 {
			errs = append(errs, fmt.Errorf("catalog.page_sizes.%s must be greater than 0", name))
		}
	}
	if c.Catalog.SearchLimit < 1 || c.Catalog.SearchLimit > 10 {
		errs = append(errs, errors.New("catalog.search_limit must be between 1 and 10"))
	}
	if c.Catalog.VariantConcurrency <= 0 {
		errs = append(errs, errors.New("catalog.variant_concurrency must be greater than 0"))
	}
	if c.Catalog.SearchCacheSize < 0 {
		errs = append(errs, errors.New("catalog.search_cache_size must not be negative"))
	}
	if c.Catalog.SearchCacheSize > 0 && c.Catalog.SearchCacheTTL <= 0 {
		errs = append(errs, errors.New("catalog.search_cache_ttl must be greater than 0 when the search cache is enabled"))
	}

	if c.Auth.Enabled && len(c.Auth.Secret) < 32 {
		errs = append(errs, errors.New("auth.secret must be at least 32 bytes when auth is enabled"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be greater than 0"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, errors.New("auth.bcrypt_cost must be between 4 and 31"))
	}

	switch c.EventBus.Type {
	case "", EventBusTypeNone:
	case EventBusTypeKafka:
		if len(c.EventBus.Brokers) == 0 {
			errs = append(errs, errors.New("eventbus.brokers is required for Kafka"))
		}
	case EventBusTypeRabbitMQ:
		if c.EventBus.URL == "" {
			errs = append(errs, errors.New("eventbus.url is required for RabbitMQ"))
		}
	case EventBusTypeSQS:
		if c.EventBus.Region == "" {
			errs = append(errs, errors.New("eventbus.region is required for SQS"))
		}
		if c.EventBus.QueueURL == "" && len(c.EventBus.QueueURLs) == 0 {
			errs = append(errs, errors.New("eventbus.queue_url or eventbus.queue_urls is required for SQS"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid eventbus.type: %q (must be one of: none, kafka, rabbitmq, sqs)", c.EventBus.Type))
	}

	if c.HTTP.RequestTimeout < 0 {
		errs = append(errs, errors.New("http.request_timeout must not be negative"))
	}
	if comp := c.HTTP.Compression; comp.Enabled {
		if comp.GzipLevel < -2 || comp.GzipLevel > 9 {
			errs = append(errs, errors.New("http.compression.gzip_level must be between -2 and 9"))
		}
		if comp.BrotliLevel < 0 || comp.BrotliLevel > 11 {
			errs = append(errs, errors.New("http.compression.brotli_level must be between 0 and 11"))
		}
		if comp.MinSize < 0 {
			errs = append(errs, errors.New("http.compression.min_size must not be negative"))
		}
	}
	if c.CORS.Enabled && len(c.CORS.AllowOrigins) == 0 {
		errs = append(errs, errors.New("cors.allow_origins is required when cors is enabled"))
	}

	if c.Feed.Enabled {
		if len(c.Feed.Channels) == 0 {
			errs = append(errs, errors.New("feed.channels is required when the feed is enabled"))
		}
		for _, ch := range c.Feed.Channels {
			if !contains(feedChannels, ch) {
				errs = append(errs, fmt.Errorf("invalid feed channel %q (must be one of: %v)", ch, feedChannels))
			}
		}
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate_limit.requests_per_second and rate_limit.burst must be greater than 0 when rate limiting is enabled"))
	}

	if c.Observability.TracingEnabled && c.Observability.TracingEndpoint == "" {
		errs = append(errs, errors.New("observability.tracing_endpoint is required when tracing is enabled"))
	}
	if c.Observability.TracingSampleRate < 0 || c.Observability.TracingSampleRate > 1 {
		errs = append(errs, errors.New("observability.tracing_sample_rate must be between 0 and 1"))
	}
	if c.Observability.MetricsEnabled && !strings.HasPrefix(c.Observability.MetricsPath, "/") {
		errs = append(errs, errors.New("observability.metrics_path must start with /"))
	}

	return errors.Join(errs...)
}

// PageSize returns the configured page size for collection, matching keys
// case-insensitively because viper lowercases map keys.
func (c CatalogConfig) PageSize(collection string) (int, bool) {
	for name, size := range c.PageSizes {
		if strings.EqualFold(name, collection) {
			return size, true
		}
	}
	return 0, false
}
