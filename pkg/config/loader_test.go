package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

func clearAppEnv() {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "APP_") {
			key := strings.Split(env, "=")[0]
			os.Unsetenv(key)
		}
	}
}

func writeConfigFile(t *testing.T, dir, name string, content map[string]interface{}) string {
	t.Helper()
	data, err := yaml.Marshal(content)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RouterType != RouterTypeGin {
		t.Errorf("expected router type gin, got %s", cfg.RouterType)
	}
	if cfg.Service.Name != "storefront" {
		t.Errorf("expected service name storefront, got %s", cfg.Service.Name)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("expected HTTP port 8080, got %d", cfg.HTTP.Port)
	}
	if cfg.Database.Type != DatabaseTypeMemory {
		t.Errorf("expected memory database, got %s", cfg.Database.Type)
	}
	if cfg.Catalog.SearchLimit != 10 || cfg.Catalog.MaxPageSize != 100 {
		t.Errorf("unexpected catalog defaults %+v", cfg.Catalog)
	}
	if size, _ := cfg.Catalog.PageSize("orders"); size != 50 {
		t.Errorf("expected orders page size 50, got %d", size)
	}
	if cfg.EventBus.Type != EventBusTypeNone {
		t.Errorf("expected event bus none, got %s", cfg.EventBus.Type)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must be valid: %v", err)
	}
}

func TestViperLoader_LoadDefaults(t *testing.T) {
	clearAppEnv()
	defer clearAppEnv()

	cfg, err := NewViperLoader("", "APP").Load()
	if err != nil {
		t.Fatalf("expected no error loading defaults, got: %v", err)
	}
	if cfg.HTTP.ReadTimeout != 30*time.Second {
		t.Errorf("expected read timeout 30s, got %v", cfg.HTTP.ReadTimeout)
	}
	if size, ok := cfg.Catalog.PageSize("subCategoryItems"); !ok || size != 50 {
		t.Errorf("expected subCategoryItems page size 50 after viper lowercasing, got %d (%v)", size, ok)
	}
}

func TestViperLoader_LoadWithEnvOverride(t *testing.T) {
	clearAppEnv()
	defer clearAppEnv()

	t.Setenv("APP_HTTP_PORT", "9000")
	t.Setenv("APP_DB_TYPE", "mongodb")
	t.Setenv("APP_DB_URL", "mongodb://localhost:27017")
	t.Setenv("APP_DB_NAME", "storefront")
	t.Setenv("APP_EVENTBUS_TYPE", "kafka")
	t.Setenv("APP_EVENTBUS_BROKERS", "k1:9092,k2:9092")
	t.Setenv("APP_LOG_LEVEL", "debug")
	t.Setenv("APP_AUTH_TOKEN_TTL", "2h")

	cfg, err := NewViperLoader("", "APP").Load()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.HTTP.Port != 9000 {
		t.Errorf("expected HTTP port 9000 from env, got %d", cfg.HTTP.Port)
	}
	if cfg.Database.Type != DatabaseTypeMongoDB || cfg.Database.DatabaseName != "storefront" {
		t.Errorf("unexpected database config %+v", cfg.Database)
	}
	if len(cfg.EventBus.Brokers) != 2 || cfg.EventBus.Brokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers %v", cfg.EventBus.Brokers)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Observability.LogLevel)
	}
	if cfg.Auth.TokenTTL != 2*time.Hour {
		t.Errorf("expected token ttl 2h, got %v", cfg.Auth.TokenTTL)
	}
}

func TestViperLoader_FlagsOverrideEnv(t *testing.T) {
	clearAppEnv()
	defer clearAppEnv()
	t.Setenv("APP_LOG_LEVEL", "warn")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	flags.String("router-type", "gin", "")
	if err := flags.Parse([]string{"--log-level=error"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewViperLoader("", "APP").WithFlags(flags).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Observability.LogLevel != "error" {
		t.Errorf("expected flag to win, got %s", cfg.Observability.LogLevel)
	}
	if cfg.RouterType != RouterTypeGin {
		t.Errorf("unset flag must not override, got %s", cfg.RouterType)
	}
}

func TestViperLoader_LoadWithSecrets(t *testing.T) {
	clearAppEnv()
	defer clearAppEnv()

	dir := t.TempDir()
	configFile := writeConfigFile(t, dir, "config.yaml", map[string]interface{}{
		"auth": map[string]interface{}{"enabled": true},
	})
	writeConfigFile(t, dir, "secrets.yaml", map[string]interface{}{
		"auth": map[string]interface{}{"secret": strings.Repeat("s", 32)},
	})

	loader := NewViperLoader(configFile, "APP")
	cfg, secrets, err := loader.LoadWithSecrets()
	if err != nil {
		t.Fatalf("LoadWithSecrets() error = %v", err)
	}
	if cfg.Auth.Secret != strings.Repeat("s", 32) {
		t.Errorf("secret not merged")
	}
	if _, ok := secrets["auth"]; !ok {
		t.Errorf("expected raw secrets to be returned, got %v", secrets)
	}
	if _, ok := loader.AllSettings()["auth"]; !ok {
		t.Errorf("expected merged settings to contain auth")
	}

	// without the secrets file the enabled auth has no secret
	if _, err := NewViperLoader(configFile, "APP").Load(); err == nil {
		t.Fatal("expected validation error without secret")
	}
}

func TestViperLoader_SecretsFileFromEnv(t *testing.T) {
	clearAppEnv()
	defer clearAppEnv()

	dir := t.TempDir()
	configFile := writeConfigFile(t, dir, "config.yaml", map[string]interface{}{
		"auth": map[string]interface{}{"enabled": true},
	})
	elsewhere := writeConfigFile(t, t.TempDir(), "storefront-secrets.yaml", map[string]interface{}{
		"auth": map[string]interface{}{"secret": strings.Repeat("k", 32)},
	})

	t.Setenv("APP_SECRETS_FILE", elsewhere)
	cfg, _, err := NewViperLoader(configFile, "APP").LoadWithSecrets()
	if err != nil {
		t.Fatalf("LoadWithSecrets() error = %v", err)
	}
	if cfg.Auth.Secret != strings.Repeat("k", 32) {
		t.Fatal("secrets file from the environment not merged")
	}

	for name, value := range map[string]string{"empty": " ", "directory": dir, "missing": filepath.Join(dir, "nope.yaml")} {
		t.Run(name, func(t *testing.T) {
			t.Setenv("APP_SECRETS_FILE", value)
			if _, _, err := NewViperLoader(configFile, "APP").LoadWithSecrets(); err == nil || !strings.Contains(err.Error(), "APP_SECRETS_FILE") {
				t.Fatalf("expected APP_SECRETS_FILE error, got %v", err)
			}
		})
	}
}

func TestViperLoader_MissingFile(t *testing.T) {
	clearAppEnv()
	_, err := NewViperLoader(filepath.Join(t.TempDir(), "nope.yaml"), "APP").Load()
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"router type", func(c *Config) { c.RouterType = "nethttp" }, "invalid router_type"},
		{"router type case", func(c *Config) { c.RouterType = "Gorilla" }, ""},
		{"port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"database type", func(c *Config) { c.Database.Type = "postgres" }, "invalid database.type"},
		{"mongo url", func(c *Config) { c.Database.Type = DatabaseTypeMongoDB; c.Database.DatabaseName = "x" }, "database.url"},
		{"dynamo region", func(c *Config) { c.Database.Type = DatabaseTypeDynamoDB }, "database.region"},
		{"dynamo ok", func(c *Config) { c.Database.Type = DatabaseTypeDynamoDB; c.Database.Region = "eu-west-1" }, ""},
		{"search limit", func(c *Config) { c.Catalog.SearchLimit = 11 }, "catalog.search_limit"},
		{"page size", func(c *Config) { c.Catalog.PageSizes["orders"] = 0 }, "catalog.page_sizes.orders"},
		{"default page size above max", func(c *Config) { c.Catalog.DefaultPageSize = 500 }, "catalog.default_page_size"},
		{"short secret", func(c *Config) { c.Auth.Enabled = true; c.Auth.Secret = "short" }, "auth.secret"},
		{"bcrypt cost", func(c *Config) { c.Auth.BcryptCost = 2 }, "auth.bcrypt_cost"},
		{"kafka brokers", func(c *Config) { c.EventBus.Type = EventBusTypeKafka }, "eventbus.brokers"},
		{"rabbitmq url", func(c *Config) { c.EventBus.Type = EventBusTypeRabbitMQ }, "eventbus.url"},
		{"sqs queue", func(c *Config) { c.EventBus.Type = EventBusTypeSQS; c.EventBus.Region = "eu-west-1" }, "eventbus.queue_url"},
		{"eventbus type", func(c *Config) { c.EventBus.Type = "nats" }, "invalid eventbus.type"},
		{"rate limit", func(c *Config) { c.RateLimit.Enabled = true; c.RateLimit.Burst = 0 }, "rate_limit"},
		{"tracing endpoint", func(c *Config) { c.Observability.TracingEnabled = true }, "tracing_endpoint"},
		{"metrics path", func(c *Config) { c.Observability.MetricsPath = "metrics" }, "metrics_path"},
		{"management port clash", func(c *Config) { c.Management.Port = c.HTTP.Port }, "management.port must differ"},
		{"management disabled ignores port", func(c *Config) { c.Management.Enabled = false; c.Management.Port = 0 }, ""},
		{"management mtls files", func(c *Config) { c.Management.MTLSEnabled = true }, "tls_ca_file"},
		{"request timeout", func(c *Config) { c.HTTP.RequestTimeout = -1 }, "http.request_timeout"},
		{"cors origins", func(c *Config) { c.CORS.Enabled = true }, "cors.allow_origins"},
		{"feed defaults", func(c *Config) { c.Feed.Enabled = true }, ""},
		{"feed channel", func(c *Config) { c.Feed.Enabled = true; c.Feed.Channels = []string{"products", "carts"} }, "invalid feed channel \"carts\""},
		{"feed channels", func(c *Config) { c.Feed.Enabled = true; c.Feed.Channels = []string{" "} }, "feed.channels is required"},
		{"search cache", func(c *Config) { c.Catalog.SearchCacheSize = 256 }, ""},
		{"gzip level", func(c *Config) { c.HTTP.Compression.GzipLevel = 12 }, "http.compression.gzip_level"},
		{"brotli level ignored when off", func(c *Config) { c.HTTP.Compression.Enabled = false; c.HTTP.Compression.BrotliLevel = 40 }, ""},
		{"search cache ttl", func(c *Config) { c.Catalog.SearchCacheSize = 256; c.Catalog.SearchCacheTTL = 0 }, "catalog.search_cache_ttl"},
		{"search cache size", func(c *Config) { c.Catalog.SearchCacheSize = -1 }, "catalog.search_cache_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestProperty_ConfigurationPrecedence(t *testing.T) {
	properties := gopter.NewProperties(nil)

	genPort := gen.IntRange(1024, 65535)
	genLogLevel := gen.IntRange(0, 3).Map(func(i int) string {
		return []string{"debug", "info", "warn", "error"}[i]
	})

	properties.Property("ENV overrides file and defaults", prop.ForAll(
		func(envPort, filePort int, envLogLevel, fileLogLevel string) bool {
			clearAppEnv()
			defer clearAppEnv()

			configFile := writeConfigFile(t, t.TempDir(), "config.yaml", map[string]interface{}{
				"http":          map[string]interface{}{"port": filePort},
				"observability": map[string]interface{}{"log_level": fileLogLevel},
			})
			os.Setenv("APP_HTTP_PORT", fmt.Sprintf("%d", envPort))
			os.Setenv("APP_LOG_LEVEL", envLogLevel)

			cfg, err := NewViperLoader(configFile, "APP").Load()
			if err != nil {
				t.Logf("Load error: %v", err)
				return false
			}
			return cfg.HTTP.Port == envPort && cfg.Observability.LogLevel == envLogLevel
		},
		genPort, genPort, genLogLevel, genLogLevel,
	))

	properties.Property("File overrides defaults when ENV not set", prop.ForAll(
		func(filePort int, fileLogLevel string) bool {
			clearAppEnv()
			defer clearAppEnv()

			configFile := writeConfigFile(t, t.TempDir(), "config.yaml", map[string]interface{}{
				"http":          map[string]interface{}{"port": filePort},
				"observability": map[string]interface{}{"log_level": fileLogLevel},
			})
			cfg, err := NewViperLoader(configFile, "APP").Load()
			if err != nil {
				t.Logf("Load error: %v", err)
				return false
			}
			defaults := DefaultConfig()
			return cfg.HTTP.Port == filePort &&
				cfg.Observability.LogLevel == fileLogLevel &&
				cfg.HTTP.ReadTimeout == defaults.HTTP.ReadTimeout
		},
		genPort, genLogLevel,
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
