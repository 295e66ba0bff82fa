package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/passbill/pkg/catalog"
	"github.com/platinummonkey/passbill/pkg/observability"
	"github.com/platinummonkey/passbill/pkg/renewal"
	"github.com/platinummonkey/passbill/pkg/storage"
)

// Meter backends
const (
	MeterMemory = "memory"
	MeterRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Meter         string
	Catalog       CatalogConfig
	Renewal       RenewalConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// CatalogConfig locates the pricing catalog. At most one of Path and
// S3.Bucket is set; with neither the service starts with an empty catalog.
type CatalogConfig struct {
	Path  string
	Watch bool
	S3    catalog.S3Config
}

// RenewalConfig holds the renewal worker settings
type RenewalConfig struct {
	Schedule string
	renewal.Config
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from PASSBILL_* environment variables
func LoadConfig() (*Config, error) {
	observabilityCfg, err := loadObservabilityConfig()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Meter:         strings.ToLower(getEnv("PASSBILL_METER", MeterMemory)),
		Catalog:       loadCatalogConfig(),
		Renewal:       loadRenewalConfig(),
		Observability: observabilityCfg,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("PASSBILL_HOST", "0.0.0.0"),
		Port:            getEnv("PASSBILL_PORT", "8080"),
		ReadTimeout:     getEnvDuration("PASSBILL_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("PASSBILL_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("PASSBILL_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("PASSBILL_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("PASSBILL_MAX_BODY_BYTES", 1<<20),
		HealthPort:      getEnv("PASSBILL_HEALTH_PORT", "9090"),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if storageType := getEnv("PASSBILL_STORAGE_TYPE", ""); storageType != "" {
		cfg.Type = strings.ToLower(storageType)
	}

	cfg.PostgresURL = getEnv("PASSBILL_POSTGRES_URL", "")
	cfg.PostgresReplicaURLs = getEnvList("PASSBILL_POSTGRES_REPLICA_URLS")
	if maxConns := getEnvInt("PASSBILL_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns := getEnvInt("PASSBILL_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.MinConns = minConns
	}
	if timeout := getEnvDuration("PASSBILL_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.Timeout = timeout
	}
	cfg.SQLitePath = getEnv("PASSBILL_SQLITE_PATH", cfg.SQLitePath)

	cfg.RedisURL = getEnv("PASSBILL_REDIS_URL", "")
	cfg.RedisPassword = getEnv("PASSBILL_REDIS_PASSWORD", "")
	if redisDB := getEnvInt("PASSBILL_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("PASSBILL_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("PASSBILL_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	cfg.CacheEnabled = getEnvBool("PASSBILL_CACHE_ENABLED", cfg.CacheEnabled)
	if ttl := getEnvDuration("PASSBILL_CACHE_TTL", 0); ttl > 0 {
		cfg.CacheTTL = ttl
	}
	if size := getEnvInt("PASSBILL_LRU_SIZE", 0); size > 0 {
		cfg.LRUSize = size
	}

	return cfg
}

func loadCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Path:  getEnv("PASSBILL_CATALOG_PATH", ""),
		Watch: getEnvBool("PASSBILL_CATALOG_WATCH", false),
		S3: catalog.S3Config{
			Bucket:       getEnv("PASSBILL_CATALOG_S3_BUCKET", ""),
			Key:          getEnv("PASSBILL_CATALOG_S3_KEY", "catalog.yaml"),
			Region:       getEnv("PASSBILL_CATALOG_S3_REGION", "us-east-1"),
			Endpoint:     getEnv("PASSBILL_CATALOG_S3_ENDPOINT", ""),
			AccessKey:    getEnv("PASSBILL_CATALOG_S3_ACCESS_KEY", ""),
			SecretKey:    getEnv("PASSBILL_CATALOG_S3_SECRET_KEY", ""),
			UsePathStyle: getEnvBool("PASSBILL_CATALOG_S3_PATH_STYLE", false),
		},
	}
}

func loadRenewalConfig() RenewalConfig {
	defaults := renewal.DefaultConfig()
	return RenewalConfig{
		Schedule: getEnv("PASSBILL_RENEWAL_SCHEDULE", "*/15 * * * *"),
		Config: renewal.Config{
			Workers:     getEnvInt("PASSBILL_RENEWAL_WORKERS", defaults.Workers),
			BatchSize:   getEnvInt("PASSBILL_RENEWAL_BATCH_SIZE", defaults.BatchSize),
			TaskTimeout: getEnvDuration("PASSBILL_RENEWAL_TASK_TIMEOUT", defaults.TaskTimeout),
		},
	}
}

func loadObservabilityConfig() (ObservabilityConfig, error) {
	level, err := observability.ParseLevel(getEnv("PASSBILL_LOG_LEVEL", "info"))
	if err != nil {
		return ObservabilityConfig{}, err
	}

	return ObservabilityConfig{
		LogLevel:           level,
		MetricsEnabled:     getEnvBool("PASSBILL_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("PASSBILL_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("PASSBILL_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("PASSBILL_OTEL_SERVICE_NAME", "passbill"),
		OTelServiceVersion: getEnv("PASSBILL_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("PASSBILL_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("PASSBILL_OTEL_SAMPLE_RATIO", 1),
	}, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory, postgres, or sqlite)", c.Storage.Type)
	}

	switch c.Meter {
	case MeterMemory:
	case MeterRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis meter")
		}
	default:
		return fmt.Errorf("invalid meter: %s (must be memory or redis)", c.Meter)
	}

	if c.Catalog.Path != "" && c.Catalog.S3.Bucket != "" {
		return fmt.Errorf("catalog path and catalog S3 bucket are mutually exclusive")
	}
	if c.Catalog.Watch && c.Catalog.Path == "" {
		return fmt.Errorf("catalog watch requires a catalog path")
	}
	if c.Catalog.S3.Bucket != "" && c.Catalog.S3.Key == "" {
		return fmt.Errorf("catalog S3 key is required when a bucket is set")
	}

	if _, err := cron.ParseStandard(c.Renewal.Schedule); err != nil {
		return fmt.Errorf("invalid renewal schedule %q: %w", c.Renewal.Schedule, err)
	}
	if c.Renewal.Workers <= 0 {
		return fmt.Errorf("renewal workers must be positive")
	}
	if c.Renewal.BatchSize <= 0 {
		return fmt.Errorf("renewal batch size must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty entries
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
