package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/countstat/pkg/observability"
	"github.com/platinummonkey/countstat/pkg/storage"
)

// Lock backends.
const (
	LockFile  = "file"
	LockRedis = "redis"
	LockNone  = "none"
)

// Config holds all application configuration
type Config struct {
	Database      storage.Config
	Analytics     AnalyticsConfig
	Server        ServerConfig
	Lock          LockConfig
	Redis         storage.RedisConfig
	Observability ObservabilityConfig
}

// AnalyticsConfig controls update passes.
type AnalyticsConfig struct {
	// LogPath is the analytics event log; empty logs to stdout.
	LogPath string
	// SafetyLag is subtracted from the current hour to get the default fill target.
	SafetyLag time.Duration
	// InstallationEpoch pins the first bucket of new stats. Zero derives it
	// from the first realm.
	InstallationEpoch time.Time
	Workers           int
	StatTimeout       time.Duration
}

// ServerConfig configures the serve daemon.
type ServerConfig struct {
	Addr            string
	Schedule        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// RunOnStart runs one update pass before the first scheduled tick.
	RunOnStart bool
}

// LockConfig selects how update passes exclude each other.
type LockConfig struct {
	Backend string
	Path    string
	Key     string
	TTL     time.Duration
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

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	analytics, err := loadAnalyticsConfig()
	if err != nil {
		return nil, err
	}
	obs, err := loadObservabilityConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database:      loadDatabaseConfig(),
		Analytics:     analytics,
		Server:        loadServerConfig(),
		Lock:          loadLockConfig(),
		Redis:         loadRedisConfig(),
		Observability: obs,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadDatabaseConfig() storage.Config {
	cfg := storage.DefaultConfig()

	cfg.Driver = getEnv("COUNTSTAT_DATABASE_DRIVER", cfg.Driver)
	cfg.URL = getEnv("COUNTSTAT_DATABASE_URL", "")
	if maxConns := getEnvInt("COUNTSTAT_DATABASE_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns := getEnvInt("COUNTSTAT_DATABASE_MIN_CONNS", 0); minConns > 0 {
		cfg.MinConns = minConns
	}
	if timeout := getEnvDuration("COUNTSTAT_DATABASE_TIMEOUT", 0); timeout > 0 {
		cfg.Timeout = timeout
	}

	return cfg
}

func loadAnalyticsConfig() (AnalyticsConfig, error) {
	cfg := AnalyticsConfig{
		LogPath:     getEnv("COUNTSTAT_ANALYTICS_LOG_PATH", ""),
		SafetyLag:   getEnvDuration("COUNTSTAT_SAFETY_LAG", 0),
		Workers:     getEnvInt("COUNTSTAT_WORKERS", 4),
		StatTimeout: getEnvDuration("COUNTSTAT_STAT_TIMEOUT", 0),
	}

	if epoch := getEnv("COUNTSTAT_INSTALLATION_EPOCH", ""); epoch != "" {
		t, err := time.Parse(time.RFC3339, epoch)
		if err != nil {
			return cfg, fmt.Errorf("COUNTSTAT_INSTALLATION_EPOCH: %w", err)
		}
		cfg.InstallationEpoch = t.UTC()
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            getEnv("COUNTSTAT_HTTP_ADDR", ":9090"),
		Schedule:        getEnv("COUNTSTAT_SCHEDULE", "5 * * * *"),
		ReadTimeout:     getEnvDuration("COUNTSTAT_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("COUNTSTAT_WRITE_TIMEOUT", 15*time.Second),
		ShutdownTimeout: getEnvDuration("COUNTSTAT_SHUTDOWN_TIMEOUT", 30*time.Second),
		RunOnStart:      getEnvBool("COUNTSTAT_RUN_ON_START", true),
	}
}

func loadLockConfig() LockConfig {
	return LockConfig{
		Backend: strings.ToLower(getEnv("COUNTSTAT_LOCK_BACKEND", LockFile)),
		Path:    getEnv("COUNTSTAT_LOCK_PATH", filepath.Join(os.TempDir(), "countstat-update.lock")),
		Key:     getEnv("COUNTSTAT_LOCK_KEY", "countstat:update-analytics"),
		TTL:     getEnvDuration("COUNTSTAT_LOCK_TTL", time.Hour),
	}
}

func loadRedisConfig() storage.RedisConfig {
	return storage.RedisConfig{
		URL:        getEnv("COUNTSTAT_REDIS_URL", ""),
		Password:   getEnv("COUNTSTAT_REDIS_PASSWORD", ""),
		DB:         getEnvInt("COUNTSTAT_REDIS_DB", 0),
		MaxRetries: getEnvInt("COUNTSTAT_REDIS_MAX_RETRIES", 0),
		PoolSize:   getEnvInt("COUNTSTAT_REDIS_POOL_SIZE", 0),
	}
}

func loadObservabilityConfig() (ObservabilityConfig, error) {
	level, err := observability.ParseLogLevel(getEnv("COUNTSTAT_LOG_LEVEL", "info"))
	if err != nil {
		return ObservabilityConfig{}, fmt.Errorf("COUNTSTAT_LOG_LEVEL: %w", err)
	}

	return ObservabilityConfig{
		LogLevel:           level,
		MetricsEnabled:     getEnvBool("COUNTSTAT_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("COUNTSTAT_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("COUNTSTAT_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("COUNTSTAT_OTEL_SERVICE_NAME", "countstat"),
		OTelServiceVersion: getEnv("COUNTSTAT_OTEL_SERVICE_VERSION", "dev"),
		OTelInsecure:       getEnvBool("COUNTSTAT_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("COUNTSTAT_OTEL_SAMPLE_RATIO", 1),
	}, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := storage.ParseDialect(c.Database.Driver); err != nil {
		return err
	}
	if c.Database.URL == "" {
		return fmt.Errorf("COUNTSTAT_DATABASE_URL is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("database max connections must be positive")
	}

	if c.Analytics.SafetyLag < 0 || c.Analytics.SafetyLag%time.Hour != 0 {
		return fmt.Errorf("safety lag must be a non-negative whole number of hours, got %s", c.Analytics.SafetyLag)
	}
	if e := c.Analytics.InstallationEpoch; !e.IsZero() && !e.Equal(e.Truncate(time.Hour)) {
		return fmt.Errorf("installation epoch %s is not hour aligned", e.Format(time.RFC3339))
	}
	if c.Analytics.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.Analytics.StatTimeout < 0 {
		return fmt.Errorf("stat timeout must not be negative")
	}

	if _, err := cron.ParseStandard(c.Server.Schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", c.Server.Schedule, err)
	}

	switch c.Lock.Backend {
	case LockNone:
	case LockFile:
		if c.Lock.Path == "" {
			return fmt.Errorf("lock path is required for the file lock backend")
		}
	case LockRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("COUNTSTAT_REDIS_URL is required for the redis lock backend")
		}
		if c.Lock.TTL <= 0 {
			return fmt.Errorf("lock TTL must be positive")
		}
	default:
		return fmt.Errorf("invalid lock backend: %s (must be file, redis, or none)", c.Lock.Backend)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
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
