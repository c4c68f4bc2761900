package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// GatewayMode selects how the kiosk reaches the membership store.
type GatewayMode string

const (
	// GatewayHTTP talks to the membership backend's REST API.
	GatewayHTTP GatewayMode = "http"
	// GatewayPostgres talks to the membership database directly.
	GatewayPostgres GatewayMode = "postgres"
)

// Config holds all application configuration.
type Config struct {
	// Application
	App AppConfig

	// Membership backend (REST or direct Postgres)
	Backend BackendConfig

	// PostgreSQL (used when Backend.Mode is "postgres")
	Database DatabaseConfig

	// Redis (optional shared pending shadow)
	Redis RedisConfig

	// Local durable storage (offline queue, throttle windows)
	Storage StorageConfig

	// Check-in behavior
	Kiosk KioskConfig

	// Background sync
	Sync SyncConfig

	// Local HTTP API
	HTTP HTTPConfig

	// Observability
	Observability ObservabilityConfig
}

// HTTPConfig holds the local kiosk API server settings.
type HTTPConfig struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string
	Environment Environment
	Debug       bool
	Version     string

	// Timezone for streak day boundaries (default: the kiosk's local zone)
	Timezone string
	Location *time.Location

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration
}

// BackendConfig holds membership backend settings.
type BackendConfig struct {
	// Mode selects the gateway implementation: "http" or "postgres".
	Mode GatewayMode

	// REST API settings (Mode == "http")
	BaseURL  string
	APIKey   string
	TenantID string

	RequestTimeout time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// Circuit breaker settings
	CircuitBreakerThreshold   int           // failures before opening
	CircuitBreakerTimeout     time.Duration // time before half-open
	CircuitBreakerHalfOpenMax int           // max requests in half-open
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string

	MaxConns int
	MinConns int

	ConnectTimeout time.Duration
	QueryTimeout   time.Duration
}

// RedisConfig holds Redis connection settings for the shared pending shadow.
// When several kiosks serve one mat area, the shadow keeps a member's offline
// check-in visible across all of them. Disabled by default: a single kiosk
// only needs its local queue.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// TTL on pending markers; stale markers expire on their own after sync.
	PendingTTL time.Duration

	Disabled bool
}

// StorageConfig holds local SQLite settings.
type StorageConfig struct {
	// Path to the SQLite database file.
	Path string

	// BusyTimeout is how long a writer waits for the file lock.
	BusyTimeout time.Duration
}

// KioskConfig holds check-in behavior settings.
type KioskConfig struct {
	// Cooldown is the minimum gap between two counted check-ins.
	Cooldown time.Duration

	// Churn flag thresholds, in whole days since last attendance.
	WarningAfterDays  int
	CriticalAfterDays int

	// Attempt throttle: at most MaxAttempts per ThrottleWindow, then
	// blocked for ThrottleBlock.
	ThrottleWindow      time.Duration
	ThrottleMaxAttempts int
	ThrottleBlock       time.Duration
}

// SyncConfig holds background sync settings.
type SyncConfig struct {
	// Enable/disable the background flush job
	Enabled bool

	// FlushInterval is how often the offline queue is drained.
	FlushInterval time.Duration

	// HealthPollInterval is how often connectivity is probed.
	HealthPollInterval time.Duration
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text

	// Metrics
	MetricsEnabled bool
	MetricsPort    int
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.App = loadAppConfig()
	cfg.Backend = loadBackendConfig()
	cfg.Database = loadDatabaseConfig()
	cfg.Redis = loadRedisConfig()
	cfg.Storage = loadStorageConfig()
	cfg.Kiosk = loadKioskConfig()
	cfg.Sync = loadSyncConfig()
	cfg.HTTP = loadHTTPConfig()
	cfg.Observability = loadObservabilityConfig()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func loadAppConfig() AppConfig {
	env := Environment(getEnv("APP_ENV", "development"))
	timezone := getEnv("APP_TIMEZONE", "Local")

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.Local
	}

	return AppConfig{
		Name:            getEnv("APP_NAME", "dojo-attendance-hub"),
		Environment:     env,
		Debug:           env == EnvDevelopment || getEnvBool("APP_DEBUG", false),
		Version:         getEnv("APP_VERSION", "0.1.0"),
		Timezone:        timezone,
		Location:        loc,
		ShutdownTimeout: getEnvDuration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadBackendConfig() BackendConfig {
	return BackendConfig{
		Mode:                      GatewayMode(getEnv("BACKEND_MODE", string(GatewayHTTP))),
		BaseURL:                   getEnv("BACKEND_BASE_URL", ""),
		APIKey:                    getEnv("BACKEND_API_KEY", ""),
		TenantID:                  getEnv("BACKEND_TENANT_ID", ""),
		RequestTimeout:            getEnvDuration("BACKEND_REQUEST_TIMEOUT", 5*time.Second),
		MaxRetries:                getEnvInt("BACKEND_MAX_RETRIES", 3),
		RetryBaseDelay:            getEnvDuration("BACKEND_RETRY_BASE_DELAY", 200*time.Millisecond),
		RetryMaxDelay:             getEnvDuration("BACKEND_RETRY_MAX_DELAY", 2*time.Second),
		CircuitBreakerThreshold:   getEnvInt("BACKEND_CB_THRESHOLD", 3),
		CircuitBreakerTimeout:     getEnvDuration("BACKEND_CB_TIMEOUT", 30*time.Second),
		CircuitBreakerHalfOpenMax: getEnvInt("BACKEND_CB_HALF_OPEN_MAX", 1),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:           getEnv("DB_HOST", ""),
		Port:           getEnvInt("DB_PORT", 5432),
		Name:           getEnv("DB_NAME", "dojo"),
		User:           getEnv("DB_USER", ""),
		Password:       getEnv("DB_PASSWORD", ""),
		SSLMode:        getEnv("DB_SSLMODE", "require"),
		MaxConns:       getEnvInt("DB_MAX_CONNS", 4),
		MinConns:       getEnvInt("DB_MIN_CONNS", 1),
		ConnectTimeout: getEnvDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
		QueryTimeout:   getEnvDuration("DB_QUERY_TIMEOUT", 5*time.Second),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Host:         getEnv("REDIS_HOST", "localhost"),
		Port:         getEnvInt("REDIS_PORT", 6379),
		Password:     getEnv("REDIS_PASSWORD", ""),
		DB:           getEnvInt("REDIS_DB", 0),
		DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		PendingTTL:   getEnvDuration("REDIS_PENDING_TTL", 24*time.Hour),
		Disabled:     getEnvBool("REDIS_DISABLED", true),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Path:        getEnv("STORAGE_PATH", "kiosk.db"),
		BusyTimeout: getEnvDuration("STORAGE_BUSY_TIMEOUT", 5*time.Second),
	}
}

func loadKioskConfig() KioskConfig {
	return KioskConfig{
		Cooldown:            getEnvDuration("KIOSK_COOLDOWN", 60*time.Minute),
		WarningAfterDays:    getEnvInt("KIOSK_WARNING_AFTER_DAYS", 7),
		CriticalAfterDays:   getEnvInt("KIOSK_CRITICAL_AFTER_DAYS", 14),
		ThrottleWindow:      getEnvDuration("KIOSK_THROTTLE_WINDOW", 15*time.Minute),
		ThrottleMaxAttempts: getEnvInt("KIOSK_THROTTLE_MAX_ATTEMPTS", 3),
		ThrottleBlock:       getEnvDuration("KIOSK_THROTTLE_BLOCK", 15*time.Minute),
	}
}

func loadSyncConfig() SyncConfig {
	return SyncConfig{
		Enabled:            getEnvBool("SYNC_ENABLED", true),
		FlushInterval:      getEnvDuration("SYNC_FLUSH_INTERVAL", 60*time.Second),
		HealthPollInterval: getEnvDuration("SYNC_HEALTH_POLL_INTERVAL", 15*time.Second),
	}
}

func loadHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Host:         getEnv("HTTP_HOST", "127.0.0.1"),
		Port:         getEnvInt("HTTP_PORT", 8080),
		ReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:  getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", false),
		MetricsPort:    getEnvInt("METRICS_PORT", 9090),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Backend.TenantID == "" {
		errs = append(errs, "BACKEND_TENANT_ID is required")
	}

	switch c.Backend.Mode {
	case GatewayHTTP:
		if c.Backend.BaseURL == "" {
			errs = append(errs, "BACKEND_BASE_URL is required when BACKEND_MODE=http")
		}
	case GatewayPostgres:
		if c.Database.Host == "" || c.Database.User == "" {
			errs = append(errs, "DB_HOST and DB_USER are required when BACKEND_MODE=postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("BACKEND_MODE must be %q or %q", GatewayHTTP, GatewayPostgres))
	}

	if c.Kiosk.Cooldown < 0 {
		errs = append(errs, "KIOSK_COOLDOWN must not be negative")
	}
	if c.Kiosk.WarningAfterDays <= 0 {
		errs = append(errs, "KIOSK_WARNING_AFTER_DAYS must be positive")
	}
	if c.Kiosk.CriticalAfterDays <= c.Kiosk.WarningAfterDays {
		errs = append(errs, "KIOSK_CRITICAL_AFTER_DAYS must be greater than KIOSK_WARNING_AFTER_DAYS")
	}
	if c.Kiosk.ThrottleMaxAttempts <= 0 {
		errs = append(errs, "KIOSK_THROTTLE_MAX_ATTEMPTS must be positive")
	}
	if c.Sync.FlushInterval <= 0 {
		errs = append(errs, "SYNC_FLUSH_INTERVAL must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// --- Helper functions for environment variable parsing ---

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
