package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service  ServiceConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Analysis AnalysisConfig
	Upload   UploadConfig
	Cache    CacheConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig holds S3-compatible object storage settings.
// Credentials never leave the process; callers only ever see
// presigned URLs scoped to a single object.
type StorageConfig struct {
	Endpoint   string
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	PresignTTL time.Duration
}

// AnalysisConfig holds the external vision gateway settings
type AnalysisConfig struct {
	GatewayURL  string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
}

// UploadConfig bounds uploads and upload-state bookkeeping
type UploadConfig struct {
	MaxBytes      int64
	StateTTL      time.Duration
	RateLimit     int64
	RateWindowSec int
}

// CacheConfig holds settings for the in-process download-grant cache
type CacheConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "vault"),
			User:        getEnv("POSTGRES_USER", "vault"),
			Password:    getEnv("POSTGRES_PASSWORD", "vault"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Endpoint:   getEnv("S3_ENDPOINT", ""),
			Region:     getEnv("S3_REGION", "eu-west-1"),
			Bucket:     getEnv("S3_BUCKET_NAME", ""),
			AccessKey:  getEnv("S3_ACCESS_KEY_ID", ""),
			SecretKey:  getEnv("S3_SECRET_ACCESS_KEY", ""),
			UseSSL:     getEnvBool("S3_USE_SSL", true),
			PresignTTL: getEnvDuration("S3_PRESIGN_TTL", 1*time.Hour),
		},
		Analysis: AnalysisConfig{
			GatewayURL:  getEnv("VISION_GATEWAY_URL", "https://openrouter.ai/api/v1/chat/completions"),
			APIKey:      getEnv("VISION_API_KEY", ""),
			Model:       getEnv("VISION_MODEL", "google/gemini-2.5-flash"),
			Timeout:     getEnvDuration("VISION_TIMEOUT", 30*time.Second),
			MaxAttempts: getEnvInt("VISION_MAX_ATTEMPTS", 1),
			BackoffBase: getEnvDuration("VISION_BACKOFF_BASE", 1*time.Second),
		},
		Upload: UploadConfig{
			MaxBytes:      getEnvInt64("UPLOAD_MAX_BYTES", 10*1024*1024),
			StateTTL:      getEnvDuration("UPLOAD_STATE_TTL", 24*time.Hour),
			RateLimit:     getEnvInt64("UPLOAD_RATE_LIMIT", 60),
			RateWindowSec: getEnvInt("UPLOAD_RATE_WINDOW_SEC", 60),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 50*time.Minute),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload max bytes must be positive")
	}

	return nil
}

// RequireStorage fails when object storage credentials are absent.
// The always-on service calls this at startup; on-demand paths report
// NotConfigured per request instead.
func (c *Config) RequireStorage() error {
	if c.Storage.Endpoint == "" || c.Storage.Bucket == "" ||
		c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
		return fmt.Errorf("object storage is not configured (S3_ENDPOINT, S3_BUCKET_NAME, S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY)")
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns the host:port Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
