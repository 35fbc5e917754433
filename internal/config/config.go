package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
	// ConnectAttempts bounds startup pings while the database comes up.
	ConnectAttempts int
}

// RemoteConfig holds settings for the S3-compatible object store.
// Driver selects the client library: "minio" or "s3".
type RemoteConfig struct {
	Enabled   bool
	Driver    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PathStyle bool
}

// RetryConfig controls the bounded exponential retry of transient remote failures.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	Jitter      float64
}

// StorageConfig groups everything the storage backends and document services need.
type StorageConfig struct {
	Remote    RemoteConfig
	LocalRoot string

	PresignDefaultTTL time.Duration
	PresignMaxTTL     time.Duration

	MaxUploadSize    int64
	AllowedMIMETypes []string

	// FallbackOnAccessDenied lets uploads land on local disk when the remote
	// store rejects the configured credentials.
	FallbackOnAccessDenied bool

	Retry            RetryConfig
	OperationTimeout time.Duration
	ConnectTimeout   time.Duration
	HealthRecheck    time.Duration

	ReconcileInterval time.Duration
	ReconcileGrace    time.Duration
}

// RedisConfig configures the optional presigned URL cache.
// An empty Addr selects the in-process cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost  string
	Port     string
	Timezone string
	LogLevel string
	Database DatabaseConfig
	Storage  StorageConfig
	Redis    RedisConfig
}

// DefaultAllowedMIMETypes lists the document formats accepted when
// STORAGE_ALLOWED_MIME_TYPES is unset.
var DefaultAllowedMIMETypes = []string{
	"application/pdf",
	"image/*",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"text/plain",
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:  getEnv("APP_HOST", "localhost:8080"),
		Port:     getEnv("PORT", "8080"), // default only for non-sensitive value
		Timezone: getEnv("APP_TIMEZONE", "UTC"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
			ConnectAttempts:    getEnvInt("DB_CONNECT_ATTEMPTS", 5),
		},
		Storage: StorageConfig{
			Remote: RemoteConfig{
				Enabled:   getEnvBool("STORAGE_REMOTE_ENABLED", true),
				Driver:    getEnv("STORAGE_REMOTE_DRIVER", "minio"),
				Endpoint:  getEnv("STORAGE_REMOTE_ENDPOINT", ""),
				Region:    getEnv("STORAGE_REMOTE_REGION", "us-east-1"),
				AccessKey: getEnv("STORAGE_REMOTE_ACCESS_KEY", ""),
				SecretKey: getEnv("STORAGE_REMOTE_SECRET_KEY", ""),
				Bucket:    getEnv("STORAGE_REMOTE_BUCKET", ""),
				UseSSL:    getEnvBool("STORAGE_REMOTE_USE_SSL", false),
				PathStyle: getEnvBool("STORAGE_REMOTE_PATH_STYLE", true),
			},
			LocalRoot:              getEnv("STORAGE_LOCAL_ROOT", "./data/documents"),
			PresignDefaultTTL:      getEnvDuration("STORAGE_PRESIGN_DEFAULT_TTL", 5*time.Minute),
			PresignMaxTTL:          getEnvDuration("STORAGE_PRESIGN_MAX_TTL", time.Hour),
			MaxUploadSize:          getEnvInt64("STORAGE_MAX_UPLOAD_SIZE", 10<<20),
			AllowedMIMETypes:       getEnvList("STORAGE_ALLOWED_MIME_TYPES", DefaultAllowedMIMETypes),
			FallbackOnAccessDenied: getEnvBool("STORAGE_FALLBACK_ON_ACCESS_DENIED", true),
			Retry: RetryConfig{
				MaxAttempts: getEnvInt("STORAGE_RETRY_MAX_ATTEMPTS", 3),
				BaseDelay:   getEnvDuration("STORAGE_RETRY_BASE_DELAY", 200*time.Millisecond),
				Factor:      getEnvFloat("STORAGE_RETRY_FACTOR", 2),
				Jitter:      getEnvFloat("STORAGE_RETRY_JITTER", 0.5),
			},
			OperationTimeout:  getEnvDuration("STORAGE_OPERATION_TIMEOUT", 30*time.Second),
			ConnectTimeout:    getEnvDuration("STORAGE_CONNECT_TIMEOUT", 5*time.Second),
			HealthRecheck:     getEnvDuration("STORAGE_HEALTH_RECHECK", 30*time.Second),
			ReconcileInterval: getEnvDuration("STORAGE_RECONCILE_INTERVAL", 5*time.Minute),
			ReconcileGrace:    getEnvDuration("STORAGE_RECONCILE_GRACE", time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "docvault:presign:"),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

// getEnvDuration accepts Go duration strings ("30s") or bare seconds ("30").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
