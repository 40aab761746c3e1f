package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr  string
	DBDriver  string
	DBDSN     string
	JWTSecret string
	TokenTTL  time.Duration
	LogLevel  slog.Level

	// MaxUploadBytes caps multipart bodies (images and profile pictures).
	MaxUploadBytes int64

	AuthRatePerMinute int
	AuthRateBurst     int

	// TrustedProxies may set X-Forwarded-For. Empty trusts no proxy.
	TrustedProxies []string

	Redis RedisConfig
	Minio MinioConfig
	NATS  NATSConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

type NATSConfig struct {
	URL string
}

// Load reads the process environment, after merging an optional .env file.
// Defaults match a local development stack.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	level, err := parseLevel(GetEnvAsString("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:          GetEnvAsString("HTTP_ADDR", ":8080"),
		DBDriver:          strings.ToLower(GetEnvAsString("DB_DRIVER", "mysql")),
		DBDSN:             GetEnvAsString("DB_DSN", "root:123456@tcp(127.0.0.1:3306)/quillpost?charset=utf8mb4&parseTime=True&loc=Local"),
		JWTSecret:         GetEnvAsString("JWT_SECRET", "my_secret_key"),
		TokenTTL:          GetEnvAsDuration("TOKEN_TTL", 24*time.Hour),
		LogLevel:          level,
		MaxUploadBytes:    int64(GetEnvAsInt("MAX_UPLOAD_BYTES", 2*1024*1024)),
		AuthRatePerMinute: GetEnvAsInt("AUTH_RATE_PER_MINUTE", 30),
		AuthRateBurst:     GetEnvAsInt("AUTH_RATE_BURST", 10),
		TrustedProxies:    GetEnvAsList("TRUSTED_PROXIES"),
		Redis: RedisConfig{
			Addr:     GetEnvAsString("REDIS_ADDR", "localhost:6379"),
			Password: GetEnvAsString("REDIS_PASSWORD", ""),
			DB:       GetEnvAsInt("REDIS_DB", 0),
			TTL:      GetEnvAsDuration("RATING_CACHE_TTL", 5*time.Minute),
		},
		Minio: MinioConfig{
			Endpoint:  GetEnvAsString("MINIO_ENDPOINT", "127.0.0.1:9000"),
			AccessKey: GetEnvAsString("MINIO_ACCESS_KEY", "admin"),
			SecretKey: GetEnvAsString("MINIO_SECRET_KEY", "password123"),
			Bucket:    GetEnvAsString("MINIO_BUCKET", "quillpost"),
			UseSSL:    GetEnvAsBool("MINIO_USE_SSL", false),
			PublicURL: GetEnvAsString("MINIO_PUBLIC_URL", "http://127.0.0.1:9000"),
		},
		NATS: NATSConfig{
			URL: GetEnvAsString("NATS_URL", ""),
		},
	}

	switch cfg.DBDriver {
	case "mysql", "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.AuthRatePerMinute <= 0 || cfg.AuthRateBurst <= 0 {
		return nil, fmt.Errorf("AUTH_RATE_PER_MINUTE and AUTH_RATE_BURST must be positive")
	}
	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

// GetEnvAsInt gets environment variable as int with default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsDuration gets environment variable as duration with default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetEnvAsBool gets environment variable as bool with default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvAsString gets environment variable as string with default value
func GetEnvAsString(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvAsList splits a comma-separated environment variable, dropping blanks
func GetEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
