// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	LogLevel    string
	Server      ServerConfig
	Storage     StorageConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Shopify     ShopifyConfig
	Sync        SyncConfig
	Security    SecurityConfig
	AWS         AWSConfig
	CORS        CORSConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type StorageConfig struct {
	// Driver is "postgres" or "memory".
	Driver string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

type ShopifyConfig struct {
	APIVersion        string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	MaxRetries        int
	// BaseURLOverride replaces https://{domain} (tests, proxies).
	BaseURLOverride string
}

type SyncConfig struct {
	PushTimeout     time.Duration
	MaxConcurrency  int
	PollInterval    time.Duration
	DefaultStrategy string
	// RecoverAfter is how old a pending or syncing result must be before the
	// startup sweep fails it.
	RecoverAfter time.Duration
}

type SecurityConfig struct {
	// CredentialsKey encrypts store access tokens at rest.
	CredentialsKey string
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	CloudFrontURL   string
}

type CORSConfig struct {
	AllowedOrigins []string
}

const defaultCredentialsKey = "change-me-32-byte-credentials-key"

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(getEnv("STORAGE_DRIVER", "postgres")),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "multistore"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "silent"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			LockTTL:  getEnvAsDuration("REDIS_LOCK_TTL", 10*time.Second),
		},
		Shopify: ShopifyConfig{
			APIVersion:        getEnv("SHOPIFY_API_VERSION", "2024-10"),
			RequestsPerSecond: getEnvAsFloat("SHOPIFY_REQUESTS_PER_SECOND", 2),
			Burst:             getEnvAsInt("SHOPIFY_BURST", 4),
			Timeout:           getEnvAsDuration("SHOPIFY_TIMEOUT", 20*time.Second),
			MaxRetries:        getEnvAsInt("SHOPIFY_MAX_RETRIES", 3),
			BaseURLOverride:   getEnv("SHOPIFY_BASE_URL", ""),
		},
		Sync: SyncConfig{
			PushTimeout:     getEnvAsDuration("SYNC_PUSH_TIMEOUT", 30*time.Second),
			MaxConcurrency:  getEnvAsInt("SYNC_MAX_CONCURRENCY", 8),
			PollInterval:    getEnvAsDuration("SYNC_POLL_INTERVAL", 2*time.Second),
			DefaultStrategy: getEnv("ALLOCATION_DEFAULT_STRATEGY", "balanced"),
			RecoverAfter:    getEnvAsDuration("SYNC_RECOVER_AFTER", 0),
		},
		Security: SecurityConfig{
			CredentialsKey: getEnv("CREDENTIALS_KEY", defaultCredentialsKey),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "multistore-media"),
			CloudFrontURL:   getEnv("AWS_CLOUDFRONT_URL", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.Storage.Driver != "postgres" && c.Storage.Driver != "memory" {
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}

	if c.Sync.PushTimeout <= 0 {
		return fmt.Errorf("SYNC_PUSH_TIMEOUT must be positive")
	}

	if c.Environment == "production" {
		if c.Security.CredentialsKey == defaultCredentialsKey {
			return fmt.Errorf("credentials key must be changed in production")
		}
		if c.Database.Password == "" && c.Storage.Driver == "postgres" {
			return fmt.Errorf("database password is required in production")
		}
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
