package config

import (
	"fmt"
	"time"

	"github.com/RishiKendai/dupcheck/internal/configs/env"
)

// Notification drivers understood by NOTIFY_DRIVER.
const (
	NotifyDriverMongo   = "mongo"
	NotifyDriverWebhook = "webhook"
	NotifyDriverStream  = "stream"
)

// Config holds all configuration for the application
type Config struct {
	// MongoDB
	MongoURI    string
	MongoDBName string

	// Redis
	RedisHost               string
	RedisPassword           string
	RedisDB                 int
	RedisStreamKey          string
	RedisConsumerGroup      string
	RedisDeadLetterKey      string
	StreamRetentionDuration time.Duration
	StreamEnabled           bool

	// JWT
	JWTSecret string
	JWTIssuer string

	// Rate Limiting
	RateLimitRPS float64

	// Scanning
	MaxConcurrentScans   int
	ScanTimeout          time.Duration
	BatchSize            int
	DuplicationThreshold float64
	ScanLockTTL          time.Duration

	// Notifications
	NotifyDriver     string
	NotifyWebhookURL string
	NotifyAPIKey     string
	NotifyStreamKey  string

	// Logging
	LogLevel  string
	LogPretty bool

	// Server
	ServerPort  string
	MetricsPort string
}

func Load() (*Config, error) {
	cfg := &Config{}

	// MongoDB
	cfg.MongoURI = env.GetEnv("MONGO_URI", "")
	cfg.MongoDBName = env.GetEnv("MONGO_DB_NAME", "")

	// Redis
	cfg.RedisHost = env.GetEnv("REDIS_HOST", "localhost:6379")
	cfg.RedisPassword = env.GetEnv("REDIS_PASSWORD", "")
	cfg.RedisDB = env.GetEnvInt("REDIS_DB", 0)
	cfg.RedisStreamKey = env.GetEnv("REDIS_STREAM_KEY", "dupcheck:scan_requests")
	cfg.RedisConsumerGroup = env.GetEnv("REDIS_CONSUMER_GROUP", "dupcheck:group")
	cfg.RedisDeadLetterKey = env.GetEnv("REDIS_DEAD_LETTER_KEY", "dupcheck:dlq")
	retentionHours := env.GetEnvInt("STREAM_RETENTION_DURATION", 24)
	cfg.StreamRetentionDuration = time.Duration(retentionHours) * time.Hour
	cfg.StreamEnabled = env.GetEnvBool("STREAM_ENABLED", true)

	// JWT
	cfg.JWTSecret = env.GetEnv("JWT_SECRET", "")
	cfg.JWTIssuer = env.GetEnv("JWT_ISSUER", "dupcheck")

	// Rate Limiting
	cfg.RateLimitRPS = env.GetEnvFloat("RATE_LIMIT_RPS", 10.0)

	// Scanning
	cfg.MaxConcurrentScans = env.GetEnvInt("MAX_CONCURRENT_SCANS", 4)
	timeoutMinutes := env.GetEnvInt("SCAN_TIMEOUT_MINUTES", 30)
	cfg.ScanTimeout = time.Duration(timeoutMinutes) * time.Minute
	cfg.BatchSize = env.GetEnvInt("BATCH_SIZE", 64)
	cfg.DuplicationThreshold = env.GetEnvFloat("DUPLICATION_THRESHOLD", 0.8)
	lockSeconds := env.GetEnvInt("SCAN_LOCK_TTL_SECONDS", timeoutMinutes*60+60)
	cfg.ScanLockTTL = time.Duration(lockSeconds) * time.Second

	// Notifications
	cfg.NotifyDriver = env.GetEnv("NOTIFY_DRIVER", NotifyDriverMongo)
	cfg.NotifyWebhookURL = env.GetEnv("NOTIFY_WEBHOOK_URL", "")
	cfg.NotifyAPIKey = env.GetEnv("NOTIFY_API_KEY", "")
	cfg.NotifyStreamKey = env.GetEnv("NOTIFY_STREAM_KEY", "dupcheck:notifications")

	// Logging
	cfg.LogLevel = env.GetEnv("LOG_LEVEL", "info")
	cfg.LogPretty = env.GetEnvBool("LOG_PRETTY", false)

	// Server
	cfg.ServerPort = env.GetEnv("SERVER_PORT", "8080")
	cfg.MetricsPort = env.GetEnv("METRICS_PORT", "2112")

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if c.MongoDBName == "" {
		return fmt.Errorf("MONGO_DB_NAME is required")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.MaxConcurrentScans <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_SCANS must be greater than 0")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be greater than 0")
	}
	if c.ScanTimeout <= 0 {
		return fmt.Errorf("SCAN_TIMEOUT_MINUTES must be greater than 0")
	}
	// The lock must outlive the longest scan, and a zero TTL never expires.
	if c.ScanLockTTL <= c.ScanTimeout {
		return fmt.Errorf("SCAN_LOCK_TTL_SECONDS must be greater than the scan timeout")
	}
	if c.DuplicationThreshold < 0 || c.DuplicationThreshold >= 1 {
		return fmt.Errorf("DUPLICATION_THRESHOLD must be in [0, 1)")
	}
	if c.StreamEnabled && c.StreamRetentionDuration <= 0 {
		return fmt.Errorf("STREAM_RETENTION_DURATION must be greater than 0")
	}
	switch c.NotifyDriver {
	case NotifyDriverMongo, NotifyDriverStream:
	case NotifyDriverWebhook:
		if c.NotifyWebhookURL == "" {
			return fmt.Errorf("NOTIFY_WEBHOOK_URL is required for the webhook notify driver")
		}
	default:
		return fmt.Errorf("unknown NOTIFY_DRIVER: %s", c.NotifyDriver)
	}
	return nil
}
