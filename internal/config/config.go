package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable the engine reads. It is loaded once at
// startup and passed explicitly; nothing reads the environment later.
type Config struct {
	Env      string
	HTTPAddr string

	DatabaseDSN string

	ChannexBaseURL    string
	ChannexAPITimeout time.Duration

	WebhookSecret       string
	WebhookMaxBodyBytes int64

	RateBucketCapacity  float64
	RateRefillPerMinute float64

	SyncHorizonDays int
	MaxPayloadBytes int

	OutboxPollInterval  time.Duration
	OutboxBatchSize     int
	WebhookPollInterval time.Duration
	WebhookBatchSize    int
	LifecycleInterval   time.Duration

	WeekendDays    string
	ChannelEnabled bool
	Timezone       string

	NoShowCancelEnabled bool

	RedisAddr     string
	RedisPassword string

	JWTSecret       string
	ServiceAPIKey   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	LogLevel  string
	LogPretty bool
}

// Load reads .env when present, then the environment, applying the
// documented defaults.
func Load() (*Config, error) {
	// Missing .env is fine; the environment may be fully set already.
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DatabaseDSN: getEnv("DATABASE_DSN", "file:channelsync.db?cache=shared"),

		ChannexBaseURL:    getEnv("CHANNEX_BASE_URL", "https://staging.channex.io/api/v1"),
		ChannexAPITimeout: getEnvDuration("CHANNEX_API_TIMEOUT", 30*time.Second),

		WebhookSecret:       getEnv("WEBHOOK_SECRET", ""),
		WebhookMaxBodyBytes: int64(getEnvInt("WEBHOOK_MAX_BODY_BYTES", 256*1024)),

		RateBucketCapacity:  getEnvFloat("RATE_BUCKET_CAPACITY", 10),
		RateRefillPerMinute: getEnvFloat("RATE_REFILL_PER_MINUTE", 10),

		SyncHorizonDays: getEnvInt("SYNC_HORIZON_DAYS", 365),
		MaxPayloadBytes: getEnvInt("MAX_PAYLOAD_BYTES", 10_000_000),

		OutboxPollInterval:  getEnvDuration("OUTBOX_POLL_INTERVAL", 10*time.Second),
		OutboxBatchSize:     getEnvInt("OUTBOX_BATCH_SIZE", 50),
		WebhookPollInterval: getEnvDuration("WEBHOOK_POLL_INTERVAL", 10*time.Second),
		WebhookBatchSize:    getEnvInt("WEBHOOK_BATCH_SIZE", 50),
		LifecycleInterval:   getEnvDuration("LIFECYCLE_INTERVAL", time.Hour),

		WeekendDays:    getEnv("WEEKEND_DAYS", "4,5"),
		ChannelEnabled: getEnvBool("CHANNEL_ENABLED", true),
		Timezone:       getEnv("CHANNEL_TIMEZONE", "Asia/Riyadh"),

		NoShowCancelEnabled: getEnvBool("LIFECYCLE_NO_SHOW_CANCEL", false),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		ServiceAPIKey:   getEnv("SERVICE_API_KEY", ""),
		AccessTokenTTL:  getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: getEnvDuration("REFRESH_TOKEN_TTL", 720*time.Hour),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvBool("LOG_PRETTY", false),
	}

	if cfg.Env == "production" && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required in production")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid CHANNEL_TIMEZONE %q: %w", cfg.Timezone, err)
	}
	return cfg, nil
}

// Location resolves the configured channel timezone. Load has already
// validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("30s") and bare integers,
// which are read as seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
