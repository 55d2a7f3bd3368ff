package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Outbound fetching
	DelayProfile  string // "off", "cautious", "normal", "aggressive"
	RatePerSecond float64
	RateBurst     int
	RespectRobots bool
	Proxies       string // comma separated proxy URLs, or @path to a file
	MaxPerDomain  int

	// Logging
	LogLevel  string
	LogFormat string // "text" or "json"

	// Persistence
	StoreBackend string // "memory" or "postgres"
	DatabaseURL  string
	CacheBackend string // "memory" or "redis"
	RedisURL     string

	// Search providers
	AIAPIKey   string
	AIBaseURL  string
	AIModel    string
	SERPAPIKey string

	// Budgets
	FetchTimeout  time.Duration
	IngestTimeout time.Duration
	EquivBudget   time.Duration
	MinConfidence float64

	// HTTP server
	HTTPPort string
	APIKey   string
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DelayProfile:  "off",
		RatePerSecond: 4.0,
		RateBurst:     4,
		RespectRobots: true,
		MaxPerDomain:  2,
		LogLevel:      "info",
		LogFormat:     "text",
		StoreBackend:  "memory",
		CacheBackend:  "memory",
		FetchTimeout:  6 * time.Second,
		IngestTimeout: 12 * time.Second,
		EquivBudget:   8 * time.Second,
		MinConfidence: 0.7,
		HTTPPort:      "8080",
	}
}

// AIConfigured reports whether an AI search key is set.
func (c *Config) AIConfigured() bool { return c.AIAPIKey != "" }

// SERPConfigured reports whether a SERP key is set.
func (c *Config) SERPConfigured() bool { return c.SERPAPIKey != "" }

// LoadFromEnv loads .env file (if present) then overrides config from environment variables.
func (c *Config) LoadFromEnv() {
	// Auto-load .env file; silently ignored if missing
	_ = godotenv.Load()

	setString(&c.DelayProfile, "PRICEALERT_DELAY_PROFILE")
	if v := os.Getenv("PRICEALERT_RATE_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RatePerSecond = f
		}
	}
	setInt(&c.RateBurst, "PRICEALERT_RATE_BURST")
	setInt(&c.MaxPerDomain, "PRICEALERT_MAX_PER_DOMAIN")
	if v := os.Getenv("PRICEALERT_RESPECT_ROBOTS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.RespectRobots = b
		}
	}
	setString(&c.Proxies, "PRICEALERT_PROXIES")

	setString(&c.LogLevel, "PRICEALERT_LOG_LEVEL")
	setString(&c.LogFormat, "PRICEALERT_LOG_FORMAT")

	setString(&c.StoreBackend, "PRICEALERT_STORE")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.CacheBackend, "PRICEALERT_CACHE")
	setString(&c.RedisURL, "REDIS_URL")

	setString(&c.AIAPIKey, "AI_API_KEY")
	setString(&c.AIAPIKey, "GROQ_API_KEY")
	setString(&c.AIBaseURL, "AI_BASE_URL")
	setString(&c.AIModel, "AI_MODEL")
	setString(&c.SERPAPIKey, "SERP_API_KEY")

	setDuration(&c.FetchTimeout, "PRICEALERT_FETCH_TIMEOUT")
	setDuration(&c.IngestTimeout, "PRICEALERT_INGEST_TIMEOUT")
	setDuration(&c.EquivBudget, "PRICEALERT_EQUIV_BUDGET")
	if v := os.Getenv("PRICEALERT_MIN_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			c.MinConfidence = f
		}
	}

	setString(&c.HTTPPort, "PORT")
	setString(&c.APIKey, "PRICEALERT_API_KEY")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// setDuration accepts Go durations ("8s") or plain seconds ("8").
func setDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = time.Duration(n) * time.Second
	}
}
