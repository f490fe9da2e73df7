package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Session store
	SessionBackend         string
	SessionIdleTimeout     time.Duration
	SessionCASMaxAttempts  int
	SessionsTable          string
	SessionJanitorInterval time.Duration

	// Corridor catalog
	CorridorCatalogPath string
	CorridorOfferLimit  int

	// Storage backends
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Execution hand-off
	TransferQueueURL      string
	UseMemoryQueue        bool
	WorkerCount           int
	TransferWebhookSecret string

	// Gateways
	TwilioWebhookSecret string
	PublicBaseURL       string
	CORSAllowedOrigins  []string
	RateLimitRPS        float64
	RateLimitBurst      int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		SessionBackend:         strings.ToLower(strings.TrimSpace(getEnv("SESSION_BACKEND", "memory"))),
		SessionIdleTimeout:     getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SessionCASMaxAttempts:  getEnvAsInt("SESSION_CAS_MAX_ATTEMPTS", 3),
		SessionsTable:          getEnv("SESSIONS_TABLE", "remit_sessions"),
		SessionJanitorInterval: getEnvAsDuration("SESSION_JANITOR_INTERVAL", 5*time.Minute),

		CorridorCatalogPath: getEnv("CORRIDOR_CATALOG_PATH", ""),
		CorridorOfferLimit:  getEnvAsInt("CORRIDOR_OFFER_LIMIT", 6),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		TransferQueueURL:      getEnv("TRANSFER_QUEUE_URL", ""),
		UseMemoryQueue:        getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:           getEnvAsInt("WORKER_COUNT", 2),
		TransferWebhookSecret: getEnv("TRANSFER_WEBHOOK_SECRET", ""),

		TwilioWebhookSecret: getEnv("TWILIO_WEBHOOK_SECRET", ""),
		PublicBaseURL:       getEnv("PUBLIC_BASE_URL", ""),
		CORSAllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:        getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:      getEnvAsInt("RATE_LIMIT_BURST", 20),
	}
}

// MemoryQueueEnabled reports whether the hand-off queue should stay in process.
func (c *Config) MemoryQueueEnabled() bool {
	return c.UseMemoryQueue || strings.TrimSpace(c.TransferQueueURL) == ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
