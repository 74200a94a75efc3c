package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries all environment-provided settings for the API process.
type Config struct {
	ListenAddr string

	PostgresDSN string

	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	GatewayKeyID  string
	GatewaySecret string
	GatewayURL    string

	SMTPAddr string
	SMTPFrom string
	SMTPUser string
	SMTPPass string

	AssistantAPIKey  string
	AssistantBaseURL string
	AssistantModel   string

	RateLimitPerSecond int
	RateLimitBurst     int
	MaxBodyBytes       int64
}

// Load reads configuration from the environment (and an optional .env file).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:         getEnv("LEXHUB_ADDR", ":8080"),
		PostgresDSN:        getEnv("LEXHUB_PG_DSN", ""),
		JWTSecret:          getEnv("LEXHUB_AUTH_SECRET", ""),
		AccessTTL:          getEnvAsDuration("LEXHUB_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:         getEnvAsDuration("LEXHUB_REFRESH_TTL", 7*24*time.Hour),
		GatewayKeyID:       getEnv("LEXHUB_GATEWAY_KEY_ID", ""),
		GatewaySecret:      getEnv("LEXHUB_GATEWAY_SECRET", ""),
		GatewayURL:         getEnv("LEXHUB_GATEWAY_URL", "https://api.razorpay.com/v1"),
		SMTPAddr:           getEnv("LEXHUB_SMTP_ADDR", ""),
		SMTPFrom:           getEnv("LEXHUB_SMTP_FROM", "no-reply@lexhub.org"),
		SMTPUser:           getEnv("LEXHUB_SMTP_USER", ""),
		SMTPPass:           getEnv("LEXHUB_SMTP_PASS", ""),
		AssistantAPIKey:    getEnv("LEXHUB_ASSISTANT_API_KEY", ""),
		AssistantBaseURL:   getEnv("LEXHUB_ASSISTANT_BASE_URL", ""),
		AssistantModel:     getEnv("LEXHUB_ASSISTANT_MODEL", "gemini-2.0-flash"),
		RateLimitPerSecond: getEnvAsInt("LEXHUB_RATE_PER_SECOND", 20),
		RateLimitBurst:     getEnvAsInt("LEXHUB_RATE_BURST", 40),
		MaxBodyBytes:       int64(getEnvAsInt("LEXHUB_MAX_BODY_BYTES", 1<<20)),
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("LEXHUB_AUTH_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil && value > 0 {
		return value
	}
	return defaultValue
}
