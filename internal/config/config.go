package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	// WhatsApp bridge
	BridgeURL     string
	BridgeTimeout time.Duration

	// Facebook Messenger
	FacebookPageAccessToken string
	FacebookAppSecret       string
	FacebookVerifyToken     string

	// Telegram
	TelegramBotToken      string
	TelegramWebhookSecret string

	// Department routing: WhatsApp numbers that own each funnel
	SupportNumber string
	SalesNumber   string

	// Phone normalization: country code assumed for bare national numbers
	DefaultCountryCode string

	OverdueThreshold time.Duration
	SendTimeout      time.Duration

	WebhookRateLimit float64
	WebhookRateBurst int

	CORSAllowedOrigins []string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		BridgeURL:     getEnv("BRIDGE_URL", "http://localhost:3001"),
		BridgeTimeout: getEnvAsDuration("BRIDGE_TIMEOUT", 15*time.Second),

		FacebookPageAccessToken: getEnv("FACEBOOK_PAGE_ACCESS_TOKEN", ""),
		FacebookAppSecret:       getEnv("FACEBOOK_APP_SECRET", ""),
		FacebookVerifyToken:     getEnv("FACEBOOK_VERIFY_TOKEN", ""),

		TelegramBotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramWebhookSecret: getEnv("TELEGRAM_WEBHOOK_SECRET", ""),

		SupportNumber: getEnv("SUPPORT_NUMBER", "573022620031"),
		SalesNumber:   getEnv("SALES_NUMBER", "573243230276"),

		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "57"),

		OverdueThreshold: getEnvAsDuration("OVERDUE_THRESHOLD", 5*time.Minute),
		SendTimeout:      getEnvAsDuration("SEND_TIMEOUT", 30*time.Second),

		WebhookRateLimit: getEnvAsFloat("WEBHOOK_RATE_LIMIT", 0),
		WebhookRateBurst: getEnvAsInt("WEBHOOK_RATE_BURST", 20),

		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", nil),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
	}
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

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
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

// getEnvAsSlice parses a comma-separated environment variable
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
