package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port string
	Mode string

	// Database configuration
	DatabaseURL string

	// Redis configuration
	RedisURL string

	// Store configuration
	Platform     string // ios, android, ...
	StoreBackend string // "fake" or "billing"
	CatalogPath  string

	// Billing backend configuration
	BillingAPIURL string
	BillingAPIKey string

	// Receipt validation configuration
	ReceiptValidationURL string

	// API authentication
	APIKey string

	// Webhook configuration (notify the app backend on completed transactions)
	WebhookCallbackURL string
	WebhookSecret      string

	// Brevo email configuration (purchase receipt emails)
	BrevoAPIKey    string
	BrevoFromEmail string
	BrevoFromName  string
	ReceiptToEmail string

	// Notification replay protection
	ReplayTTLHours int
}

var AppConfig *Config

func InitConfig() error {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Ignore error if .env file doesn't exist
	}

	AppConfig = &Config{
		Port:                 getEnv("PORT", "8080"),
		Mode:                 getEnv("GIN_MODE", "debug"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		RedisURL:             getEnv("REDIS_URL", "redis://localhost:6379/0"),
		Platform:             getEnv("PLATFORM", "ios"),
		StoreBackend:         getEnv("STORE_BACKEND", "fake"),
		CatalogPath:          getEnv("CATALOG_PATH", "catalog.json"),
		BillingAPIURL:        getEnv("BILLING_API_URL", ""),
		BillingAPIKey:        getEnv("BILLING_API_KEY", ""),
		ReceiptValidationURL: getEnv("RECEIPT_VALIDATION_URL", ""),
		APIKey:               getEnv("API_KEY", ""),
		WebhookCallbackURL:   getEnv("WEBHOOK_CALLBACK_URL", ""),
		WebhookSecret:        getEnv("WEBHOOK_SECRET", ""),
		BrevoAPIKey:          getEnv("BREVO_API_KEY", ""),
		BrevoFromEmail:       getEnv("BREVO_FROM_EMAIL", ""),
		BrevoFromName:        getEnv("BREVO_FROM_NAME", "Purchase Service"),
		ReceiptToEmail:       getEnv("RECEIPT_TO_EMAIL", ""),
		ReplayTTLHours:       getEnvInt("REPLAY_TTL_HOURS", 24),
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
