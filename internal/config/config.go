// Package config reads service settings from the environment, after loading a
// local .env file when one exists.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Webhook handling modes.
const (
	WebhookInline = "inline"
	WebhookQueue  = "queue"
)

// Config holds every setting the binaries read.
type Config struct {
	Port     string
	RunLocal bool

	AWSRegion        string
	AWSEndpoint      string
	OrdersTable      string
	ProductsTable    string
	UsersTable       string
	IdempotencyTable string
	WebhookQueueURL  string
	WebhookMode      string

	StripeSecretKey     string
	StripeWebhookSecret string
	PaymentCurrency     string

	OrderExpiryWindow time.Duration
	SettleMaxAttempts int
	IdempotencyTTL    time.Duration

	MetricsNamespace string
	LogLevel         string
	LogFormat        string
}

// ErrMissingStripeKey is returned when STRIPE_SECRET_KEY is unset.
var ErrMissingStripeKey = errors.New("STRIPE_SECRET_KEY is required")

// Load reads .env (if present, without overriding the process environment) and
// the environment. It fails when a required setting is absent.
func Load(files ...string) (Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load(files...)

	cfg := Config{
		Port:     getEnvOrDefault("PORT", "4000"),
		RunLocal: getBoolEnv("RUN_LOCAL", false),

		AWSRegion:        getEnvOrDefault("AWS_REGION", "ap-southeast-1"),
		AWSEndpoint:      getEnvOrDefault("AWS_ENDPOINT_OVERRIDE", ""),
		OrdersTable:      getEnvOrDefault("ORDERS_TABLE", "orders"),
		ProductsTable:    getEnvOrDefault("PRODUCTS_TABLE", "products"),
		UsersTable:       getEnvOrDefault("USERS_TABLE", "users"),
		IdempotencyTable: getEnvOrDefault("IDEMPOTENCY_TABLE", "idempotency"),
		WebhookQueueURL:  getEnvOrDefault("WEBHOOK_QUEUE_URL", ""),
		WebhookMode:      strings.ToLower(getEnvOrDefault("WEBHOOK_MODE", WebhookInline)),

		StripeSecretKey:     getEnvOrDefault("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnvOrDefault("STRIPE_WEBHOOK_SECRET", ""),
		PaymentCurrency:     strings.ToLower(getEnvOrDefault("PAYMENT_CURRENCY", "thb")),

		OrderExpiryWindow: getDurationEnv("ORDER_EXPIRY_WINDOW", 30*time.Minute),
		SettleMaxAttempts: getIntEnv("SETTLE_MAX_ATTEMPTS", 5),
		IdempotencyTTL:    getDurationEnv("IDEMPOTENCY_TTL", 48*time.Hour),

		MetricsNamespace: getEnvOrDefault("METRICS_NAMESPACE", "orderflow"),
		LogLevel:         getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        getEnvOrDefault("LOG_FORMAT", "json"),
	}

	if cfg.StripeSecretKey == "" {
		return cfg, ErrMissingStripeKey
	}
	if cfg.WebhookMode != WebhookInline && cfg.WebhookMode != WebhookQueue {
		return cfg, errors.New("WEBHOOK_MODE must be inline or queue")
	}
	if cfg.WebhookMode == WebhookQueue && cfg.WebhookQueueURL == "" {
		return cfg, errors.New("WEBHOOK_QUEUE_URL is required when WEBHOOK_MODE=queue")
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv accepts Go durations ("45m") or a bare number of seconds.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
