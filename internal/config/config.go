package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	PublicURL   string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Stripe    StripeConfig
	RateLimit RateLimitConfig
	Email     EmailConfig
	Bootstrap BootstrapConfig
	Scheduler SchedulerConfig
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	// RequestsPerSecond throttles outbound API calls.
	RequestsPerSecond float64
	Burst             int
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type EmailConfig struct {
	Provider string
	From     string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	PostmarkServerToken  string
	PostmarkAccountToken string
}

type BootstrapConfig struct {
	SeedCatalog bool
}

// SchedulerConfig drives the background resync of subscriptions whose
// renewal events never arrived.
type SchedulerConfig struct {
	Enabled    bool
	Interval   time.Duration
	BatchSize  int
	ResyncIdle time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	publicURL := strings.TrimRight(getenv("PUBLIC_URL", "http://localhost:3000"), "/")

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "seatly"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       environment,
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		PublicURL:         publicURL,
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "seatly"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
		Stripe: StripeConfig{
			SecretKey:         strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret:     strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			SuccessURL:        getenv("CHECKOUT_SUCCESS_URL", publicURL+"/dashboard?checkout=success"),
			CancelURL:         getenv("CHECKOUT_CANCEL_URL", publicURL+"/plans?checkout=cancelled"),
			RequestsPerSecond: getenvFloat("STRIPE_REQUESTS_PER_SECOND", 20),
			Burst:             getenvInt("STRIPE_REQUEST_BURST", 10),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", true),
			RedisAddr:     strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword: getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", 0),
		},
		Email: EmailConfig{
			Provider:             strings.ToLower(strings.TrimSpace(getenv("EMAIL_PROVIDER", "noop"))),
			From:                 getenv("EMAIL_FROM", "no-reply@seatly.local"),
			SMTPHost:             getenv("SMTP_HOST", ""),
			SMTPPort:             getenvInt("SMTP_PORT", 587),
			SMTPUsername:         getenv("SMTP_USERNAME", ""),
			SMTPPassword:         getenv("SMTP_PASSWORD", ""),
			PostmarkServerToken:  strings.TrimSpace(getenv("POSTMARK_SERVER_TOKEN", "")),
			PostmarkAccountToken: strings.TrimSpace(getenv("POSTMARK_ACCOUNT_TOKEN", "")),
		},
		Bootstrap: BootstrapConfig{
			SeedCatalog: getenvBool("BOOTSTRAP_SEED_CATALOG", environment != "production"),
		},
		Scheduler: SchedulerConfig{
			Enabled:    getenvBool("SCHEDULER_ENABLED", false),
			Interval:   time.Duration(getenvInt("SCHEDULER_INTERVAL_SECONDS", 300)) * time.Second,
			BatchSize:  getenvInt("SCHEDULER_BATCH_SIZE", 50),
			ResyncIdle: time.Duration(getenvInt("SCHEDULER_RESYNC_IDLE_MINUTES", 15)) * time.Minute,
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using default %d", key, value, def)
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using default %v", key, value, def)
		return def
	}
	return parsed
}
