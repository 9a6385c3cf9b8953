package config

import (
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

	AuthJWTSecret string

	Gateway     GatewayConfig
	Checkout    CheckoutConfig
	Attribution AttributionConfig
	Commission  CommissionConfig
	RateLimit   RateLimitConfig
	Email       EmailConfig
	Scheduler   SchedulerConfig
}

type GatewayConfig struct {
	Provider        string
	SecretKey       string
	WebhookSecret   string
	Timeout         time.Duration
	DefaultCurrency string
}

type CheckoutConfig struct {
	SuccessURL  string
	CancelURL   string
	TokenSecret string
	TokenTTL    time.Duration
}

type AttributionConfig struct {
	Cooldown time.Duration
}

type CommissionConfig struct {
	Strict bool
}

type RateLimitConfig struct {
	Enabled        bool
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	ContactRate    float64
	ContactBurst   int
	WebhookLockTTL time.Duration
}

type EmailConfig struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type SchedulerConfig struct {
	Enabled         bool
	RunInterval     time.Duration
	BatchSize       int
	OrderPaymentTTL time.Duration
	EnabledJobs     []string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "affiliora"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "affiliora"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),

		Gateway: GatewayConfig{
			Provider:        strings.ToLower(strings.TrimSpace(getenv("PAYMENT_PROVIDER", "stripe"))),
			SecretKey:       strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret:   strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			Timeout:         time.Duration(getenvInt("GATEWAY_TIMEOUT_SECONDS", 10)) * time.Second,
			DefaultCurrency: strings.ToLower(getenv("DEFAULT_CURRENCY", "usd")),
		},
		Checkout: CheckoutConfig{
			SuccessURL:  getenv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/billing/success"),
			CancelURL:   getenv("CHECKOUT_CANCEL_URL", "http://localhost:3000/billing/cancel"),
			TokenSecret: strings.TrimSpace(getenv("CHECKOUT_TOKEN_SECRET", "")),
			TokenTTL:    time.Duration(getenvInt("CHECKOUT_TOKEN_TTL_MINUTES", 60)) * time.Minute,
		},
		Attribution: AttributionConfig{
			Cooldown: time.Duration(getenvInt("ATTRIBUTION_COOLDOWN_MINUTES", 60)) * time.Minute,
		},
		Commission: CommissionConfig{
			Strict: getenvBool("COMMISSION_STRICT", false),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:      strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "localhost:6379")),
			RedisPassword:  getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:        getenvInt("RATE_LIMIT_REDIS_DB", 0),
			ContactRate:    getenvFloat("CONTACT_RATE", 2),
			ContactBurst:   getenvInt("CONTACT_BURST", 20),
			WebhookLockTTL: time.Duration(getenvInt("WEBHOOK_LOCK_TTL_SECONDS", 15)) * time.Second,
		},
		Email: EmailConfig{
			Enabled:      getenvBool("EMAIL_ENABLED", false),
			SMTPHost:     getenv("SMTP_HOST", "localhost"),
			SMTPPort:     getenvInt("SMTP_PORT", 1025),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "no-reply@affiliora.local"),
		},
		Scheduler: SchedulerConfig{
			Enabled:         getenvBool("SCHEDULER_ENABLED", true),
			RunInterval:     time.Duration(getenvInt("SCHEDULER_INTERVAL_SECONDS", 60)) * time.Second,
			BatchSize:       getenvInt("SCHEDULER_BATCH_SIZE", 50),
			OrderPaymentTTL: time.Duration(getenvInt("ORDER_PAYMENT_TTL_MINUTES", 24*60)) * time.Minute,
			EnabledJobs:     getenvList("SCHEDULER_JOBS"),
		},
	}

	// The checkout token falls back to the auth secret so a single secret is
	// enough for local setups.
	if cfg.Checkout.TokenSecret == "" {
		cfg.Checkout.TokenSecret = cfg.AuthJWTSecret
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
		return def
	}
	return parsed
}

func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
