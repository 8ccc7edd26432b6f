package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"github.com/rawises/storefront-api/internal/payment"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	DBMaxConns         int32
	RedisURL           string
	JWTSecret          string
	AccessTokenTTL     time.Duration
	CORSAllowedOrigins []string
	PublicBaseURL      string
	ShutdownTimeout    time.Duration

	SipayBaseURL     string
	SipayMerchantID  string
	SipayMerchantKey string
	SipayAppKey      string
	SipayAppSecret   string

	VATRate              decimal.Decimal
	CurrencyCode         string
	OriginalPriceMarkup  decimal.Decimal
	CatalogDefaultLimit  int
	CatalogMaxLimit      int
	CartTTL              time.Duration
	PaymentIntentTTL     time.Duration
	WebhookReplayTTL     time.Duration
	IdempotencyTTL       time.Duration
	CatalogCacheTTL      time.Duration
	DiscountCacheTTL     time.Duration
	PaymentRateLimit     string
	LoginRateLimit       string
	BodyLimitBytes       int64
	SecurityHeaders      bool
	HSTSEnabled          bool
	MailRelayURL         string
	MailRelayToken       string
	MailFrom             string
	MailEnabled          bool
	MailSentTTL          time.Duration
	WorkerConcurrency    int
	WorkerQueue          string
	WorkerMetricsAddr    string
	TaskMaxRetry         int
	PaymentSweepSchedule string
	PaymentSweepBatch    int
	LogFormat            string
	LogLevel             string
	MetricsEnabled       bool
	MetricsNamespace     string
	MetricsBucketsMS     string
	TracingEnabled       bool
	TracingExporter      string
	OTLPEndpoint         string
	TracingSamplingRatio float64
	HealthDBTimeout      time.Duration
	HealthRedisTimeout   time.Duration
	PprofEnabled         bool
	PprofUser            string
	PprofPass            string
}

// Load reads configuration from environment variables and optional .env files.
// Only the database, Redis and token secret are required at boot; gateway
// credentials are checked when a payment is created.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		DBMaxConns:         int32(parseInt(k.String("DB_MAX_CONNS"), 10)),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		JWTSecret:          k.String("JWT_SECRET"),
		AccessTokenTTL:     parseDuration(k.String("ACCESS_TOKEN_TTL"), "24h"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		PublicBaseURL:      strings.TrimRight(strings.TrimSpace(k.String("PUBLIC_BASE_URL")), "/"),
		ShutdownTimeout:    parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),

		SipayBaseURL:     strings.TrimRight(strings.TrimSpace(k.String("SIPAY_BASE_URL")), "/"),
		SipayMerchantID:  strings.TrimSpace(k.String("SIPAY_MERCHANT_ID")),
		SipayMerchantKey: strings.TrimSpace(k.String("SIPAY_MERCHANT_KEY")),
		SipayAppKey:      strings.TrimSpace(k.String("SIPAY_APP_KEY")),
		SipayAppSecret:   strings.TrimSpace(k.String("SIPAY_APP_SECRET")),

		VATRate:              parseDecimal(k.String("PRICING_VAT_RATE"), "0.20"),
		CurrencyCode:         strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "TRY")),
		OriginalPriceMarkup:  parseDecimal(k.String("CATALOG_ORIGINAL_PRICE_MARKUP"), "1.25"),
		CatalogDefaultLimit:  parseInt(k.String("CATALOG_DEFAULT_LIMIT"), 20),
		CatalogMaxLimit:      parseInt(k.String("CATALOG_MAX_LIMIT"), 100),
		CartTTL:              parseDuration(k.String("CART_TTL"), "168h"),
		PaymentIntentTTL:     parseDuration(k.String("PAYMENT_INTENT_TTL"), "30m"),
		WebhookReplayTTL:     parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "48h"),
		IdempotencyTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		CatalogCacheTTL:      parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		DiscountCacheTTL:     parseDuration(k.String("DISCOUNT_CACHE_TTL"), "1m"),
		PaymentRateLimit:     valueOrDefault(k.String("RATE_LIMIT_PAYMENT"), "10-M"),
		LoginRateLimit:       valueOrDefault(k.String("RATE_LIMIT_LOGIN"), "5-M"),
		BodyLimitBytes:       int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),
		SecurityHeaders:      parseBool(k.String("SECURITY_HEADERS"), true),
		HSTSEnabled:          parseBool(k.String("SECURITY_HSTS"), false),
		MailRelayURL:         strings.TrimSpace(k.String("MAIL_RELAY_URL")),
		MailRelayToken:       k.String("MAIL_RELAY_TOKEN"),
		MailFrom:             valueOrDefault(k.String("MAIL_FROM"), "Rawises <siparis@rawises.com>"),
		MailEnabled:          parseBool(k.String("MAIL_ENABLED"), true),
		MailSentTTL:          parseDuration(k.String("MAIL_SENT_TTL"), "168h"),
		WorkerConcurrency:    parseInt(k.String("WORKER_CONCURRENCY"), 10),
		WorkerQueue:          valueOrDefault(k.String("WORKER_QUEUE"), "default"),
		WorkerMetricsAddr:    valueOrDefault(k.String("WORKER_METRICS_ADDR"), ":9091"),
		TaskMaxRetry:         parseInt(k.String("TASK_MAX_RETRY"), 8),
		PaymentSweepSchedule: valueOrDefault(k.String("PAYMENT_SWEEP_SCHEDULE"), "@every 5m"),
		PaymentSweepBatch:    parseInt(k.String("PAYMENT_SWEEP_BATCH"), 100),
		LogFormat:            valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:             valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsEnabled:       parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
		MetricsNamespace:     valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "rawises"),
		MetricsBucketsMS:     k.String("OBS_METRICS_BUCKETS_MS"),
		TracingEnabled:       parseBool(k.String("OBS_ENABLE_TRACING"), false),
		TracingExporter:      valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
		OTLPEndpoint:         strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSamplingRatio: parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
		HealthDBTimeout:      parseDuration(k.String("HEALTH_READY_DB_TIMEOUT"), "500ms"),
		HealthRedisTimeout:   parseDuration(k.String("HEALTH_READY_REDIS_TIMEOUT"), "300ms"),
		PprofEnabled:         parseBool(k.String("OBS_ENABLE_PPROF"), false),
		PprofUser:            strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
		PprofPass:            strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.VATRate.IsNegative() {
		return nil, errors.New("PRICING_VAT_RATE must not be negative")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// Gateway returns the Sipay credential set. Missing values are reported by
// the payment service when a payment is created.
func (c *Config) Gateway() payment.Gateway {
	return payment.Gateway{
		BaseURL:       c.SipayBaseURL,
		MerchantID:    c.SipayMerchantID,
		MerchantKey:   c.SipayMerchantKey,
		AppKey:        c.SipayAppKey,
		AppSecret:     c.SipayAppSecret,
		PublicBaseURL: c.PublicBaseURL,
	}
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.AppEnv)
	return env == "production" || env == "prod"
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseDecimal(value, fallback string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.RequireFromString(fallback)
	}
	return d
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
