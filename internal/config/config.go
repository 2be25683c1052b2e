package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	DatabaseURL        string
	CORSAllowedOrigins []string

	Backend BackendConfig

	StatePrefix      string
	CatalogCacheTTL  time.Duration
	ClientStateTTL   time.Duration
	ClientCookieName string
	CookieSecure     bool
	CookieSameSite   http.SameSite

	PaymentPollInterval         time.Duration
	PaymentPollMaxAttempts      int
	PaymentHighValueThreshold   decimal.Decimal
	SupplierLowBalanceThreshold decimal.Decimal

	CheckoutRedirectDelay    time.Duration
	CheckoutDashboardPath    string
	CheckoutGuestSuccessPath string

	IdempotencyTTL          time.Duration
	LockTTL                 time.Duration
	RateLimitPurchaseLimit  int
	RateLimitPurchaseWindow time.Duration
	RateLimitAuth           string
	ReportQueue             string
	ReportTTL               time.Duration

	Security SecurityConfig
	Obs      ObsConfig
}

// BackendConfig configures the storefront backend client.
type BackendConfig struct {
	BaseURL             string
	Timeout             time.Duration
	RetryMaxAttempts    int
	RetryBase           time.Duration
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration
}

// SecurityConfig controls response hardening and request size limits.
type SecurityConfig struct {
	EnableHeaders         bool
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	BodyLimitBytes        int64
}

// ObsConfig groups logging, metrics and tracing switches.
type ObsConfig struct {
	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	MetricsBuckets   string
	EnablePrometheus bool
	EnableTracing    bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
	EnablePprof      bool
	PprofUser        string
	PprofPass        string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		Backend: BackendConfig{
			BaseURL:             strings.TrimSpace(k.String("BACKEND_BASE_URL")),
			Timeout:             parseDuration(k.String("BACKEND_TIMEOUT"), "10s"),
			RetryMaxAttempts:    parseInt(k.String("BACKEND_RETRY_MAX_ATTEMPTS"), 3),
			RetryBase:           parseDuration(k.String("BACKEND_RETRY_BASE"), "200ms"),
			BreakerMinRequests:  parseInt(k.String("BACKEND_BREAKER_MIN_REQUESTS"), 10),
			BreakerFailureRatio: parseFloat(k.String("BACKEND_BREAKER_FAILURE_RATIO"), 0.5),
			BreakerOpenFor:      parseDuration(k.String("BACKEND_BREAKER_OPEN_FOR"), "30s"),
		},
		StatePrefix:                 valueOrDefault(k.String("STATE_PREFIX"), "bundlehub"),
		CatalogCacheTTL:             parseDuration(k.String("CATALOG_CACHE_TTL"), "60s"),
		ClientStateTTL:              parseDuration(k.String("CLIENT_STATE_TTL"), "720h"),
		ClientCookieName:            valueOrDefault(k.String("CLIENT_COOKIE_NAME"), "bh_client"),
		CookieSecure:                parseBool(k.String("COOKIE_SECURE")),
		CookieSameSite:              parseSameSite(k.String("COOKIE_SAMESITE")),
		PaymentPollInterval:         parseDuration(k.String("PAYMENT_POLL_INTERVAL"), "10s"),
		PaymentPollMaxAttempts:      parseInt(k.String("PAYMENT_POLL_MAX_ATTEMPTS"), 30),
		PaymentHighValueThreshold:   parseDecimal(k.String("PAYMENT_HIGH_VALUE_THRESHOLD"), "50"),
		SupplierLowBalanceThreshold: parseDecimal(k.String("SUPPLIER_LOW_BALANCE_THRESHOLD"), "50"),
		CheckoutRedirectDelay:       parseDuration(k.String("CHECKOUT_REDIRECT_DELAY"), "2500ms"),
		CheckoutDashboardPath:       valueOrDefault(k.String("CHECKOUT_DASHBOARD_PATH"), "/dashboard.html"),
		CheckoutGuestSuccessPath:    valueOrDefault(k.String("CHECKOUT_GUEST_SUCCESS_PATH"), "/index.html?purchase=success"),
		IdempotencyTTL:              parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),
		LockTTL:                     parseDuration(k.String("LOCK_TTL"), "30s"),
		RateLimitPurchaseLimit:      parseInt(k.String("RATE_LIMIT_PURCHASE_LIMIT"), 10),
		RateLimitPurchaseWindow:     parseDuration(k.String("RATE_LIMIT_PURCHASE_WINDOW"), "1m"),
		RateLimitAuth:               valueOrDefault(k.String("RATE_LIMIT_AUTH"), "20-M"),
		ReportQueue:                 valueOrDefault(k.String("REPORT_QUEUE"), "reports"),
		ReportTTL:                   parseDuration(k.String("REPORT_TTL"), "24h"),
		Security: SecurityConfig{
			EnableHeaders:         parseBoolDefault(k.String("SECURITY_HEADERS"), true),
			EnableHSTS:            parseBoolDefault(k.String("SECURITY_HSTS"), false),
			HSTSMaxAge:            parseInt(k.String("SECURITY_HSTS_MAX_AGE"), 31536000),
			HSTSIncludeSubdomains: parseBool(k.String("SECURITY_HSTS_INCLUDE_SUBDOMAINS")),
			BodyLimitBytes:        int64(parseInt(k.String("SECURITY_BODY_LIMIT_BYTES"), 64<<10)),
		},
		Obs: ObsConfig{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "bundlehub"),
			MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
			EnablePrometheus: parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
			EnableTracing:    parseBoolDefault(k.String("OBS_ENABLE_TRACING"), false),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     k.String("OBS_OTLP_ENDPOINT"),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
			EnablePprof:      parseBoolDefault(k.String("OBS_ENABLE_PPROF"), false),
			PprofUser:        k.String("SECURE_PPROF_BASIC_AUTH_USER"),
			PprofPass:        k.String("SECURE_PPROF_BASIC_AUTH_PASS"),
		},
	}

	if cfg.CookieSameSite == http.SameSiteDefaultMode {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.Backend.BaseURL == "" {
		return nil, errors.New("BACKEND_BASE_URL is required")
	}
	if cfg.PaymentPollMaxAttempts <= 0 {
		return nil, errors.New("PAYMENT_POLL_MAX_ATTEMPTS must be positive")
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

// HistoryEnabled reports whether purchase history is kept in Postgres.
func (c *Config) HistoryEnabled() bool { return c.DatabaseURL != "" }

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
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
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
	if err != nil || d.IsNegative() {
		return decimal.RequireFromString(fallback)
	}
	return d
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteDefaultMode
	}
}

// MustLoad behaves like Load but panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests overrides environment variables for the duration of one Load call.
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
