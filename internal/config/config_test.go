package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"REDIS_URL":        "redis://localhost:6379/0",
		"BACKEND_BASE_URL": "https://api.example.test/api/",
		"DATABASE_URL":     "",
	})
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, 10*time.Second, cfg.PaymentPollInterval)
	require.Equal(t, 30, cfg.PaymentPollMaxAttempts)
	require.Equal(t, "50", cfg.PaymentHighValueThreshold.String())
	require.Equal(t, 2500*time.Millisecond, cfg.CheckoutRedirectDelay)
	require.Equal(t, "/dashboard.html", cfg.CheckoutDashboardPath)
	require.False(t, cfg.HistoryEnabled())
	require.True(t, cfg.Security.EnableHeaders)
	require.EqualValues(t, 64<<10, cfg.Security.BodyLimitBytes)
	require.Equal(t, 24*time.Hour, cfg.ReportTTL)
}

func TestLoadRequiresBackend(t *testing.T) {
	_, err := LoadForTests(map[string]string{
		"REDIS_URL":        "redis://localhost:6379/0",
		"BACKEND_BASE_URL": "",
	})
	require.EqualError(t, err, "BACKEND_BASE_URL is required")
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"REDIS_URL":                 "redis://localhost:6379/0",
		"BACKEND_BASE_URL":          "https://api.example.test",
		"PAYMENT_POLL_INTERVAL":     "2s",
		"PAYMENT_POLL_MAX_ATTEMPTS": "5",
		"CORS_ALLOWED_ORIGINS":      "https://a.test, https://b.test",
		"OBS_ENABLE_PROMETHEUS":     "false",
	})
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, cfg.PaymentPollInterval)
	require.Equal(t, 5, cfg.PaymentPollMaxAttempts)
	require.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORSAllowedOrigins)
	require.False(t, cfg.Obs.EnablePrometheus)
}
