package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Example(t *testing.T) {
	cfg, err := Load("config.example.yaml")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.CacheTTL)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.True(t, cfg.Database.EnableOverlapConstraint)
	assert.Equal(t, 15*time.Minute, cfg.Occasional.GracePeriod)
	assert.Equal(t, "approve", cfg.Payment.Provider)
	assert.Equal(t, 2, cfg.Notification.WorkerPoolSize)
	assert.Equal(t, "@every 1m", cfg.Settlement.Schedule)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "database:\n  driver: sqlite\n  dsn: parking.db\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10.0, cfg.Server.RateLimitPerSec)
	assert.Equal(t, 5, cfg.Server.RateLimitBurst)
	assert.Equal(t, 30*time.Second, cfg.Server.CacheTTL)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 15, cfg.Occasional.GracePeriodMinutes)
	assert.Equal(t, 15*time.Minute, cfg.Occasional.GracePeriod)
	assert.Equal(t, "approve", cfg.Payment.Provider)
	assert.Equal(t, "eur", cfg.Payment.Currency)
	assert.Equal(t, "Parking", cfg.Notification.FromName)
	assert.Equal(t, 1, cfg.Notification.WorkerPoolSize)
	assert.Equal(t, 100, cfg.Settlement.BatchSize)
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  cache_ttl_seconds: 5
occasional:
  grace_period_minutes: 20
payment:
  provider: stripe
  stripe_secret_key: from-file
`)
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_env")
	t.Setenv("DATABASE_DSN", "host=db")
	t.Setenv("SENDGRID_API_KEY", "SG.env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.CacheTTL)
	assert.Equal(t, 20*time.Minute, cfg.Occasional.GracePeriod)
	assert.Equal(t, "sk_test_env", cfg.Payment.StripeSecretKey)
	assert.Equal(t, "host=db", cfg.Database.DSN)
	assert.Equal(t, "SG.env", cfg.Notification.SendGridAPIKey)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not, a, map]\n"))
	assert.Error(t, err)
}
