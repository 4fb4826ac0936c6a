package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
log_level = "debug"

[server]
addr = ":8080"
frontend_origin = "https://app.example.com"
cookie_secure = true
shutdown_timeout = "3s"
rate_per_second = 5
rate_burst = 7

[redis]
addr = "redis:6379"
prefix = "otp"

[postgres]
dsn = "postgres://auth@db/auth"
migrate = false

[smtp]
host = "smtp.example.com"
port = 587
from = "no-reply@example.com"
from_name = "Auth"

[tokens]
access_secret = "access-secret-access-secret-0001"
refresh_secret = "refresh-secret-refresh-secret-01"
reset_secret = "reset-secret-reset-secret-000001"
verification_secret = "verify-secret-verify-secret-0001"
access_ttl = "10m"

[auth]
frontend_url = "https://app.example.com"
otp_ttl = "3m"
mark_email_verified = false
max_otp_attempts = 3
cooldown = "30s"
audit = true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "otpauthd.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func noEnv(string) string { return "" }

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, sampleConfig), noEnv)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.True(t, cfg.Server.CookieSecure)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Duration)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.False(t, cfg.Postgres.Migrate)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "Auth", cfg.SMTP.FromName)

	level, err := cfg.logLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	engineCfg, err := cfg.engineConfig()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, engineCfg.Tokens.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, engineCfg.Tokens.RefreshTTL)
	assert.Equal(t, 3*time.Minute, engineCfg.Login.OTPTTL)
	assert.Equal(t, 3, engineCfg.Login.MaxOTPAttempts)
	assert.False(t, engineCfg.Registration.MarkEmailVerified)
	assert.Equal(t, 30*time.Second, engineCfg.Login.ResendCooldown)
	assert.Equal(t, "otp", engineCfg.Session.RedisPrefix)
	assert.True(t, engineCfg.Audit.Enabled)

	srvCfg := cfg.serverConfig()
	assert.Equal(t, "https://app.example.com", srvCfg.FrontendOrigin)
	assert.Equal(t, 5.0, srvCfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 7, srvCfg.RateLimit.Burst)
}

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	cfg, err := loadConfig("", noEnv)
	require.NoError(t, err)
	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.True(t, cfg.Postgres.Migrate)

	_, err = cfg.engineConfig()
	require.Error(t, err, "secrets are required")
}

func TestEnvOverridesFile(t *testing.T) {
	env := map[string]string{
		"OTPAUTH_ADDR":          ":9000",
		"OTPAUTH_REDIS_ADDR":    "cache:6380",
		"OTPAUTH_ACCESS_SECRET": "from-env-from-env-from-env-000001",
		"OTPAUTH_SMTP_PORT":     "2525",
		"OTPAUTH_COOKIE_SECURE": "false",
	}
	cfg, err := loadConfig(writeConfig(t, sampleConfig), func(k string) string { return env[k] })
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr)
	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.False(t, cfg.Server.CookieSecure)

	engineCfg, err := cfg.engineConfig()
	require.NoError(t, err)
	assert.Equal(t, []byte("from-env-from-env-from-env-000001"), engineCfg.Tokens.AccessSecret)
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	_, err := loadConfig(writeConfig(t, "[server]\nshutdown_timeout = \"soon\"\n"), noEnv)
	require.Error(t, err)

	_, err = loadConfig(writeConfig(t, "[server]\nport = 1\n"), noEnv)
	require.ErrorContains(t, err, "unknown keys")

	_, err = loadConfig("", func(k string) string {
		if k == "OTPAUTH_SMTP_PORT" {
			return "smtp"
		}
		return ""
	})
	require.Error(t, err)

	cfg := defaultDaemonConfig()
	cfg.LogLevel = "loud"
	_, err = cfg.logLevel()
	require.Error(t, err)
}
