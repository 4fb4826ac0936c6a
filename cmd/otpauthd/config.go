package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/MrEthical07/otpAuth"
	"github.com/MrEthical07/otpAuth/mail"
	"github.com/MrEthical07/otpAuth/middleware"
	"github.com/MrEthical07/otpAuth/server"
)

// duration decodes TOML strings such as "15m".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type serverSection struct {
	Addr            string   `toml:"addr"`
	FrontendOrigin  string   `toml:"frontend_origin"`
	CookieSecure    bool     `toml:"cookie_secure"`
	CookieDomain    string   `toml:"cookie_domain"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
	RatePerSecond   float64  `toml:"rate_per_second"`
	RateBurst       int      `toml:"rate_burst"`
}

type redisSection struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

type postgresSection struct {
	DSN     string `toml:"dsn"`
	Migrate bool   `toml:"migrate"`
}

type tokensSection struct {
	AccessSecret       string   `toml:"access_secret"`
	RefreshSecret      string   `toml:"refresh_secret"`
	ResetSecret        string   `toml:"reset_secret"`
	VerificationSecret string   `toml:"verification_secret"`
	AccessTTL          duration `toml:"access_ttl"`
	RefreshTTL         duration `toml:"refresh_ttl"`
	ResetTTL           duration `toml:"reset_ttl"`
	VerificationTTL    duration `toml:"verification_ttl"`
	Issuer             string   `toml:"issuer"`
}

type authSection struct {
	FrontendURL            string   `toml:"frontend_url"`
	PendingTTL             duration `toml:"pending_registration_ttl"`
	MarkEmailVerified      *bool    `toml:"mark_email_verified"`
	OTPTTL                 duration `toml:"otp_ttl"`
	VerificationSessionTTL duration `toml:"verification_session_ttl"`
	MaxOTPAttempts         *int     `toml:"max_otp_attempts"`
	CSRFTTL                duration `toml:"csrf_ttl"`
	ProjectionTTL          duration `toml:"projection_ttl"`
	Cooldown               duration `toml:"cooldown"`
	Audit                  bool     `toml:"audit"`
	LatencyHistograms      bool     `toml:"latency_histograms"`
}

// daemonConfig is the on-disk shape of the daemon configuration.
type daemonConfig struct {
	LogLevel   string          `toml:"log_level"`
	Production bool            `toml:"production"`
	Server     serverSection   `toml:"server"`
	Redis      redisSection    `toml:"redis"`
	Postgres   postgresSection `toml:"postgres"`
	SMTP       mail.SMTPConfig `toml:"smtp"`
	Tokens     tokensSection   `toml:"tokens"`
	Auth       authSection     `toml:"auth"`
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{
		LogLevel: "info",
		Server: serverSection{
			Addr:           ":5000",
			FrontendOrigin: "http://localhost:5173",
		},
		Redis:    redisSection{Addr: "localhost:6379"},
		Postgres: postgresSection{Migrate: true},
		Auth:     authSection{FrontendURL: "http://localhost:5173"},
	}
}

// loadConfig reads path (optional) over the defaults and then applies
// OTPAUTH_* variables from getenv.
func loadConfig(path string, getenv func(string) string) (daemonConfig, error) {
	cfg := defaultDaemonConfig()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return cfg, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides file values. Supported variables:
//   - OTPAUTH_ADDR, OTPAUTH_FRONTEND_ORIGIN, OTPAUTH_FRONTEND_URL
//   - OTPAUTH_REDIS_ADDR, OTPAUTH_REDIS_PASSWORD
//   - OTPAUTH_POSTGRES_DSN
//   - OTPAUTH_SMTP_HOST, OTPAUTH_SMTP_PORT, OTPAUTH_SMTP_USERNAME, OTPAUTH_SMTP_PASSWORD, OTPAUTH_SMTP_FROM
//   - OTPAUTH_ACCESS_SECRET, OTPAUTH_REFRESH_SECRET, OTPAUTH_RESET_SECRET, OTPAUTH_VERIFICATION_SECRET
//   - OTPAUTH_LOG_LEVEL, OTPAUTH_PRODUCTION, OTPAUTH_COOKIE_SECURE
func (c *daemonConfig) applyEnv(getenv func(string) string) error {
	str := map[string]*string{
		"OTPAUTH_ADDR":                &c.Server.Addr,
		"OTPAUTH_FRONTEND_ORIGIN":     &c.Server.FrontendOrigin,
		"OTPAUTH_FRONTEND_URL":        &c.Auth.FrontendURL,
		"OTPAUTH_REDIS_ADDR":          &c.Redis.Addr,
		"OTPAUTH_REDIS_PASSWORD":      &c.Redis.Password,
		"OTPAUTH_POSTGRES_DSN":        &c.Postgres.DSN,
		"OTPAUTH_SMTP_HOST":           &c.SMTP.Host,
		"OTPAUTH_SMTP_USERNAME":       &c.SMTP.Username,
		"OTPAUTH_SMTP_PASSWORD":       &c.SMTP.Password,
		"OTPAUTH_SMTP_FROM":           &c.SMTP.From,
		"OTPAUTH_ACCESS_SECRET":       &c.Tokens.AccessSecret,
		"OTPAUTH_REFRESH_SECRET":      &c.Tokens.RefreshSecret,
		"OTPAUTH_RESET_SECRET":        &c.Tokens.ResetSecret,
		"OTPAUTH_VERIFICATION_SECRET": &c.Tokens.VerificationSecret,
		"OTPAUTH_LOG_LEVEL":           &c.LogLevel,
	}
	for key, dst := range str {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	if v := getenv("OTPAUTH_SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OTPAUTH_SMTP_PORT: %w", err)
		}
		c.SMTP.Port = port
	}
	for key, dst := range map[string]*bool{
		"OTPAUTH_PRODUCTION":    &c.Production,
		"OTPAUTH_COOKIE_SECURE": &c.Server.CookieSecure,
	} {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}
	return nil
}

func setDuration(dst *time.Duration, d duration) {
	if d.Duration > 0 {
		*dst = d.Duration
	}
}

// engineConfig layers the file values over otpAuth.DefaultConfig and
// validates the result.
func (c daemonConfig) engineConfig() (otpAuth.Config, error) {
	cfg := otpAuth.DefaultConfig()
	cfg.ProductionMode = c.Production
	cfg.Session.RedisPrefix = c.Redis.Prefix

	cfg.Tokens.AccessSecret = []byte(c.Tokens.AccessSecret)
	cfg.Tokens.RefreshSecret = []byte(c.Tokens.RefreshSecret)
	cfg.Tokens.ResetSecret = []byte(c.Tokens.ResetSecret)
	cfg.Tokens.VerificationSecret = []byte(c.Tokens.VerificationSecret)
	setDuration(&cfg.Tokens.AccessTTL, c.Tokens.AccessTTL)
	setDuration(&cfg.Tokens.RefreshTTL, c.Tokens.RefreshTTL)
	setDuration(&cfg.Tokens.ResetTTL, c.Tokens.ResetTTL)
	setDuration(&cfg.Tokens.VerificationTTL, c.Tokens.VerificationTTL)
	if c.Tokens.Issuer != "" {
		cfg.Tokens.Issuer = c.Tokens.Issuer
	}
	if cfg.Tokens.RefreshTTL > cfg.Session.TTL {
		cfg.Session.TTL = cfg.Tokens.RefreshTTL
	}

	cfg.Links.FrontendURL = c.Auth.FrontendURL
	setDuration(&cfg.Registration.PendingTTL, c.Auth.PendingTTL)
	if c.Auth.MarkEmailVerified != nil {
		cfg.Registration.MarkEmailVerified = *c.Auth.MarkEmailVerified
	}
	setDuration(&cfg.Login.OTPTTL, c.Auth.OTPTTL)
	setDuration(&cfg.Login.VerificationSessionTTL, c.Auth.VerificationSessionTTL)
	if c.Auth.MaxOTPAttempts != nil {
		cfg.Login.MaxOTPAttempts = *c.Auth.MaxOTPAttempts
	}
	setDuration(&cfg.CSRF.TTL, c.Auth.CSRFTTL)
	setDuration(&cfg.Session.ProjectionTTL, c.Auth.ProjectionTTL)
	if c.Auth.Cooldown.Duration > 0 {
		cfg.Registration.Cooldown = c.Auth.Cooldown.Duration
		cfg.Login.Cooldown = c.Auth.Cooldown.Duration
		cfg.Login.ResendCooldown = c.Auth.Cooldown.Duration
		cfg.PasswordReset.Cooldown = c.Auth.Cooldown.Duration
	}
	cfg.Audit.Enabled = c.Auth.Audit
	cfg.Metrics.EnableLatencyHistograms = c.Auth.LatencyHistograms

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c daemonConfig) serverConfig() server.Config {
	rl := middleware.DefaultRateLimitConfig()
	if c.Server.RatePerSecond > 0 {
		rl.RequestsPerSecond = c.Server.RatePerSecond
	}
	if c.Server.RateBurst > 0 {
		rl.Burst = c.Server.RateBurst
	}
	return server.Config{
		Addr:            c.Server.Addr,
		FrontendOrigin:  c.Server.FrontendOrigin,
		CookieSecure:    c.Server.CookieSecure,
		CookieDomain:    c.Server.CookieDomain,
		RateLimit:       rl,
		ShutdownTimeout: c.Server.ShutdownTimeout.Duration,
	}
}

func (c daemonConfig) logLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, errors.New("log_level must be debug, info, warn or error")
	}
	return level, nil
}
