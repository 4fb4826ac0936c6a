// Command otpauthd serves the otpAuth HTTP API.
//
// Usage:
//
//	otpauthd -config /etc/otpauthd.toml
//
// Every setting has a default; OTPAUTH_* environment variables override the
// file. Without a Postgres DSN accounts are kept in memory, and without an
// SMTP host outgoing mail is logged instead of sent. Production mode refuses
// to start without an SMTP host.
//
// Config loading and transport selection are tested with testify.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/otpAuth"
	"github.com/MrEthical07/otpAuth/accountstore/memory"
	"github.com/MrEthical07/otpAuth/accountstore/postgres"
	"github.com/MrEthical07/otpAuth/mail"
	"github.com/MrEthical07/otpAuth/server"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath, os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	level, err := cfg.logLevel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("otpauthd exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg daemonConfig, logger *slog.Logger) error {
	engineCfg, err := cfg.engineConfig()
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	accounts, db, err := openAccounts(ctx, cfg.Postgres, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	mailer, err := newMailer(cfg.SMTP, cfg.Production, logger)
	if err != nil {
		return err
	}

	builder := otpAuth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithAccountStore(accounts).
		WithMailer(mailer).
		WithLogger(logger)
	if engineCfg.Audit.Enabled {
		builder = builder.WithAuditSink(otpAuth.NewSlogSink(logger.With("component", "audit")))
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	defer engine.Close()

	report := engine.SecurityReport()
	logger.Info("otpauthd security posture",
		"production", report.ProductionMode,
		"access_ttl", report.AccessTTL,
		"refresh_ttl", report.RefreshTTL,
		"otp_attempt_limit", report.OTPAttemptLimitActive,
		"rate_limiting", report.RateLimitingActive,
		"email_verification", report.EmailVerificationActive,
		"distinct_secrets", report.DistinctTokenSecrets,
	)

	srv := server.New(engine, cfg.serverConfig(), logger)
	logger.Info("otpauthd listening", "addr", cfg.Server.Addr, "production", cfg.Production)
	return srv.Run(ctx)
}

func openAccounts(ctx context.Context, cfg postgresSection, logger *slog.Logger) (otpAuth.AccountStore, *sql.DB, error) {
	if cfg.DSN == "" {
		logger.Warn("no postgres dsn configured; accounts are kept in memory")
		return memory.New(), nil, nil
	}
	db, err := postgres.Open(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	return postgres.New(db), db, nil
}

func newMailer(cfg mail.SMTPConfig, production bool, logger *slog.Logger) (otpAuth.Mailer, error) {
	if cfg.Host == "" {
		if production {
			return nil, errors.New("smtp: host is required in production mode")
		}
		logger.Warn("no smtp host configured; mail is logged, not sent")
		return mail.NewLogSender(logger), nil
	}
	sender, err := mail.NewSMTPSender(cfg)
	if err != nil {
		return nil, fmt.Errorf("smtp: %w", err)
	}
	return sender, nil
}
