package otpAuth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/otpAuth/internal"
	internalaudit "github.com/MrEthical07/otpAuth/internal/audit"
	"github.com/MrEthical07/otpAuth/internal/limiters"
	"github.com/MrEthical07/otpAuth/internal/rate"
	"github.com/MrEthical07/otpAuth/internal/stores"
	"github.com/MrEthical07/otpAuth/jwt"
	"github.com/MrEthical07/otpAuth/password"
	"github.com/MrEthical07/otpAuth/session"
	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by otpAuth APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
// A Builder produces exactly one Engine.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts  AccountStore
	mailer    Mailer
	logger    *slog.Logger
	auditSink AuditSink
	validator PasswordValidator

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The value is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the ephemeral store. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the durable account store. Required.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithMailer sets the outgoing mail transport. Required.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithLogger sets the engine logger. The default discards.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets where audit events go when Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithPasswordValidator overrides the default password policy.
func (b *Builder) WithPasswordValidator(v PasswordValidator) *Builder {
	b.validator = v
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration, wires every store and codec, and starts
// the audit dispatcher when enabled. It fails when a required collaborator is
// missing or the Builder was already used.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}

	// -------- TOKEN CODEC --------
	tokens, err := jwt.NewManager(jwt.Config{
		Keys: map[jwt.Purpose]jwt.KeyConfig{
			jwt.PurposeAccess:       {SigningMethod: jwt.MethodHS256, PrivateKey: cfg.Tokens.AccessSecret, TTL: cfg.Tokens.AccessTTL},
			jwt.PurposeRefresh:      {SigningMethod: jwt.MethodHS256, PrivateKey: cfg.Tokens.RefreshSecret, TTL: cfg.Tokens.RefreshTTL},
			jwt.PurposeReset:        {SigningMethod: jwt.MethodHS256, PrivateKey: cfg.Tokens.ResetSecret, TTL: cfg.Tokens.ResetTTL},
			jwt.PurposeVerification: {SigningMethod: jwt.MethodHS256, PrivateKey: cfg.Tokens.VerificationSecret, TTL: cfg.Tokens.VerificationTTL},
		},
		Issuer: cfg.Tokens.Issuer,
		Leeway: cfg.Tokens.Leeway,
	})
	if err != nil {
		return nil, err
	}

	// -------- PASSWORD HASHER --------
	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	filler, err := internal.NewOpaqueToken(16)
	if err != nil {
		return nil, err
	}
	dummyHash, err := hasher.Hash(filler)
	if err != nil {
		return nil, err
	}

	// -------- EPHEMERAL STORES --------
	prefix := cfg.Session.RedisPrefix
	sessions := session.NewStore(b.redis, session.Config{
		Prefix:        prefix,
		SessionTTL:    cfg.Session.TTL,
		CSRFTTL:       cfg.CSRF.TTL,
		ProjectionTTL: cfg.Session.ProjectionTTL,
	})

	limiter := limiters.New(rate.New(b.redis), limiters.Config{
		Prefix:               prefix,
		RegistrationCooldown: cfg.Registration.Cooldown,
		LoginCooldown:        cfg.Login.Cooldown,
		ResendCooldown:       cfg.Login.ResendCooldown,
		ResetCooldown:        cfg.PasswordReset.Cooldown,
		MaxOTPAttempts:       cfg.Login.MaxOTPAttempts,
		OTPAttemptWindow:     cfg.Login.VerificationSessionTTL,
	})

	messages, err := newMessageTemplates(cfg.Links)
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	validator := b.validator
	if validator == nil {
		validator = PasswordValidatorFunc(DefaultPasswordPolicy)
	}

	e := &Engine{
		config:        cfg,
		sessions:      sessions,
		pending:       stores.NewPendingRegistrationStore(b.redis, prefix+"verify"),
		otps:          stores.NewOTPStore(b.redis, prefix+"otp"),
		verifications: stores.NewVerificationSessionStore(b.redis, prefix+"v_s"),
		usedTokens:    stores.NewUsedTokenStore(b.redis, prefix+"reset_used"),
		limiters:      limiter,
		tokens:        tokens,
		hasher:        hasher,
		dummyHash:     dummyHash,
		accounts:      b.accounts,
		mailer:        b.mailer,
		messages:      messages,
		validator:     validator,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger,
		now:     time.Now,
	}

	b.built = true
	return e, nil
}
