package otpAuth

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config defines a public type used by otpAuth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Tokens         TokensConfig
	Registration   RegistrationConfig
	Login          LoginConfig
	Session        SessionConfig
	CSRF           CSRFConfig
	PasswordReset  PasswordResetConfig
	Password       PasswordConfig
	Links          LinksConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
	ProductionMode bool
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokensConfig holds one HS256 secret and lifetime per token purpose.
// Purposes never share a secret so a token of one kind cannot be replayed as another.
type TokensConfig struct {
	AccessSecret       []byte
	RefreshSecret      []byte
	ResetSecret        []byte
	VerificationSecret []byte
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	ResetTTL           time.Duration
	VerificationTTL    time.Duration
	Issuer             string
	Leeway             time.Duration
}

/*
====================================
FLOW CONFIG
====================================
*/

// RegistrationConfig controls the pending-registration flow.
type RegistrationConfig struct {
	PendingTTL        time.Duration
	Cooldown          time.Duration
	MarkEmailVerified bool
	DefaultRole       Role
}

// LoginConfig controls the password + OTP flow.
type LoginConfig struct {
	OTPDigits              int
	OTPTTL                 time.Duration
	VerificationSessionTTL time.Duration
	Cooldown               time.Duration
	ResendCooldown         time.Duration
	MaxOTPAttempts         int
}

// SessionConfig defines a public type used by otpAuth APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	RedisPrefix   string
	TTL           time.Duration
	ProjectionTTL time.Duration
}

// CSRFConfig defines a public type used by otpAuth APIs.
type CSRFConfig struct {
	TTL time.Duration
}

// PasswordResetConfig controls forgot/reset password. The link lifetime is
// Tokens.ResetTTL.
type PasswordResetConfig struct {
	Cooldown time.Duration
}

// PasswordConfig defines a public type used by otpAuth APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// LinksConfig is used to build the URLs placed in outgoing mail.
type LinksConfig struct {
	FrontendURL string
}

// AuditConfig defines a public type used by otpAuth APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by otpAuth APIs.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults with empty secrets. Callers
// must set every Tokens secret before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Tokens: TokensConfig{
			AccessTTL:       15 * time.Minute,
			RefreshTTL:      7 * 24 * time.Hour,
			ResetTTL:        15 * time.Minute,
			VerificationTTL: 24 * time.Hour,
			Issuer:          "otpauth",
			Leeway:          30 * time.Second,
		},
		Registration: RegistrationConfig{
			PendingTTL:        5 * time.Minute,
			Cooldown:          60 * time.Second,
			MarkEmailVerified: true,
			DefaultRole:       RoleUser,
		},
		Login: LoginConfig{
			OTPDigits:              6,
			OTPTTL:                 5 * time.Minute,
			VerificationSessionTTL: 10 * time.Minute,
			Cooldown:               60 * time.Second,
			ResendCooldown:         60 * time.Second,
			MaxOTPAttempts:         5,
		},
		Session: SessionConfig{
			RedisPrefix:   "",
			TTL:           7 * 24 * time.Hour,
			ProjectionTTL: time.Hour,
		},
		CSRF: CSRFConfig{
			TTL: time.Hour,
		},
		PasswordReset: PasswordResetConfig{
			Cooldown: 60 * time.Second,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Links: LinksConfig{
			FrontendURL: "http://localhost:5173",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Tokens.AccessSecret = cloneBytes(cfg.Tokens.AccessSecret)
	out.Tokens.RefreshSecret = cloneBytes(cfg.Tokens.RefreshSecret)
	out.Tokens.ResetSecret = cloneBytes(cfg.Tokens.ResetSecret)
	out.Tokens.VerificationSecret = cloneBytes(cfg.Tokens.VerificationSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate returns the first configuration problem found, or nil.
func (c *Config) Validate() error {
	// Tokens
	if len(c.Tokens.AccessSecret) == 0 {
		return errors.New("Tokens AccessSecret is required")
	}
	if len(c.Tokens.RefreshSecret) == 0 {
		return errors.New("Tokens RefreshSecret is required")
	}
	if len(c.Tokens.ResetSecret) == 0 {
		return errors.New("Tokens ResetSecret is required")
	}
	if len(c.Tokens.VerificationSecret) == 0 {
		return errors.New("Tokens VerificationSecret is required")
	}
	if c.Tokens.AccessTTL <= 0 {
		return errors.New("Tokens AccessTTL must be > 0")
	}
	if c.Tokens.RefreshTTL <= 0 {
		return errors.New("Tokens RefreshTTL must be > 0")
	}
	if c.Tokens.ResetTTL <= 0 {
		return errors.New("Tokens ResetTTL must be > 0")
	}
	if c.Tokens.VerificationTTL <= 0 {
		return errors.New("Tokens VerificationTTL must be > 0")
	}
	if c.Tokens.Leeway < 0 || c.Tokens.Leeway > 2*time.Minute {
		return errors.New("Tokens Leeway must be between 0 and 2m")
	}

	// Registration
	if c.Registration.PendingTTL <= 0 {
		return errors.New("Registration PendingTTL must be > 0")
	}
	if c.Registration.Cooldown < 0 {
		return errors.New("Registration Cooldown must be >= 0")
	}
	if !c.Registration.DefaultRole.Valid() {
		return errors.New("Registration DefaultRole must be user or admin")
	}

	// Login
	if c.Login.OTPDigits < 4 || c.Login.OTPDigits > 10 {
		return errors.New("Login OTPDigits must be between 4 and 10")
	}
	if c.Login.OTPTTL <= 0 {
		return errors.New("Login OTPTTL must be > 0")
	}
	if c.Login.VerificationSessionTTL < c.Login.OTPTTL {
		return errors.New("Login VerificationSessionTTL must be >= OTPTTL")
	}
	if c.Login.Cooldown < 0 || c.Login.ResendCooldown < 0 {
		return errors.New("Login cooldowns must be >= 0")
	}
	if c.Login.MaxOTPAttempts < 0 {
		return errors.New("Login MaxOTPAttempts must be >= 0")
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Tokens.RefreshTTL > c.Session.TTL {
		return errors.New("Tokens RefreshTTL must not outlive Session TTL")
	}
	if c.Session.ProjectionTTL <= 0 {
		return errors.New("Session ProjectionTTL must be > 0")
	}
	if c.CSRF.TTL <= 0 {
		return errors.New("CSRF TTL must be > 0")
	}
	if c.PasswordReset.Cooldown < 0 {
		return errors.New("PasswordReset Cooldown must be >= 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Links
	u, err := url.Parse(strings.TrimSpace(c.Links.FrontendURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("Links FrontendURL must be an absolute URL")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.ProductionMode {
		if c.Tokens.AccessTTL > 15*time.Minute {
			return errors.New("ProductionMode requires Tokens AccessTTL <= 15m")
		}
		for _, secret := range [][]byte{
			c.Tokens.AccessSecret,
			c.Tokens.RefreshSecret,
			c.Tokens.ResetSecret,
			c.Tokens.VerificationSecret,
		} {
			if len(secret) < 32 {
				return errors.New("ProductionMode requires token secrets >= 256 bits")
			}
		}
		if string(c.Tokens.AccessSecret) == string(c.Tokens.RefreshSecret) {
			return errors.New("ProductionMode requires distinct access and refresh secrets")
		}
		if c.Password.Memory < 64*1024 {
			return errors.New("ProductionMode requires Password Memory >= 65536 KB")
		}
		if c.Password.Time < 2 {
			return errors.New("ProductionMode requires Password Time >= 2")
		}
		if c.Login.OTPDigits < 6 {
			return errors.New("ProductionMode requires Login OTPDigits >= 6")
		}
		if c.Login.MaxOTPAttempts == 0 {
			return errors.New("ProductionMode requires Login MaxOTPAttempts > 0")
		}
	}

	return nil
}
