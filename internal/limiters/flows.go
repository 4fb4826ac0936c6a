package limiters

import (
	"context"
	"time"

	"github.com/MrEthical07/otpAuth/internal/rate"
)

// Config holds per-flow windows. A zero window disables that limiter.
type Config struct {
	Prefix               string
	RegistrationCooldown time.Duration
	LoginCooldown        time.Duration
	ResendCooldown       time.Duration
	ResetCooldown        time.Duration
	MaxOTPAttempts       int
	OTPAttemptWindow     time.Duration
}

type Limiters struct {
	rate   *rate.Limiter
	config Config
}

func New(l *rate.Limiter, cfg Config) *Limiters {
	return &Limiters{rate: l, config: cfg}
}

func (l *Limiters) Registration(ctx context.Context, ip, email string) (time.Duration, error) {
	if l == nil {
		return 0, nil
	}
	return l.rate.Cooldown(ctx, l.key("register", ip, email), l.config.RegistrationCooldown)
}

func (l *Limiters) Login(ctx context.Context, ip, email string) (time.Duration, error) {
	if l == nil {
		return 0, nil
	}
	return l.rate.Cooldown(ctx, l.key("login", ip, email), l.config.LoginCooldown)
}

func (l *Limiters) Resend(ctx context.Context, email string) (time.Duration, error) {
	if l == nil {
		return 0, nil
	}
	return l.rate.Cooldown(ctx, l.key("resend", email), l.config.ResendCooldown)
}

func (l *Limiters) PasswordReset(ctx context.Context, ip, email string) (time.Duration, error) {
	if l == nil {
		return 0, nil
	}
	return l.rate.Cooldown(ctx, l.key("reset", ip, email), l.config.ResetCooldown)
}

// OTPAttempt records one wrong code against the verification session.
func (l *Limiters) OTPAttempt(ctx context.Context, verificationID string) (time.Duration, error) {
	if l == nil {
		return 0, nil
	}
	return l.rate.Hit(ctx, l.key("otp", verificationID), l.config.MaxOTPAttempts, l.config.OTPAttemptWindow)
}

// ResetOTPAttempts clears the wrong-code counter once the session is established.
func (l *Limiters) ResetOTPAttempts(ctx context.Context, verificationID string) error {
	if l == nil {
		return nil
	}
	return l.rate.Release(ctx, l.key("otp", verificationID))
}

func (l *Limiters) key(flow string, parts ...string) string {
	k := l.config.Prefix + "rl:" + flow
	for _, p := range parts {
		if p == "" {
			p = "-"
		}
		k += ":" + p
	}
	return k
}
