package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/otpAuth/internal/rate"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiters(t *testing.T) (*miniredis.Miniredis, *Limiters) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, New(rate.New(rdb), Config{
		RegistrationCooldown: time.Minute,
		LoginCooldown:        time.Minute,
		ResendCooldown:       time.Minute,
		ResetCooldown:        time.Minute,
		MaxOTPAttempts:       2,
		OTPAttemptWindow:     10 * time.Minute,
	})
}

func TestRegistrationKeyedByIPAndEmail(t *testing.T) {
	mr, l := newLimiters(t)
	ctx := context.Background()

	if _, err := l.Registration(ctx, "1.2.3.4", "a@b.c"); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := l.Registration(ctx, "1.2.3.4", "a@b.c"); !errors.Is(err, rate.ErrRateLimited) {
		t.Fatalf("expected limited, got %v", err)
	}
	if _, err := l.Registration(ctx, "5.6.7.8", "a@b.c"); err != nil {
		t.Fatalf("other ip should pass: %v", err)
	}
	if !mr.Exists("rl:register:1.2.3.4:a@b.c") {
		t.Fatal("expected marker key")
	}
}

func TestResendKeyedByEmailOnly(t *testing.T) {
	_, l := newLimiters(t)
	ctx := context.Background()

	if _, err := l.Resend(ctx, "a@b.c"); err != nil {
		t.Fatalf("first: %v", err)
	}
	wait, err := l.Resend(ctx, "a@b.c")
	if !errors.Is(err, rate.ErrRateLimited) || wait <= 0 {
		t.Fatalf("expected limited with wait, got %v %v", wait, err)
	}
}

func TestOTPAttemptBudget(t *testing.T) {
	_, l := newLimiters(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := l.OTPAttempt(ctx, "vs"); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if _, err := l.OTPAttempt(ctx, "vs"); !errors.Is(err, rate.ErrRateLimited) {
		t.Fatalf("expected limited, got %v", err)
	}
	if err := l.ResetOTPAttempts(ctx, "vs"); err != nil {
		t.Fatalf("reset: %v", err)
	}
}

func TestNilLimitersAllow(t *testing.T) {
	var l *Limiters
	if _, err := l.Login(context.Background(), "ip", "e"); err != nil {
		t.Fatalf("nil: %v", err)
	}
}
