package otpAuth

import (
	"testing"
	"time"
)

func TestSecurityReportReflectsPosture(t *testing.T) {
	cfg := testConfig()
	cfg.Registration.MarkEmailVerified = false
	cfg.Audit.Enabled = true

	h := newTestEngine(t, cfg)
	report := h.engine.SecurityReport()

	if report.SigningAlgorithm != "hs256" {
		t.Fatalf("expected hs256 signing algorithm in report, got %s", report.SigningAlgorithm)
	}
	if report.AccessTTL != 15*time.Minute || report.CSRFTTL != time.Hour {
		t.Fatalf("unexpected lifetimes in report: %+v", report)
	}
	if !report.SingleSessionEnforced || report.RefreshRotationEnabled {
		t.Fatal("expected single session without refresh rotation")
	}
	if report.RateLimitingActive {
		t.Fatal("cooldowns are disabled in the test config")
	}
	if !report.EmailVerificationActive || !report.AuditEnabled {
		t.Fatal("expected email verification and audit in report")
	}
	if !report.DistinctTokenSecrets {
		t.Fatal("expected distinct token secrets")
	}
	if !report.OTPAttemptLimitActive || report.OTPDigits != 6 {
		t.Fatalf("unexpected otp posture: %+v", report)
	}
	if report.Argon2.Memory != 8*1024 {
		t.Fatalf("expected argon2 memory 8192, got %d", report.Argon2.Memory)
	}
}

func TestSecurityReportDetectsSharedSecrets(t *testing.T) {
	cfg := testConfig()
	cfg.Tokens.ResetSecret = cfg.Tokens.AccessSecret

	h := newTestEngine(t, cfg)
	if h.engine.SecurityReport().DistinctTokenSecrets {
		t.Fatal("expected shared secrets to be reported")
	}
	if (*Engine)(nil).SecurityReport().SigningAlgorithm != "" {
		t.Fatal("expected zero report for nil engine")
	}
}
