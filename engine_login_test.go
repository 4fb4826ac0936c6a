package otpAuth

import (
	"context"
	"testing"
)

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestLoginWrongThenCorrectOTP(t *testing.T) {
	h := newTestEngine(t, testConfig())
	ctx := context.Background()
	h.seed(t, "u1", "alice_1", "alice@example.com", "Secret1!")

	challenge, err := h.engine.Login(ctx, "alice@example.com", "Secret1!")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if challenge.State != "OTP_PENDING" {
		t.Fatalf("expected OTP_PENDING, got %q", challenge.State)
	}
	code := h.mailer.last(t, otpPattern)
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}

	_, err = h.engine.VerifyOTP(ctx, challenge.VerificationSessionID, wrongCode(code))
	assertIs(t, err, ErrInvalidOTP)

	est, err := h.engine.VerifyOTP(ctx, challenge.VerificationSessionID, code)
	if err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}
	if est.Account.ID != "u1" || est.AccessToken == "" || est.RefreshToken == "" || len(est.CSRFToken) != 64 {
		t.Fatalf("unexpected established session: %+v", est)
	}

	sc, err := h.engine.Authenticate(ctx, est.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if sc.AccountID != "u1" || sc.SessionID != est.SessionID || sc.Username != "alice_1" {
		t.Fatalf("unexpected session context: %+v", sc)
	}

	_, err = h.engine.VerifyOTP(ctx, challenge.VerificationSessionID, code)
	assertIs(t, err, ErrVerificationSessionExpired)
}

func TestLoginByUsername(t *testing.T) {
	h := newTestEngine(t, testConfig())
	ctx := context.Background()
	h.seed(t, "u1", "alice_1", "alice@example.com", "Secret1!")

	est := h.login(t, ctx, "ALICE_1", "Secret1!")
	if est.Account.Email != "alice@example.com" {
		t.Fatalf("unexpected account: %+v", est.Account)
	}
}

func TestOTPIsSingleUse(t *testing.T) {
	h := newTestEngine(t, testConfig())
	ctx := context.Background()
	h.seed(t, "u1", "alice_1", "alice@example.com", "Secret1!")

	first, err := h.engine.Login(ctx, "alice_1", "Secret1!")
	if err != nil {
		t.Fatalf("first Login failed: %v", err)
	}
	second, err := h.engine.Login(ctx, "alice_1", "Secret1!")
	if err != nil {
		t.Fatalf("second Login failed: %v", err)
	}
	code := h.mailer.last(t, otpPattern)

	if _, err := h.engine.VerifyOTP(ctx, first.VerificationSessionID, code); err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}
	_, err = h.engine.VerifyOTP(ctx, second.VerificationSessionID, code)
	assertIs(t, err, ErrOTPExpired)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	h := newTestEngine(t, testConfig())
	ctx := context.Background()
	h.seed(t, "u1", "alice_1", "alice@example.com", "Secret1!")

	_, unknown := h.engine.Login(ctx, "nobody@example.com", "Secret1!")
	_, wrong := h.engine.Login(ctx, "alice@example.com", "Wrong123")
	assertIs(t, unknown, ErrInvalidCredentials)
	assertIs(t, wrong, ErrInvalidCredentials)
	if unknown.Error() != wrong.Error() {
		t.Fatalf("messages differ: %q vs %q", unknown.Error(), wrong.Error())
	}
	if h.mailer.count() != 0 {
		t.Fatal("no OTP should be mailed on failed login")
	}
}

func TestLoginCooldown(t *testing.T) {
	cfg := testConfig()
	cfg.Login.Cooldown = defaultConfig().Login.Cooldown
	h := newTestEngine(t, cfg)
	ctx := WithClientIP(context.Background(), "198.51.100.1")
	h.seed(t, "u1", "alice_1", "alice@example.com", "Secret1!")

	if _, err := h.engine.Login(ctx, "alice_1", "Secret1!"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	_, err := h.engine.Login(ctx, "alice@example.com", "Secret1!")
	assertIs(t, err, ErrTooManyRequests)
}

func TestOTPAttemptsExceededBurnsCode(t *testing.T) {
	cfg := testConfig()
	cfg.Login.MaxOTPAttempts = 2
	h := newTestEngine(t, cfg)
	ctx := context.Background()
	h.seed(t, "u1", "alice_1", "alice@example.com", "Secret1!")

	challenge, err := h.engine.Login(ctx, "alice_1", "Secret1!")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	code := h.mailer.last(t, otpPattern)
	bad := wrongCode(code)

	for i := 0; i < 2; i++ {
		_, err := h.engine.VerifyOTP(ctx, challenge.VerificationSessionID, bad)
		assertIs(t, err, ErrInvalidOTP)
	}
	_, err = h.engine.VerifyOTP(ctx, challenge.VerificationSessionID, bad)
	assertIs(t, err, ErrOTPAttemptsExceeded)

	_, err = h.engine.VerifyOTP(ctx, challenge.VerificationSessionID, code)
	assertIs(t, err, ErrOTPExpired)

	if _, err := h.engine.ResendOTP(ctx, challenge.VerificationSessionID); err != nil {
		t.Fatalf("ResendOTP failed: %v", err)
	}
	if _, err := h.engine.VerifyOTP(ctx, challenge.VerificationSessionID, h.mailer.last(t, otpPattern)); err != nil {
		t.Fatalf("VerifyOTP with resent code failed: %v", err)
	}
}

func TestResendRestoresAttemptBudget(t *testing.T) {
	cfg := testConfig()
	cfg.Login.MaxOTPAttempts = 2
	h := newTestEngine(t, cfg)
	ctx := context.Background()
	h.seed(t, "u1", "alice_1", "alice@example.com", "Secret1!")

	challenge, err := h.engine.Login(ctx, "alice_1", "Secret1!")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	bad := wrongCode(h.mailer.last(t, otpPattern))
	for i := 0; i < 3; i++ {
		_, _ = h.engine.VerifyOTP(ctx, challenge.VerificationSessionID, bad)
	}

	if _, err := h.engine.ResendOTP(ctx, challenge.VerificationSessionID); err != nil {
		t.Fatalf("ResendOTP failed: %v", err)
	}
	code := h.mailer.last(t, otpPattern)

	_, err = h.engine.VerifyOTP(ctx, challenge.VerificationSessionID, wrongCode(code))
	assertIs(t, err, ErrInvalidOTP)

	if _, err := h.engine.VerifyOTP(ctx, challenge.VerificationSessionID, code); err != nil {
		t.Fatalf("VerifyOTP with resent code after one typo failed: %v", err)
	}
}

func TestVerifyOTPRejectsMalformedInput(t *testing.T) {
	h := newTestEngine(t, testConfig())
	ctx := context.Background()

	_, err := h.engine.VerifyOTP(ctx, "", "123456")
	assertIs(t, err, ErrVerificationSessionExpired)

	_, err = h.engine.VerifyOTP(ctx, "vid", "12ab56")
	if KindOf(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = h.engine.VerifyOTP(ctx, "unknown-verification-session", "123456")
	assertIs(t, err, ErrVerificationSessionExpired)
}

func TestResendOTPReplacesCode(t *testing.T) {
	cfg := testConfig()
	cfg.Login.ResendCooldown = defaultConfig().Login.ResendCooldown
	h := newTestEngine(t, cfg)
	ctx := context.Background()
	h.seed(t, "u1", "alice_1", "alice@example.com", "Secret1!")

	challenge, err := h.engine.Login(ctx, "alice_1", "Secret1!")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := h.engine.ResendOTP(ctx, challenge.VerificationSessionID); err != nil {
		t.Fatalf("ResendOTP failed: %v", err)
	}
	_, err = h.engine.ResendOTP(ctx, challenge.VerificationSessionID)
	assertIs(t, err, ErrTooManyRequests)

	if h.mailer.count() != 2 {
		t.Fatalf("expected 2 mails, got %d", h.mailer.count())
	}
	if _, err := h.engine.VerifyOTP(ctx, challenge.VerificationSessionID, h.mailer.last(t, otpPattern)); err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}
}
