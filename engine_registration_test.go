package otpAuth

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRegistrationConfirmationIsSingleUse(t *testing.T) {
	h := newTestEngine(t, testConfig())
	ctx := context.Background()

	err := h.engine.BeginRegistration(ctx, RegistrationInput{
		Username: "Alice_1",
		Email:    " Alice@Example.com ",
		Password: "Secret1!",
	})
	if err != nil {
		t.Fatalf("BeginRegistration failed: %v", err)
	}
	token := h.mailer.last(t, confirmationPattern)

	p, err := h.engine.ConfirmRegistration(ctx, token)
	if err != nil {
		t.Fatalf("ConfirmRegistration failed: %v", err)
	}
	if p.Email != "alice@example.com" || p.Username != "alice_1" || p.Role != string(RoleUser) {
		t.Fatalf("unexpected projection: %+v", p)
	}

	acc, err := h.accounts.FindByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("account not persisted: %v", err)
	}
	if !acc.EmailVerified {
		t.Fatal("expected account to be marked verified")
	}
	if !strings.HasPrefix(acc.PasswordHash, "$argon2id$") {
		t.Fatalf("expected argon2id hash, got %q", acc.PasswordHash)
	}

	_, err = h.engine.ConfirmRegistration(ctx, token)
	assertIs(t, err, ErrRegistrationTokenInvalid)
	if h.accounts.createCalls != 1 {
		t.Fatalf("expected one Create call, got %d", h.accounts.createCalls)
	}
}

func TestRegistrationRejectsExistingAccount(t *testing.T) {
	h := newTestEngine(t, testConfig())
	ctx := context.Background()
	h.seed(t, "u1", "alice_1", "alice@example.com", "Secret1!")

	err := h.engine.BeginRegistration(ctx, RegistrationInput{Username: "other_1", Email: "alice@example.com", Password: "Secret1!"})
	assertIs(t, err, ErrAccountExists)

	err = h.engine.BeginRegistration(ctx, RegistrationInput{Username: "alice_1", Email: "new@example.com", Password: "Secret1!"})
	assertIs(t, err, ErrAccountExists)

	if h.mailer.count() != 0 {
		t.Fatalf("expected no mail, got %d", h.mailer.count())
	}
}

func TestRegistrationValidation(t *testing.T) {
	h := newTestEngine(t, testConfig())
	ctx := context.Background()

	cases := []RegistrationInput{
		{Username: "short", Email: "a@example.com", Password: "Secret1!"},
		{Username: "bad name", Email: "a@example.com", Password: "Secret1!"},
		{Username: "alice_1", Email: "not-an-email", Password: "Secret1!"},
		{Username: "alice_1", Email: "a@example.com", Password: "short1"},
		{Username: "alice_1", Email: "a@example.com", Password: "lettersonly"},
	}
	for _, in := range cases {
		err := h.engine.BeginRegistration(ctx, in)
		if KindOf(err) != KindValidation {
			t.Fatalf("expected validation error for %+v, got %v", in, err)
		}
	}
}

func TestRegistrationCooldown(t *testing.T) {
	cfg := testConfig()
	cfg.Registration.Cooldown = defaultConfig().Registration.Cooldown
	h := newTestEngine(t, cfg)
	ctx := WithClientIP(context.Background(), "203.0.113.7")

	in := RegistrationInput{Username: "alice_1", Email: "alice@example.com", Password: "Secret1!"}
	if err := h.engine.BeginRegistration(ctx, in); err != nil {
		t.Fatalf("first BeginRegistration failed: %v", err)
	}
	err := h.engine.BeginRegistration(ctx, in)
	assertIs(t, err, ErrTooManyRequests)
	e, _ := AsError(err)
	if e.RetryAfter <= 0 || !strings.Contains(e.Message, "Try again in") {
		t.Fatalf("expected retry hint, got %+v", e)
	}

	other := WithClientIP(context.Background(), "203.0.113.8")
	if err := h.engine.BeginRegistration(other, in); err != nil {
		t.Fatalf("different client should not share the cooldown: %v", err)
	}
}

func TestRegistrationMailFailureDropsPendingRecord(t *testing.T) {
	h := newTestEngine(t, testConfig())
	ctx := context.Background()
	h.mailer.err = errors.New("smtp down")

	err := h.engine.BeginRegistration(ctx, RegistrationInput{Username: "alice_1", Email: "alice@example.com", Password: "Secret1!"})
	if KindOf(err) != KindInfrastructure {
		t.Fatalf("expected infrastructure error, got %v", err)
	}
	for _, key := range h.redis.Keys() {
		if strings.HasPrefix(key, "verify:") {
			t.Fatalf("pending registration left behind: %s", key)
		}
	}
}

func TestConfirmRegistrationRejectsMalformedToken(t *testing.T) {
	h := newTestEngine(t, testConfig())
	_, err := h.engine.ConfirmRegistration(context.Background(), "../../etc/passwd")
	assertIs(t, err, ErrRegistrationTokenInvalid)
}
