package otpAuth

import (
	"context"
	"net/http"
	"testing"
)

func TestCheckAndUpdateUsername(t *testing.T) {
	h := newTestEngine(t, testConfig())
	ctx := context.Background()
	h.seed(t, "u1", "alice_1", "alice@example.com", "Secret1!")
	h.seed(t, "u2", "bobby_2", "bob@example.com", "Secret1!")
	est := h.login(t, ctx, "alice_1", "Secret1!")
	sc := SessionContext{AccountID: "u1", SessionID: est.SessionID}

	cases := map[string]UsernameAvailability{
		"alice_1":  UsernameCurrent,
		"BOBBY_2":  UsernameTaken,
		"fresh_99": UsernameAvailable,
	}
	for name, want := range cases {
		got, err := h.engine.CheckUsername(ctx, sc, name)
		if err != nil {
			t.Fatalf("CheckUsername(%q) failed: %v", name, err)
		}
		if got != want {
			t.Fatalf("CheckUsername(%q) = %s, want %s", name, got, want)
		}
	}

	_, err := h.engine.UpdateUsername(ctx, sc, "bobby_2")
	assertIs(t, err, ErrUsernameTaken)
	if e, _ := AsError(err); e.HTTPStatus() != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", e.HTTPStatus())
	}

	p, err := h.engine.UpdateUsername(ctx, sc, "alice_new")
	if err != nil {
		t.Fatalf("UpdateUsername failed: %v", err)
	}
	if p.Username != "alice_new" {
		t.Fatalf("unexpected projection: %+v", p)
	}

	current, err := h.engine.Authenticate(ctx, est.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if current.Username != "alice_new" {
		t.Fatalf("projection cache not invalidated: %+v", current)
	}
}

func TestUpdateRole(t *testing.T) {
	h := newTestEngine(t, testConfig())
	ctx := context.Background()
	h.seed(t, "u1", "alice_1", "alice@example.com", "Secret1!")
	est := h.login(t, ctx, "alice_1", "Secret1!")

	_, err := h.engine.UpdateRole(ctx, "missing", "admin")
	assertIs(t, err, ErrAccountNotFound)

	_, err = h.engine.UpdateRole(ctx, "u1", "superuser")
	assertIs(t, err, ErrInvalidRole)

	p, err := h.engine.UpdateRole(ctx, "u1", "Admin")
	if err != nil {
		t.Fatalf("UpdateRole failed: %v", err)
	}
	if p.Role != string(RoleAdmin) {
		t.Fatalf("unexpected role %q", p.Role)
	}

	sc, err := h.engine.Authenticate(ctx, est.AccessToken)
	if err != nil {
		t.Fatalf("session should survive a role change: %v", err)
	}
	if sc.Role != RoleAdmin {
		t.Fatalf("expected admin role after cache drop, got %q", sc.Role)
	}
}

func TestListAccountsAndCurrentAccount(t *testing.T) {
	h := newTestEngine(t, testConfig())
	ctx := context.Background()
	h.seed(t, "u1", "alice_1", "alice@example.com", "Secret1!")
	h.seed(t, "u2", "bobby_2", "bob@example.com", "Secret1!")

	list, err := h.engine.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "u1" || list[1].ID != "u2" {
		t.Fatalf("unexpected list: %+v", list)
	}

	p, err := h.engine.CurrentAccount(ctx, SessionContext{AccountID: "u2"})
	if err != nil {
		t.Fatalf("CurrentAccount failed: %v", err)
	}
	if p.Email != "bob@example.com" {
		t.Fatalf("unexpected projection: %+v", p)
	}
}

func TestEmailVerification(t *testing.T) {
	h := newTestEngine(t, testConfig())
	ctx := context.Background()
	h.seed(t, "u1", "alice_1", "alice@example.com", "Secret1!")
	h.accounts.mu.Lock()
	acc := h.accounts.accounts["u1"]
	acc.EmailVerified = false
	h.accounts.accounts["u1"] = acc
	h.accounts.mu.Unlock()
	sc := SessionContext{AccountID: "u1"}

	if err := h.engine.RequestEmailVerification(ctx, sc); err != nil {
		t.Fatalf("RequestEmailVerification failed: %v", err)
	}
	token := h.mailer.last(t, linkTokenPattern)

	assertIs(t, h.engine.VerifyEmail(ctx, "garbage"), ErrEmailVerificationTokenInvalid)
	if err := h.engine.VerifyEmail(ctx, token); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	got, _ := h.accounts.FindByID(ctx, "u1")
	if !got.EmailVerified {
		t.Fatal("email not marked verified")
	}
	assertIs(t, h.engine.RequestEmailVerification(ctx, sc), ErrEmailAlreadyVerified)
}

func TestZeroEngineIsNotReady(t *testing.T) {
	var e *Engine
	ctx := context.Background()
	_, err := e.Authenticate(ctx, "token")
	assertIs(t, err, ErrEngineNotReady)
	assertIs(t, (&Engine{}).Logout(ctx, SessionContext{}), ErrEngineNotReady)
}
