package otpAuth

import (
	"context"
	"strings"
	"testing"
)

func TestBuildRequiresCollaborators(t *testing.T) {
	_, rdb := newTestRedis(t)

	if _, err := New().WithConfig(testConfig()).Build(); err == nil || !strings.Contains(err.Error(), "redis") {
		t.Fatalf("expected redis error, got %v", err)
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).WithMailer(&recordingMailer{}).Build(); err == nil {
		t.Fatal("expected account store error")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).WithAccountStore(newMockAccountStore()).Build(); err == nil {
		t.Fatal("expected mailer error")
	}
	if _, err := New().WithRedis(rdb).WithAccountStore(newMockAccountStore()).WithMailer(&recordingMailer{}).Build(); err == nil {
		t.Fatal("default config without secrets must not build")
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)
	b := New().WithConfig(testConfig()).WithRedis(rdb).WithAccountStore(newMockAccountStore()).WithMailer(&recordingMailer{})

	e, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("second Build should fail")
	}
	if _, err := e.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestAuditEventsReachSink(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	sink := NewChannelSink(64)
	accounts := newMockAccountStore()
	mailer := &recordingMailer{}

	e, err := New().WithConfig(cfg).WithRedis(rdb).WithAccountStore(accounts).WithMailer(mailer).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	h := &testHarness{engine: e, accounts: accounts, mailer: mailer}
	h.seed(t, "u1", "alice_1", "alice@example.com", "Secret1!")

	ctx := WithClientIP(context.Background(), "192.0.2.10")
	if _, err := e.Login(ctx, "alice_1", "nope1234"); err == nil {
		t.Fatal("expected login failure")
	}
	e.Close()

	ev := <-sink.Events()
	if ev.EventType != EventLoginFailed || ev.Success || ev.IP != "192.0.2.10" || ev.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if e.AuditDelivered() != 1 || e.AuditDropped() != 0 {
		t.Fatalf("expected 1 delivered and 0 dropped, got %d and %d", e.AuditDelivered(), e.AuditDropped())
	}
}
