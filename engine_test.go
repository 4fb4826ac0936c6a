package otpAuth

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type mockAccountStore struct {
	mu       sync.Mutex
	accounts map[string]Account

	createErr error
	updateErr error

	createCalls         int
	updatePasswordCalls int
}

func newMockAccountStore() *mockAccountStore {
	return &mockAccountStore{accounts: make(map[string]Account)}
}

func (m *mockAccountStore) FindByIdentifier(ctx context.Context, identifier string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == identifier || a.Username == identifier {
			out := a
			return &out, nil
		}
	}
	return nil, ErrStoreNotFound
}

func (m *mockAccountStore) FindByID(ctx context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrStoreNotFound
	}
	return &a, nil
}

func (m *mockAccountStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == email {
			out := a
			return &out, nil
		}
	}
	return nil, ErrStoreNotFound
}

func (m *mockAccountStore) Exists(ctx context.Context, email, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if (email != "" && a.Email == email) || (username != "" && a.Username == username) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockAccountStore) Create(ctx context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return m.createErr
	}
	for _, a := range m.accounts {
		if a.Email == account.Email || a.Username == account.Username {
			return ErrStoreConflict
		}
	}
	m.accounts[account.ID] = *account
	return nil
}

func (m *mockAccountStore) update(id string, fn func(*Account) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	a, ok := m.accounts[id]
	if !ok {
		return ErrStoreNotFound
	}
	if err := fn(&a); err != nil {
		return err
	}
	a.UpdatedAt = time.Now().UTC()
	m.accounts[id] = a
	return nil
}

func (m *mockAccountStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	m.mu.Lock()
	m.updatePasswordCalls++
	m.mu.Unlock()
	return m.update(id, func(a *Account) error {
		a.PasswordHash = hash
		return nil
	})
}

func (m *mockAccountStore) UpdateUsername(ctx context.Context, id, username string) error {
	return m.update(id, func(a *Account) error {
		for otherID, other := range m.accounts {
			if otherID != id && other.Username == username {
				return ErrStoreConflict
			}
		}
		a.Username = username
		return nil
	})
}

func (m *mockAccountStore) UpdateRole(ctx context.Context, id string, role Role) error {
	return m.update(id, func(a *Account) error {
		a.Role = role
		return nil
	})
}

func (m *mockAccountStore) SetEmailVerified(ctx context.Context, id string, verified bool) error {
	return m.update(id, func(a *Account) error {
		a.EmailVerified = verified
		return nil
	})
}

func (m *mockAccountStore) List(ctx context.Context) ([]Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (r *recordingMailer) Send(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingMailer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

var (
	otpPattern          = regexp.MustCompile(`login code is (\d+)`)
	confirmationPattern = regexp.MustCompile(`/auth/verify/([0-9a-f]+)`)
	linkTokenPattern    = regexp.MustCompile(`\?token=(\S+)`)
)

func (r *recordingMailer) last(t *testing.T, pattern *regexp.Regexp) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		if m := pattern.FindStringSubmatch(r.sent[i].Text); m != nil {
			return m[1]
		}
	}
	t.Fatalf("no mail matching %s among %d messages", pattern, len(r.sent))
	return ""
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Tokens.AccessSecret = []byte("access-secret-access-secret-0001")
	cfg.Tokens.RefreshSecret = []byte("refresh-secret-refresh-secret-01")
	cfg.Tokens.ResetSecret = []byte("reset-secret-reset-secret-000001")
	cfg.Tokens.VerificationSecret = []byte("verify-secret-verify-secret-0001")
	cfg.Registration.Cooldown = 0
	cfg.Login.Cooldown = 0
	cfg.Login.ResendCooldown = 0
	cfg.PasswordReset.Cooldown = 0
	cfg.Password = PasswordConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	return cfg
}

type testHarness struct {
	engine   *Engine
	redis    *miniredis.Miniredis
	accounts *mockAccountStore
	mailer   *recordingMailer
}

func newTestEngine(t *testing.T, cfg Config) *testHarness {
	t.Helper()

	mr, rdb := newTestRedis(t)
	h := &testHarness{
		redis:    mr,
		accounts: newMockAccountStore(),
		mailer:   &recordingMailer{},
	}
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(h.accounts).
		WithMailer(h.mailer).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

// seed stores an account directly, bypassing registration.
func (h *testHarness) seed(t *testing.T, id, username, email, pw string) {
	t.Helper()
	hash, err := h.engine.hasher.Hash(pw)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	now := time.Now().UTC()
	h.accounts.mu.Lock()
	h.accounts.accounts[id] = Account{
		ID:            id,
		Username:      username,
		Email:         email,
		PasswordHash:  hash,
		Role:          RoleUser,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	h.accounts.mu.Unlock()
}

func (h *testHarness) login(t *testing.T, ctx context.Context, identifier, pw string) *EstablishedSession {
	t.Helper()
	challenge, err := h.engine.Login(ctx, identifier, pw)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	est, err := h.engine.VerifyOTP(ctx, challenge.VerificationSessionID, h.mailer.last(t, otpPattern))
	if err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}
	return est
}

func assertIs(t *testing.T, err error, target *Error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %s, got %v", target.Code, err)
	}
}
