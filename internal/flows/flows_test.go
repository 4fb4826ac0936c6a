package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/otpAuth/internal/rate"
	"github.com/MrEthical07/otpAuth/internal/stores"
	"github.com/MrEthical07/otpAuth/jwt"
	"github.com/MrEthical07/otpAuth/session"
)

type stubAccounts struct {
	cred  *Credential
	err   error
	calls int
}

func (s *stubAccounts) FindCredential(context.Context, string) (*Credential, bool, error) {
	s.calls++
	if s.err != nil {
		return nil, false, s.err
	}
	return s.cred, s.cred != nil, nil
}

type stubOTPs struct {
	digests map[string]string
}

func (s *stubOTPs) Put(_ context.Context, email, digest string, _ time.Duration) error {
	s.digests[email] = digest
	return nil
}

func (s *stubOTPs) Consume(_ context.Context, email, digest string) error {
	stored, ok := s.digests[email]
	if !ok {
		return stores.ErrOTPNotFound
	}
	if stored != digest {
		return stores.ErrOTPMismatch
	}
	delete(s.digests, email)
	return nil
}

func (s *stubOTPs) Delete(_ context.Context, email string) error {
	delete(s.digests, email)
	return nil
}

// stubSessions never forgets a record so repeated verification reaches the OTP check.
type stubSessions struct {
	records map[string]*stores.VerificationSession
	deletes int
}

func (s *stubSessions) Save(_ context.Context, id string, r *stores.VerificationSession, _ time.Duration) error {
	s.records[id] = r
	return nil
}

func (s *stubSessions) Get(_ context.Context, id string) (*stores.VerificationSession, error) {
	r, ok := s.records[id]
	if !ok {
		return nil, stores.ErrVerificationSessionNotFound
	}
	return r, nil
}

func (s *stubSessions) Delete(context.Context, string) (bool, error) {
	s.deletes++
	return true, nil
}

type stubLimiter struct {
	limited bool
}

func (s *stubLimiter) Login(context.Context, string, string) (time.Duration, error) {
	if s.limited {
		return 42 * time.Second, rate.ErrRateLimited
	}
	return 0, nil
}

func identity(s string) string { return "d:" + s }

func loginDeps(accounts *stubAccounts, otps *stubOTPs, sessions *stubSessions, limiter *stubLimiter, sent *[]string) LoginDeps {
	return LoginDeps{
		Accounts: accounts,
		VerifyPassword: func(password, hash string) (bool, error) {
			return hash == "hash:"+password, nil
		},
		DummyHash:         "dummy",
		Limiter:           limiter,
		NewOTP:            func() (string, error) { return "123456", nil },
		DigestOTP:         identity,
		OTPs:              otps,
		Sessions:          sessions,
		NewVerificationID: func() (string, error) { return "vs-1", nil },
		SendOTP: func(_ context.Context, email, code string, _ time.Time) error {
			*sent = append(*sent, email+":"+code)
			return nil
		},
		OTPTTL:          5 * time.Minute,
		VerificationTTL: 10 * time.Minute,
		Now:             time.Now,
	}
}

func TestRunLoginSuccessOpensPendingSession(t *testing.T) {
	accounts := &stubAccounts{cred: &Credential{AccountID: "acc", Email: "alice@example.com", PasswordHash: "hash:Secret1!"}}
	otps := &stubOTPs{digests: map[string]string{}}
	sessions := &stubSessions{records: map[string]*stores.VerificationSession{}}
	var sent []string

	start := time.Now()
	res := RunLogin(context.Background(), LoginInput{Identifier: "alice@example.com", Password: "Secret1!"},
		loginDeps(accounts, otps, sessions, &stubLimiter{}, &sent))
	if res.Failure != LoginFailureNone {
		t.Fatalf("unexpected failure %v: %v", res.Failure, res.Err)
	}
	if res.State != LoginStateOTPPending || res.VerificationID != "vs-1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if d := res.OTPExpiresAt.Sub(start); d < 4*time.Minute || d > 6*time.Minute {
		t.Fatalf("unexpected otp expiry %v", d)
	}
	if otps.digests["alice@example.com"] != "d:123456" {
		t.Fatal("otp digest not stored")
	}
	if len(sent) != 1 || sent[0] != "alice@example.com:123456" {
		t.Fatalf("unexpected mail %v", sent)
	}
	if LoginState(sessions.records["vs-1"].State) != LoginStateOTPPending {
		t.Fatal("verification session not tagged OTP_PENDING")
	}
}

func TestRunLoginIdenticalFailureForUnknownAndWrongPassword(t *testing.T) {
	var sent []string
	unknown := RunLogin(context.Background(), LoginInput{Identifier: "ghost", Password: "x"},
		loginDeps(&stubAccounts{}, &stubOTPs{digests: map[string]string{}}, &stubSessions{records: map[string]*stores.VerificationSession{}}, &stubLimiter{}, &sent))
	wrong := RunLogin(context.Background(), LoginInput{Identifier: "alice", Password: "nope"},
		loginDeps(&stubAccounts{cred: &Credential{AccountID: "acc", Email: "a@b.c", PasswordHash: "hash:right"}}, &stubOTPs{digests: map[string]string{}}, &stubSessions{records: map[string]*stores.VerificationSession{}}, &stubLimiter{}, &sent))

	if unknown.Failure != LoginFailureInvalidCredentials || wrong.Failure != LoginFailureInvalidCredentials {
		t.Fatalf("expected invalid credentials for both, got %v and %v", unknown.Failure, wrong.Failure)
	}
	if len(sent) != 0 {
		t.Fatal("no mail may be sent on failed credentials")
	}
}

func TestRunLoginRateLimitedAfterPasswordMatch(t *testing.T) {
	var sent []string
	res := RunLogin(context.Background(), LoginInput{Identifier: "alice", Password: "p"},
		loginDeps(&stubAccounts{cred: &Credential{AccountID: "acc", Email: "a@b.c", PasswordHash: "hash:p"}}, &stubOTPs{digests: map[string]string{}}, &stubSessions{records: map[string]*stores.VerificationSession{}}, &stubLimiter{limited: true}, &sent))
	if res.Failure != LoginFailureRateLimited || res.RetryAfter != 42*time.Second {
		t.Fatalf("expected rate limited with wait, got %+v", res)
	}
	if len(sent) != 0 {
		t.Fatal("rate-limited login must not send mail")
	}
}

func verifyDeps(otps *stubOTPs, sessions *stubSessions, establishCalls *int) VerifyOTPDeps {
	return VerifyOTPDeps{
		Sessions:  sessions,
		OTPs:      otps,
		DigestOTP: identity,
		Establish: func(_ context.Context, accountID string) (*Established, error) {
			*establishCalls++
			return &Established{SessionID: "sid-" + accountID, LoginAt: time.Now()}, nil
		},
	}
}

func TestRunVerifyOTPSingleUse(t *testing.T) {
	otps := &stubOTPs{digests: map[string]string{"a@b.c": "d:123456"}}
	sessions := &stubSessions{records: map[string]*stores.VerificationSession{
		"vs": {State: uint8(LoginStateOTPPending), AccountID: "acc", Email: "a@b.c"},
	}}
	var calls int
	deps := verifyDeps(otps, sessions, &calls)

	wrong := RunVerifyOTP(context.Background(), "vs", "000000", deps)
	if wrong.Failure != OTPFailureInvalid {
		t.Fatalf("expected invalid otp, got %v", wrong.Failure)
	}

	ok := RunVerifyOTP(context.Background(), "vs", "123456", deps)
	if ok.Failure != OTPFailureNone || ok.State != LoginStateSessionEstablished || ok.Established.SessionID != "sid-acc" {
		t.Fatalf("unexpected result %+v", ok)
	}

	again := RunVerifyOTP(context.Background(), "vs", "123456", deps)
	if again.Failure != OTPFailureExpired {
		t.Fatalf("expected otp expired on reuse, got %v", again.Failure)
	}
	if calls != 1 {
		t.Fatalf("expected one established session, got %d", calls)
	}
}

func TestRunVerifyOTPRequiresPendingState(t *testing.T) {
	var calls int
	sessions := &stubSessions{records: map[string]*stores.VerificationSession{
		"vs": {State: uint8(LoginStateSessionEstablished), AccountID: "acc", Email: "a@b.c"},
	}}
	res := RunVerifyOTP(context.Background(), "vs", "123456", verifyDeps(&stubOTPs{digests: map[string]string{"a@b.c": "d:123456"}}, sessions, &calls))
	if res.Failure != OTPFailureSessionExpired {
		t.Fatalf("expected session expired, got %v", res.Failure)
	}

	res = RunVerifyOTP(context.Background(), "", "123456", verifyDeps(&stubOTPs{digests: map[string]string{}}, sessions, &calls))
	if res.Failure != OTPFailureSessionExpired {
		t.Fatalf("expected session expired for empty id, got %v", res.Failure)
	}
}

type stubAttempts struct {
	max   int
	count map[string]int
}

func (s *stubAttempts) OTPAttempt(_ context.Context, id string) (time.Duration, error) {
	s.count[id]++
	if s.count[id] > s.max {
		return time.Minute, rate.ErrRateLimited
	}
	return 0, nil
}

func (s *stubAttempts) ResetOTPAttempts(_ context.Context, id string) error {
	delete(s.count, id)
	return nil
}

func TestRunResendOTPResetsAttemptBudget(t *testing.T) {
	otps := &stubOTPs{digests: map[string]string{"a@b.c": "d:123456"}}
	sessions := &stubSessions{records: map[string]*stores.VerificationSession{
		"vs": {State: uint8(LoginStateOTPPending), AccountID: "acc", Email: "a@b.c"},
	}}
	attempts := &stubAttempts{max: 1, count: map[string]int{}}
	var calls int
	deps := verifyDeps(otps, sessions, &calls)
	deps.Attempts = attempts

	RunVerifyOTP(context.Background(), "vs", "000000", deps)
	burned := RunVerifyOTP(context.Background(), "vs", "000000", deps)
	if burned.Failure != OTPFailureAttemptsExceeded {
		t.Fatalf("expected attempts exceeded, got %v", burned.Failure)
	}

	resent := RunResendOTP(context.Background(), "vs", ResendOTPDeps{
		Sessions:  sessions,
		OTPs:      otps,
		Attempts:  attempts,
		NewOTP:    func() (string, error) { return "654321", nil },
		DigestOTP: identity,
		SendOTP:   func(context.Context, string, string, time.Time) error { return nil },
		OTPTTL:    time.Minute,
		Now:       time.Now,
	})
	if resent.Failure != OTPFailureNone {
		t.Fatalf("resend failed: %+v", resent)
	}
	if attempts.count["vs"] != 0 {
		t.Fatalf("expected attempt counter cleared, got %d", attempts.count["vs"])
	}

	typo := RunVerifyOTP(context.Background(), "vs", "000000", deps)
	if typo.Failure != OTPFailureInvalid {
		t.Fatalf("expected invalid otp after resend, got %v", typo.Failure)
	}
	ok := RunVerifyOTP(context.Background(), "vs", "654321", deps)
	if ok.Failure != OTPFailureNone {
		t.Fatalf("expected success with resent code, got %v", ok.Failure)
	}
}

func TestRunRefreshOutcomes(t *testing.T) {
	m, err := jwt.NewManager(jwt.Config{Keys: map[jwt.Purpose]jwt.KeyConfig{
		jwt.PurposeRefresh: {PrivateKey: []byte("refresh-secret-refresh-secret-01"), TTL: time.Hour},
	}})
	if err != nil {
		t.Fatalf("jwt: %v", err)
	}
	token, _, err := m.Issue(jwt.PurposeRefresh, "acc", "sid", time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	store := &stubRefreshStore{check: session.RefreshValid}
	deps := RefreshDeps{
		ParseRefresh: func(s string) (*jwt.Claims, error) { return m.Parse(jwt.PurposeRefresh, s) },
		IssueAccess:  func(acc, sid string) (string, error) { return "access:" + acc + ":" + sid, nil },
		Sessions:     store,
		Now:          time.Now,
	}

	if res := RunRefresh(context.Background(), "", deps); res.Failure != RefreshFailureMissing {
		t.Fatalf("expected missing, got %v", res.Failure)
	}
	if res := RunRefresh(context.Background(), "garbage", deps); res.Failure != RefreshFailureInvalid {
		t.Fatalf("expected invalid, got %v", res.Failure)
	}

	res := RunRefresh(context.Background(), token, deps)
	if res.Failure != RefreshFailureNone || res.AccessToken != "access:acc:sid" || store.touched != "sid" {
		t.Fatalf("unexpected result %+v", res)
	}

	store.check = session.RefreshSessionMismatch
	if res := RunRefresh(context.Background(), token, deps); res.Failure != RefreshFailureSessionInvalidated {
		t.Fatalf("expected session invalidated, got %v", res.Failure)
	}
}

type stubRefreshStore struct {
	check   session.RefreshCheck
	touched string
}

func (s *stubRefreshStore) CheckRefresh(context.Context, string, string, string) (session.RefreshCheck, error) {
	return s.check, nil
}

func (s *stubRefreshStore) Touch(_ context.Context, sid string, _ time.Time) error {
	s.touched = sid
	return nil
}

type stubAuthStore struct {
	active     string
	projection *session.Projection
	sets       int
}

func (s *stubAuthStore) ActiveSessionID(context.Context, string) (string, error) {
	if s.active == "" {
		return "", session.ErrNotFound
	}
	return s.active, nil
}

func (s *stubAuthStore) Touch(context.Context, string, time.Time) error { return nil }

func (s *stubAuthStore) GetProjection(context.Context, string) (*session.Projection, error) {
	if s.projection == nil {
		return nil, session.ErrNotFound
	}
	return s.projection, nil
}

func (s *stubAuthStore) SetProjection(_ context.Context, p *session.Projection) error {
	s.sets++
	s.projection = p
	return nil
}

func TestRunAuthenticateReadThroughCache(t *testing.T) {
	store := &stubAuthStore{active: "sid"}
	loads := 0
	deps := AuthenticateDeps{
		ParseAccess: func(string) (*jwt.Claims, error) {
			c := &jwt.Claims{SID: "sid"}
			c.Subject = "acc"
			return c, nil
		},
		Sessions: store,
		LoadProjection: func(_ context.Context, id string) (*session.Projection, bool, error) {
			loads++
			return &session.Projection{ID: id, Role: "user"}, true, nil
		},
		Now: time.Now,
	}

	first := RunAuthenticate(context.Background(), "tok", deps)
	second := RunAuthenticate(context.Background(), "tok", deps)
	if first.Failure != AuthenticateFailureNone || second.Failure != AuthenticateFailureNone {
		t.Fatalf("unexpected failures %v %v", first.Failure, second.Failure)
	}
	if first.CacheHit || !second.CacheHit || loads != 1 || store.sets != 1 {
		t.Fatalf("expected one durable load then cache hit, loads=%d sets=%d", loads, store.sets)
	}

	store.active = "other"
	if res := RunAuthenticate(context.Background(), "tok", deps); res.Failure != AuthenticateFailureSessionSuperseded {
		t.Fatalf("expected superseded, got %v", res.Failure)
	}
	store.active = ""
	if res := RunAuthenticate(context.Background(), "tok", deps); res.Failure != AuthenticateFailureSessionNotFound {
		t.Fatalf("expected session not found, got %v", res.Failure)
	}
	if res := RunAuthenticate(context.Background(), "", deps); res.Failure != AuthenticateFailureMissing {
		t.Fatalf("expected missing, got %v", res.Failure)
	}

	deps.ParseAccess = func(string) (*jwt.Claims, error) { return nil, errors.New("bad") }
	if res := RunAuthenticate(context.Background(), "tok", deps); res.Failure != AuthenticateFailureInvalid {
		t.Fatalf("expected invalid, got %v", res.Failure)
	}
}
