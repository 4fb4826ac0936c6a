package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/otpAuth/internal/rate"
	"github.com/MrEthical07/otpAuth/internal/stores"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureInvalidCredentials
	LoginFailureRateLimited
	LoginFailureBackend
	LoginFailureMail
)

// Credential is the minimum the login flow needs from the durable store.
type Credential struct {
	AccountID    string
	Email        string
	PasswordHash string
}

type CredentialLookup interface {
	// FindCredential resolves identifier against email or username in one query.
	FindCredential(ctx context.Context, identifier string) (*Credential, bool, error)
}

type LoginLimiter interface {
	Login(ctx context.Context, ip, email string) (time.Duration, error)
}

type OTPWriter interface {
	Put(ctx context.Context, email, digest string, ttl time.Duration) error
}

type VerificationSessionWriter interface {
	Save(ctx context.Context, id string, record *stores.VerificationSession, ttl time.Duration) error
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	Accounts          CredentialLookup
	VerifyPassword    func(password, encodedHash string) (bool, error)
	DummyHash         string
	Limiter           LoginLimiter
	NewOTP            func() (string, error)
	DigestOTP         func(string) string
	OTPs              OTPWriter
	Sessions          VerificationSessionWriter
	NewVerificationID func() (string, error)
	SendOTP           func(ctx context.Context, email, code string, expiresAt time.Time) error
	OTPTTL            time.Duration
	VerificationTTL   time.Duration
	Now               func() time.Time
}

// LoginInput is one credentials submission.
type LoginInput struct {
	Identifier string
	Password   string
	ClientIP   string
}

// LoginResult carries either the pending challenge or failure metadata.
type LoginResult struct {
	Failure        LoginFailureKind
	Err            error
	RetryAfter     time.Duration
	AccountID      string
	Email          string
	PasswordHash   string
	VerificationID string
	State          LoginState
	OTPExpiresAt   time.Time
}

// RunLogin verifies credentials and, on success, mails an OTP and opens a
// verification session in OTP_PENDING.
func RunLogin(ctx context.Context, in LoginInput, deps LoginDeps) LoginResult {
	state, _ := Advance(LoginStateNone, LoginStateCredentialsSubmitted)

	cred, found, err := deps.Accounts.FindCredential(ctx, in.Identifier)
	if err != nil {
		return LoginResult{Failure: LoginFailureBackend, Err: err, State: state}
	}

	hash := deps.DummyHash
	if found {
		hash = cred.PasswordHash
	}
	// the absent-account path still pays for one hash verification
	ok, verr := deps.VerifyPassword(in.Password, hash)
	if !found || verr != nil || !ok {
		res := LoginResult{Failure: LoginFailureInvalidCredentials, Err: verr, State: state}
		if found {
			res.AccountID = cred.AccountID
			res.Email = cred.Email
		}
		return res
	}

	if deps.Limiter != nil {
		wait, err := deps.Limiter.Login(ctx, in.ClientIP, cred.Email)
		if err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return LoginResult{
					Failure:    LoginFailureRateLimited,
					Err:        err,
					RetryAfter: wait,
					AccountID:  cred.AccountID,
					Email:      cred.Email,
					State:      state,
				}
			}
			return LoginResult{Failure: LoginFailureBackend, Err: err, State: state}
		}
	}

	now := deps.Now()
	code, err := deps.NewOTP()
	if err != nil {
		return LoginResult{Failure: LoginFailureBackend, Err: err, State: state}
	}
	if err := deps.OTPs.Put(ctx, cred.Email, deps.DigestOTP(code), deps.OTPTTL); err != nil {
		return LoginResult{Failure: LoginFailureBackend, Err: err, State: state}
	}

	vid, err := deps.NewVerificationID()
	if err != nil {
		return LoginResult{Failure: LoginFailureBackend, Err: err, State: state}
	}

	state, err = Advance(state, LoginStateOTPPending)
	if err != nil {
		return LoginResult{Failure: LoginFailureBackend, Err: err, State: state}
	}
	record := &stores.VerificationSession{
		State:     uint8(state),
		AccountID: cred.AccountID,
		Email:     cred.Email,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(deps.VerificationTTL).Unix(),
	}
	if err := deps.Sessions.Save(ctx, vid, record, deps.VerificationTTL); err != nil {
		return LoginResult{Failure: LoginFailureBackend, Err: err, State: state}
	}

	expiresAt := now.Add(deps.OTPTTL)
	if err := deps.SendOTP(ctx, cred.Email, code, expiresAt); err != nil {
		return LoginResult{
			Failure:   LoginFailureMail,
			Err:       err,
			AccountID: cred.AccountID,
			Email:     cred.Email,
			State:     state,
		}
	}

	return LoginResult{
		AccountID:      cred.AccountID,
		Email:          cred.Email,
		PasswordHash:   cred.PasswordHash,
		VerificationID: vid,
		State:          state,
		OTPExpiresAt:   expiresAt,
	}
}
