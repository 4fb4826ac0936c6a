package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/otpAuth/internal/rate"
	"github.com/MrEthical07/otpAuth/internal/stores"
)

// OTPFailureKind classifies verify and resend failures.
type OTPFailureKind int

const (
	OTPFailureNone OTPFailureKind = iota
	OTPFailureSessionExpired
	OTPFailureExpired
	OTPFailureInvalid
	OTPFailureAttemptsExceeded
	OTPFailureRateLimited
	OTPFailureBackend
	OTPFailureMail
	OTPFailureEstablish
)

type VerificationSessionStore interface {
	Get(ctx context.Context, id string) (*stores.VerificationSession, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type OTPConsumer interface {
	Consume(ctx context.Context, email, digest string) error
	Delete(ctx context.Context, email string) error
}

type OTPAttemptLimiter interface {
	OTPAttempt(ctx context.Context, verificationID string) (time.Duration, error)
	ResetOTPAttempts(ctx context.Context, verificationID string) error
}

// Established is what the engine minted once the OTP matched.
type Established struct {
	SessionID           string
	SupersededSessionID string
	AccessToken         string
	RefreshToken        string
	CSRFToken           string
	LoginAt             time.Time
}

// VerifyOTPDeps captures OTP verification dependencies.
type VerifyOTPDeps struct {
	Sessions  VerificationSessionStore
	OTPs      OTPConsumer
	Attempts  OTPAttemptLimiter
	DigestOTP func(string) string
	Establish func(ctx context.Context, accountID string) (*Established, error)
	Warn      func(string, ...any)
}

// VerifyOTPResult carries the established session or failure metadata.
type VerifyOTPResult struct {
	Failure     OTPFailureKind
	Err         error
	RetryAfter  time.Duration
	AccountID   string
	Email       string
	State       LoginState
	Established *Established
}

// RunVerifyOTP checks code against the OTP of the verification session's email.
// A wrong or expired code leaves the verification session in place.
func RunVerifyOTP(ctx context.Context, verificationID, code string, deps VerifyOTPDeps) VerifyOTPResult {
	record, failure, err := loadPending(ctx, verificationID, deps.Sessions)
	if failure != OTPFailureNone {
		return VerifyOTPResult{Failure: failure, Err: err}
	}
	state := LoginState(record.State)
	base := VerifyOTPResult{AccountID: record.AccountID, Email: record.Email, State: state}

	err = deps.OTPs.Consume(ctx, record.Email, deps.DigestOTP(code))
	switch {
	case errors.Is(err, stores.ErrOTPNotFound):
		base.Failure, base.Err = OTPFailureExpired, err
		return base
	case errors.Is(err, stores.ErrOTPMismatch):
		base.Failure, base.Err = OTPFailureInvalid, err
		if deps.Attempts != nil {
			wait, lerr := deps.Attempts.OTPAttempt(ctx, verificationID)
			if errors.Is(lerr, rate.ErrRateLimited) {
				// the code is burned; the user has to ask for a new one
				if derr := deps.OTPs.Delete(ctx, record.Email); derr != nil && deps.Warn != nil {
					deps.Warn("otpauth: otp delete after exhausted attempts failed", "error", derr)
				}
				base.Failure, base.RetryAfter = OTPFailureAttemptsExceeded, wait
			} else if lerr != nil && deps.Warn != nil {
				deps.Warn("otpauth: otp attempt tracking failed", "error", lerr)
			}
		}
		return base
	case err != nil:
		base.Failure, base.Err = OTPFailureBackend, err
		return base
	}

	next, err := Advance(state, LoginStateSessionEstablished)
	if err != nil {
		base.Failure, base.Err = OTPFailureSessionExpired, err
		return base
	}

	if _, err := deps.Sessions.Delete(ctx, verificationID); err != nil {
		base.Failure, base.Err = OTPFailureBackend, err
		return base
	}
	if deps.Attempts != nil {
		if err := deps.Attempts.ResetOTPAttempts(ctx, verificationID); err != nil && deps.Warn != nil {
			deps.Warn("otpauth: otp attempt reset failed", "error", err)
		}
	}

	established, err := deps.Establish(ctx, record.AccountID)
	if err != nil {
		base.Failure, base.Err = OTPFailureEstablish, err
		return base
	}

	base.State = next
	base.Established = established
	return base
}

type ResendLimiter interface {
	Resend(ctx context.Context, email string) (time.Duration, error)
}

// ResendOTPDeps captures resend dependencies.
type ResendOTPDeps struct {
	Sessions  VerificationSessionStore
	OTPs      OTPWriter
	Limiter   ResendLimiter
	Attempts  OTPAttemptLimiter
	NewOTP    func() (string, error)
	DigestOTP func(string) string
	SendOTP   func(ctx context.Context, email, code string, expiresAt time.Time) error
	OTPTTL    time.Duration
	Now       func() time.Time
	Warn      func(string, ...any)
}

// ResendOTPResult carries the new expiry or failure metadata.
type ResendOTPResult struct {
	Failure      OTPFailureKind
	Err          error
	RetryAfter   time.Duration
	AccountID    string
	Email        string
	OTPExpiresAt time.Time
}

// RunResendOTP replaces the pending OTP with a fresh one and mails it. The
// wrong-code budget starts over with the new code.
func RunResendOTP(ctx context.Context, verificationID string, deps ResendOTPDeps) ResendOTPResult {
	record, failure, err := loadPending(ctx, verificationID, deps.Sessions)
	if failure != OTPFailureNone {
		return ResendOTPResult{Failure: failure, Err: err}
	}
	if _, err := Advance(LoginState(record.State), LoginStateOTPPending); err != nil {
		return ResendOTPResult{Failure: OTPFailureSessionExpired, Err: err}
	}
	base := ResendOTPResult{AccountID: record.AccountID, Email: record.Email}

	if deps.Limiter != nil {
		wait, err := deps.Limiter.Resend(ctx, record.Email)
		if err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				base.Failure, base.Err, base.RetryAfter = OTPFailureRateLimited, err, wait
				return base
			}
			base.Failure, base.Err = OTPFailureBackend, err
			return base
		}
	}

	code, err := deps.NewOTP()
	if err != nil {
		base.Failure, base.Err = OTPFailureBackend, err
		return base
	}
	if err := deps.OTPs.Put(ctx, record.Email, deps.DigestOTP(code), deps.OTPTTL); err != nil {
		base.Failure, base.Err = OTPFailureBackend, err
		return base
	}
	if deps.Attempts != nil {
		if err := deps.Attempts.ResetOTPAttempts(ctx, verificationID); err != nil && deps.Warn != nil {
			deps.Warn("otpauth: otp attempt reset failed", "error", err)
		}
	}

	expiresAt := deps.Now().Add(deps.OTPTTL)
	if err := deps.SendOTP(ctx, record.Email, code, expiresAt); err != nil {
		base.Failure, base.Err = OTPFailureMail, err
		return base
	}
	base.OTPExpiresAt = expiresAt
	return base
}

func loadPending(ctx context.Context, id string, sessions VerificationSessionStore) (*stores.VerificationSession, OTPFailureKind, error) {
	if id == "" {
		return nil, OTPFailureSessionExpired, stores.ErrVerificationSessionNotFound
	}
	record, err := sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, stores.ErrVerificationSessionNotFound) || errors.Is(err, stores.ErrVerificationSessionExpired) {
			return nil, OTPFailureSessionExpired, err
		}
		return nil, OTPFailureBackend, err
	}
	if LoginState(record.State) != LoginStateOTPPending {
		return nil, OTPFailureSessionExpired, ErrIllegalTransition
	}
	return record, OTPFailureNone, nil
}
