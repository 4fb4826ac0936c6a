package otpAuth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/otpAuth/internal"
	"github.com/MrEthical07/otpAuth/internal/flows"
	"github.com/MrEthical07/otpAuth/jwt"
	"github.com/MrEthical07/otpAuth/session"
)

type credentialLookup struct {
	accounts AccountStore
}

func (c credentialLookup) FindCredential(ctx context.Context, identifier string) (*flows.Credential, bool, error) {
	acc, err := c.accounts.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &flows.Credential{
		AccountID:    acc.ID,
		Email:        acc.Email,
		PasswordHash: acc.PasswordHash,
	}, true, nil
}

func (e *Engine) newOTP() (string, error) {
	return internal.NewOTP(e.config.Login.OTPDigits)
}

func (e *Engine) sendOTP(ctx context.Context, email, code string, expiresAt time.Time) error {
	msg, err := e.messages.otp(email, code, expiresAt)
	if err != nil {
		return err
	}
	return e.sendMail(ctx, msg)
}

// Login describes the login operation and its observable behavior.
//
// Login resolves identifier against email or username in a single lookup.
// Unknown accounts and wrong passwords both return ErrInvalidCredentials.
// On a match it applies the per (client IP, email) cooldown, mails a fresh
// OTP and opens a Verification Session in OTP_PENDING.
func (e *Engine) Login(ctx context.Context, identifier, pw string) (*LoginChallenge, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	id, err := normalizeIdentifier(identifier)
	if err != nil {
		return nil, err
	}
	if pw == "" {
		return nil, validationError("Password is required.")
	}

	res := flows.RunLogin(ctx, flows.LoginInput{
		Identifier: id,
		Password:   pw,
		ClientIP:   clientIPFromContext(ctx),
	}, flows.LoginDeps{
		Accounts:          credentialLookup{accounts: e.accounts},
		VerifyPassword:    e.hasher.Verify,
		DummyHash:         e.dummyHash,
		Limiter:           e.limiters,
		NewOTP:            e.newOTP,
		DigestOTP:         internal.DigestCode,
		OTPs:              e.otps,
		Sessions:          e.verifications,
		NewVerificationID: func() (string, error) { return internal.NewOpaqueToken(internal.OpaqueTokenSize) },
		SendOTP:           e.sendOTP,
		OTPTTL:            e.config.Login.OTPTTL,
		VerificationTTL:   e.config.Login.VerificationSessionTTL,
		Now:               e.now,
	})

	switch res.Failure {
	case flows.LoginFailureNone:
	case flows.LoginFailureInvalidCredentials:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, EventLoginFailed, false, res.AccountID, "", ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	case flows.LoginFailureRateLimited:
		e.metricInc(MetricLoginRateLimited)
		rl := withRetryAfter(ErrTooManyRequests, res.RetryAfter, res.Err)
		e.emitAudit(ctx, EventLoginFailed, false, res.AccountID, "", rl, nil)
		return nil, rl
	case flows.LoginFailureMail:
		return nil, infraError("otp mail", res.Err)
	default:
		return nil, infraError("login", res.Err)
	}

	e.upgradeHash(ctx, res.AccountID, pw, res.PasswordHash)

	e.metricInc(MetricLoginOTPSent)
	e.emitAudit(ctx, EventLoginOTPSent, true, res.AccountID, "", nil, nil)
	return &LoginChallenge{
		VerificationSessionID: res.VerificationID,
		State:                 res.State.String(),
		OTPExpiresAt:          res.OTPExpiresAt,
	}, nil
}

// upgradeHash rewrites a hash produced with weaker cost parameters. Failures only log.
func (e *Engine) upgradeHash(ctx context.Context, accountID, pw, encoded string) {
	needs, err := e.hasher.NeedsUpgrade(encoded)
	if err != nil || !needs {
		return
	}
	hash, err := e.hasher.Hash(pw)
	if err == nil {
		err = e.accounts.UpdatePasswordHash(ctx, accountID, hash)
	}
	if err != nil {
		e.warn(ctx, "otpauth: password hash upgrade failed", "account_id", accountID, "error", err)
	}
}

// VerifyOTP describes the verify otp operation and its observable behavior.
//
// VerifyOTP checks otp against the code pending for the Verification
// Session's account. A wrong or expired code leaves the Verification Session
// usable until its own TTL lapses; after Login.MaxOTPAttempts wrong guesses
// the code is burned. On a match both records are deleted and a new Active
// Session replaces any previous one.
func (e *Engine) VerifyOTP(ctx context.Context, verificationSessionID, otp string) (*EstablishedSession, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if verificationSessionID == "" {
		return nil, ErrVerificationSessionExpired
	}
	if !internal.IsDigits(otp, e.config.Login.OTPDigits) {
		return nil, validationError("OTP must be exactly " + strconv.Itoa(e.config.Login.OTPDigits) + " digits.")
	}

	res := flows.RunVerifyOTP(ctx, verificationSessionID, otp, flows.VerifyOTPDeps{
		Sessions:  e.verifications,
		OTPs:      e.otps,
		Attempts:  e.limiters,
		DigestOTP: internal.DigestCode,
		Establish: e.establish,
		Warn:      func(msg string, args ...any) { e.warn(ctx, msg, args...) },
	})

	if res.Failure != flows.OTPFailureNone {
		err := e.otpFailure(res.Failure, res.Err, res.RetryAfter)
		if res.Failure == flows.OTPFailureAttemptsExceeded {
			e.metricInc(MetricOTPAttemptsExceeded)
		}
		e.metricInc(MetricOTPFailure)
		e.emitAudit(ctx, EventOTPFailed, false, res.AccountID, "", err, nil)
		return nil, err
	}

	est := res.Established
	projection, found, err := e.loadProjection(ctx, res.AccountID)
	if err != nil || !found {
		// the account vanished between password check and OTP
		if _, rerr := e.sessions.Revoke(ctx, res.AccountID); rerr != nil {
			e.warn(ctx, "otpauth: revoke after missing account failed", "error", rerr)
		}
		if err != nil {
			return nil, infraError("account load", err)
		}
		return nil, ErrInvalidCredentials
	}
	if err := e.sessions.SetProjection(ctx, projection); err != nil {
		e.warn(ctx, "otpauth: projection cache write failed", "account_id", res.AccountID, "error", err)
	}

	e.metricInc(MetricOTPVerified)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, EventOTPVerified, true, res.AccountID, est.SessionID, nil, nil)
	e.emitAudit(ctx, EventSessionEstablished, true, res.AccountID, est.SessionID, nil, nil)
	if est.SupersededSessionID != "" && est.SupersededSessionID != est.SessionID {
		e.metricInc(MetricSessionSuperseded)
		e.emitAudit(ctx, EventSessionSuperseded, true, res.AccountID, est.SupersededSessionID, nil,
			map[string]string{"replaced_by": est.SessionID})
	}

	return &EstablishedSession{
		Account:             projection,
		SessionID:           est.SessionID,
		LoginAt:             est.LoginAt,
		AccessToken:         est.AccessToken,
		RefreshToken:        est.RefreshToken,
		CSRFToken:           est.CSRFToken,
		SupersededSessionID: est.SupersededSessionID,
	}, nil
}

// establish mints the session id and all three tokens and installs them as
// the account's only session.
func (e *Engine) establish(ctx context.Context, accountID string) (*flows.Established, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	now := e.now()

	refresh, _, err := e.tokens.Issue(jwt.PurposeRefresh, accountID, sid, now)
	if err != nil {
		return nil, err
	}
	access, _, err := e.tokens.Issue(jwt.PurposeAccess, accountID, sid, now)
	if err != nil {
		return nil, err
	}
	csrf, err := internal.NewOpaqueToken(internal.OpaqueTokenSize)
	if err != nil {
		return nil, err
	}

	prev, err := e.sessions.Establish(ctx, &session.Record{
		SessionID:    sid,
		AccountID:    accountID,
		CreatedAt:    now.Unix(),
		LastActivity: now.Unix(),
	}, refresh, csrf)
	if err != nil {
		return nil, err
	}

	return &flows.Established{
		SessionID:           sid,
		SupersededSessionID: prev,
		AccessToken:         access,
		RefreshToken:        refresh,
		CSRFToken:           csrf,
		LoginAt:             now,
	}, nil
}

// ResendOTP describes the resend otp operation and its observable behavior.
//
// ResendOTP re-derives the email from a live OTP_PENDING Verification
// Session, enforces one resend per cooldown per email, overwrites the pending
// code with a fresh one and a fresh TTL, and returns the new expiry.
func (e *Engine) ResendOTP(ctx context.Context, verificationSessionID string) (time.Time, error) {
	if err := e.ready(); err != nil {
		return time.Time{}, err
	}

	res := flows.RunResendOTP(ctx, verificationSessionID, flows.ResendOTPDeps{
		Sessions:  e.verifications,
		OTPs:      e.otps,
		Limiter:   e.limiters,
		Attempts:  e.limiters,
		NewOTP:    e.newOTP,
		DigestOTP: internal.DigestCode,
		SendOTP:   e.sendOTP,
		OTPTTL:    e.config.Login.OTPTTL,
		Now:       e.now,
		Warn:      func(msg string, args ...any) { e.warn(ctx, msg, args...) },
	})
	if res.Failure != flows.OTPFailureNone {
		err := e.otpFailure(res.Failure, res.Err, res.RetryAfter)
		e.emitAudit(ctx, EventOTPResent, false, res.AccountID, "", err, nil)
		return time.Time{}, err
	}

	e.metricInc(MetricOTPResent)
	e.emitAudit(ctx, EventOTPResent, true, res.AccountID, "", nil, nil)
	return res.OTPExpiresAt, nil
}

func (e *Engine) otpFailure(kind flows.OTPFailureKind, cause error, wait time.Duration) *Error {
	switch kind {
	case flows.OTPFailureSessionExpired:
		return wrap(ErrVerificationSessionExpired, cause)
	case flows.OTPFailureExpired:
		return wrap(ErrOTPExpired, cause)
	case flows.OTPFailureInvalid:
		return wrap(ErrInvalidOTP, cause)
	case flows.OTPFailureAttemptsExceeded:
		return wrap(ErrOTPAttemptsExceeded, cause)
	case flows.OTPFailureRateLimited:
		return withRetryAfter(ErrTooManyRequests, wait, cause)
	case flows.OTPFailureMail:
		return infraError("otp mail", cause)
	case flows.OTPFailureEstablish:
		return infraError("session establish", cause)
	default:
		return infraError("otp", cause)
	}
}
