package otpAuth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/otpAuth/internal/flows"
	"github.com/MrEthical07/otpAuth/jwt"
	"github.com/MrEthical07/otpAuth/session"
)

func (e *Engine) parse(purpose jwt.Purpose) func(string) (*jwt.Claims, error) {
	return func(token string) (*jwt.Claims, error) {
		return e.tokens.Parse(purpose, token)
	}
}

// Authenticate describes the authenticate operation and its observable behavior.
//
// Authenticate validates an access token and checks that its session id is
// still the account's Active Session. A missing Active Session returns
// ErrSessionNotFound and a different one returns ErrSessionInvalidated. On a
// match it touches the Session Record and resolves the account projection
// through the cache.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*SessionContext, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
		}
	}()

	res := flows.RunAuthenticate(ctx, accessToken, flows.AuthenticateDeps{
		ParseAccess:    e.parse(jwt.PurposeAccess),
		Sessions:       e.sessions,
		LoadProjection: e.loadProjection,
		Now:            e.now,
		Warn:           func(msg string, args ...any) { e.warn(ctx, msg, args...) },
	})

	var err *Error
	switch res.Failure {
	case flows.AuthenticateFailureNone:
	case flows.AuthenticateFailureMissing:
		err = ErrAccessTokenMissing
	case flows.AuthenticateFailureInvalid:
		err = wrap(ErrAccessTokenInvalid, res.Err)
	case flows.AuthenticateFailureSessionNotFound:
		err = wrap(ErrSessionNotFound, res.Err)
	case flows.AuthenticateFailureSessionSuperseded:
		e.metricInc(MetricSessionInvalidated)
		err = ErrSessionInvalidated
	case flows.AuthenticateFailureAccountMissing:
		// the account was removed out of band; its session goes with it
		if _, rerr := e.sessions.Revoke(ctx, res.AccountID); rerr != nil {
			e.warn(ctx, "otpauth: revoke for missing account failed", "account_id", res.AccountID, "error", rerr)
		}
		err = ErrSessionNotFound
	default:
		err = infraError("authenticate", res.Err)
	}
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		return nil, err
	}

	if res.CacheHit {
		e.metricInc(MetricProjectionCacheHit)
	} else {
		e.metricInc(MetricProjectionCacheMiss)
	}
	e.metricInc(MetricAuthenticateSuccess)

	p := res.Projection
	return &SessionContext{
		AccountID: res.AccountID,
		SessionID: res.SessionID,
		Role:      Role(p.Role),
		Email:     p.Email,
		Username:  p.Username,
	}, nil
}

// Refresh describes the refresh operation and its observable behavior.
//
// Refresh validates a refresh token, then checks under one snapshot that its
// session id is the Active Session and that the stored refresh token equals
// the presented one; any mismatch is ErrSessionInvalidated, the signal for
// clients to stop retrying. Success touches the Session Record and mints a new
// access token. The refresh token itself is not rotated.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	res := flows.RunRefresh(ctx, refreshToken, flows.RefreshDeps{
		ParseRefresh: e.parse(jwt.PurposeRefresh),
		IssueAccess: func(accountID, sessionID string) (string, error) {
			token, _, err := e.tokens.Issue(jwt.PurposeAccess, accountID, sessionID, e.now())
			return token, err
		},
		Sessions: e.sessions,
		Now:      e.now,
	})

	var err *Error
	switch res.Failure {
	case flows.RefreshFailureNone:
	case flows.RefreshFailureMissing:
		err = ErrRefreshTokenMissing
	case flows.RefreshFailureExpired:
		err = wrap(ErrRefreshTokenExpired, res.Err)
	case flows.RefreshFailureInvalid:
		err = wrap(ErrRefreshTokenInvalid, res.Err)
	case flows.RefreshFailureSessionInvalidated:
		e.metricInc(MetricSessionInvalidated)
		err = wrap(ErrSessionInvalidated, res.Err)
	default:
		err = infraError("refresh", res.Err)
	}
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		meta := map[string]string(nil)
		if res.Failure == flows.RefreshFailureSessionInvalidated {
			meta = map[string]string{"check": res.Check.String()}
		}
		e.emitAudit(ctx, EventRefreshFailed, false, res.AccountID, res.SessionID, err, meta)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, EventRefreshSuccess, true, res.AccountID, res.SessionID, nil, nil)
	return &RefreshResult{
		AccountID:   res.AccountID,
		SessionID:   res.SessionID,
		AccessToken: res.AccessToken,
		ExpiresAt:   e.now().Add(e.tokens.TTL(jwt.PurposeAccess)),
	}, nil
}

// Logout describes the logout operation and its observable behavior.
//
// Logout removes the Active Session, refresh token, CSRF token, cached
// projection and Session Record of sc. It is idempotent. When the account's
// Active Session already belongs to another login only sc's own Session
// Record is removed.
func (e *Engine) Logout(ctx context.Context, sc SessionContext) error {
	if err := e.ready(); err != nil {
		return err
	}
	if sc.AccountID == "" || sc.SessionID == "" {
		return ErrSessionNotFound
	}

	owned, err := e.sessions.Logout(ctx, sc.AccountID, sc.SessionID)
	if err != nil {
		return infraError("logout", err)
	}

	e.metricInc(MetricLogout)
	meta := map[string]string(nil)
	if !owned {
		meta = map[string]string{"scope": "record_only"}
	}
	e.emitAudit(ctx, EventLogout, true, sc.AccountID, sc.SessionID, nil, meta)
	return nil
}

// RevokeAccount describes the revoke account operation and its observable behavior.
//
// RevokeAccount drops every session key of accountID without a presented
// session. Password reset calls it to sign out every device.
func (e *Engine) RevokeAccount(ctx context.Context, accountID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if accountID == "" {
		return validationError("account id required")
	}
	sid, err := e.sessions.Revoke(ctx, accountID)
	if err != nil {
		return infraError("revoke", err)
	}
	if sid != "" {
		e.metricInc(MetricSessionInvalidated)
	}
	return nil
}

// SessionRecord returns the Session Record of sessionID, for diagnostics.
func (e *Engine) SessionRecord(ctx context.Context, sessionID string) (*session.Record, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rec, err := e.sessions.GetRecord(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, infraError("session record", err)
	}
	return rec, nil
}
