package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/otpAuth/jwt"
	"github.com/MrEthical07/otpAuth/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMissing
	RefreshFailureExpired
	RefreshFailureInvalid
	RefreshFailureSessionInvalidated
	RefreshFailureBackend
	RefreshFailureIssueAccess
)

type RefreshSessionStore interface {
	CheckRefresh(ctx context.Context, accountID, sid, token string) (session.RefreshCheck, error)
	Touch(ctx context.Context, sessionID string, now time.Time) error
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	ParseRefresh func(string) (*jwt.Claims, error)
	IssueAccess  func(accountID, sessionID string) (string, error)
	Sessions     RefreshSessionStore
	Now          func() time.Time
}

// RefreshResult carries the new access token or failure metadata.
type RefreshResult struct {
	Failure     RefreshFailureKind
	Err         error
	Check       session.RefreshCheck
	AccountID   string
	SessionID   string
	AccessToken string
}

// RunRefresh validates a refresh token against the live session and mints a
// new access token. The refresh token itself is not rotated.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if refreshToken == "" {
		return RefreshResult{Failure: RefreshFailureMissing}
	}

	claims, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return RefreshResult{Failure: RefreshFailureExpired, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureInvalid, Err: err}
	}
	res := RefreshResult{AccountID: claims.Subject, SessionID: claims.SID}

	check, err := deps.Sessions.CheckRefresh(ctx, claims.Subject, claims.SID, refreshToken)
	if err != nil {
		res.Failure, res.Err = RefreshFailureBackend, err
		return res
	}
	res.Check = check
	if check != session.RefreshValid {
		res.Failure, res.Err = RefreshFailureSessionInvalidated, errors.New(check.String())
		return res
	}

	if err := deps.Sessions.Touch(ctx, claims.SID, deps.Now()); err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrRecordCorrupt) {
			res.Failure, res.Err = RefreshFailureSessionInvalidated, err
			return res
		}
		res.Failure, res.Err = RefreshFailureBackend, err
		return res
	}

	access, err := deps.IssueAccess(claims.Subject, claims.SID)
	if err != nil {
		res.Failure, res.Err = RefreshFailureIssueAccess, err
		return res
	}
	res.AccessToken = access
	return res
}

// AuthenticateFailureKind classifies access-token validation failures.
type AuthenticateFailureKind int

const (
	AuthenticateFailureNone AuthenticateFailureKind = iota
	AuthenticateFailureMissing
	AuthenticateFailureInvalid
	AuthenticateFailureSessionNotFound
	AuthenticateFailureSessionSuperseded
	AuthenticateFailureAccountMissing
	AuthenticateFailureBackend
)

type AuthenticateSessionStore interface {
	ActiveSessionID(ctx context.Context, accountID string) (string, error)
	Touch(ctx context.Context, sessionID string, now time.Time) error
	GetProjection(ctx context.Context, accountID string) (*session.Projection, error)
	SetProjection(ctx context.Context, p *session.Projection) error
}

// AuthenticateDeps captures per-request validation dependencies.
type AuthenticateDeps struct {
	ParseAccess    func(string) (*jwt.Claims, error)
	Sessions       AuthenticateSessionStore
	LoadProjection func(ctx context.Context, accountID string) (*session.Projection, bool, error)
	Now            func() time.Time
	Warn           func(string, ...any)
}

// AuthenticateResult carries the session context or failure metadata.
type AuthenticateResult struct {
	Failure    AuthenticateFailureKind
	Err        error
	AccountID  string
	SessionID  string
	Projection *session.Projection
	CacheHit   bool
}

// RunAuthenticate checks an access token against the account's Active Session
// and resolves the account projection through the cache.
func RunAuthenticate(ctx context.Context, accessToken string, deps AuthenticateDeps) AuthenticateResult {
	if accessToken == "" {
		return AuthenticateResult{Failure: AuthenticateFailureMissing}
	}

	claims, err := deps.ParseAccess(accessToken)
	if err != nil {
		return AuthenticateResult{Failure: AuthenticateFailureInvalid, Err: err}
	}
	res := AuthenticateResult{AccountID: claims.Subject, SessionID: claims.SID}

	active, err := deps.Sessions.ActiveSessionID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			res.Failure, res.Err = AuthenticateFailureSessionNotFound, err
			return res
		}
		res.Failure, res.Err = AuthenticateFailureBackend, err
		return res
	}
	if active != claims.SID {
		res.Failure = AuthenticateFailureSessionSuperseded
		return res
	}

	if err := deps.Sessions.Touch(ctx, claims.SID, deps.Now()); err != nil && deps.Warn != nil {
		deps.Warn("otpauth: session activity touch failed", "session_id", claims.SID, "error", err)
	}

	projection, err := deps.Sessions.GetProjection(ctx, claims.Subject)
	if err == nil {
		res.Projection, res.CacheHit = projection, true
		return res
	}
	if !errors.Is(err, session.ErrNotFound) {
		res.Failure, res.Err = AuthenticateFailureBackend, err
		return res
	}

	projection, found, err := deps.LoadProjection(ctx, claims.Subject)
	if err != nil {
		res.Failure, res.Err = AuthenticateFailureBackend, err
		return res
	}
	if !found {
		res.Failure = AuthenticateFailureAccountMissing
		return res
	}
	if err := deps.Sessions.SetProjection(ctx, projection); err != nil && deps.Warn != nil {
		deps.Warn("otpauth: projection cache write failed", "account_id", claims.Subject, "error", err)
	}
	res.Projection = projection
	return res
}
