package otpAuth

import (
	"context"
	"errors"

	"github.com/MrEthical07/otpAuth/internal/rate"
	"github.com/MrEthical07/otpAuth/jwt"
)

// RequestPasswordReset describes the request password reset operation and its observable behavior.
//
// RequestPasswordReset applies the per (client IP, email) cooldown and, when
// an account owns email, mails a single-use reset link. Unknown addresses
// return nil so the response does not reveal which emails are registered.
func (e *Engine) RequestPasswordReset(ctx context.Context, rawEmail string) error {
	if err := e.ready(); err != nil {
		return err
	}
	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return err
	}

	if wait, err := e.limiters.PasswordReset(ctx, clientIPFromContext(ctx), email); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return withRetryAfter(ErrTooManyRequests, wait, err)
		}
		return infraError("reset cooldown", err)
	}

	e.metricInc(MetricPasswordResetRequest)
	acc, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			e.emitAudit(ctx, EventPasswordResetRequested, false, "", "", ErrAccountNotFound, nil)
			return nil
		}
		return infraError("reset lookup", err)
	}

	token, _, err := e.tokens.Issue(jwt.PurposeReset, acc.ID, "", e.now())
	if err != nil {
		return infraError("reset token", err)
	}
	msg, err := e.messages.reset(acc.Email, acc.Username, token, e.config.Tokens.ResetTTL)
	if err == nil {
		err = e.sendMail(ctx, msg)
	}
	if err != nil {
		return infraError("reset mail", err)
	}

	e.emitAudit(ctx, EventPasswordResetRequested, true, acc.ID, "", nil, nil)
	return nil
}

// ResetPassword describes the reset password operation and its observable behavior.
//
// ResetPassword accepts a reset link token at most once, stores the new
// password hash and revokes every session of the account, signing out all
// devices. The token stays usable when any of those steps fails.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if token == "" {
		return ErrResetTokenInvalid
	}
	if err := e.checkPassword(newPassword); err != nil {
		return err
	}

	claims, err := e.tokens.Parse(jwt.PurposeReset, token)
	if err != nil {
		e.metricInc(MetricPasswordResetFailure)
		return wrap(ErrResetTokenInvalid, err)
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		e.metricInc(MetricPasswordResetFailure)
		return ErrResetTokenInvalid
	}

	remaining := claims.ExpiresAt.Time.Sub(e.now()) + e.config.Tokens.Leeway
	first, err := e.usedTokens.MarkUsed(ctx, claims.ID, remaining)
	if err != nil {
		return infraError("reset marker", err)
	}
	if !first {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, EventPasswordResetCompleted, false, claims.Subject, "", ErrResetTokenInvalid, map[string]string{"reason": "reused"})
		return ErrResetTokenInvalid
	}

	release := func() {
		if rerr := e.usedTokens.Release(ctx, claims.ID); rerr != nil {
			e.warn(ctx, "otpauth: reset marker release failed", "error", rerr)
		}
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		release()
		return infraError("password hash", err)
	}
	if err := e.accounts.UpdatePasswordHash(ctx, claims.Subject, hash); err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			e.metricInc(MetricPasswordResetFailure)
			return wrap(ErrResetTokenInvalid, err)
		}
		release()
		return infraError("password update", err)
	}

	revoked, err := e.sessions.Revoke(ctx, claims.Subject)
	if err != nil {
		// the new hash is stored; resubmitting the link finishes the sign-out
		release()
		return infraError("session revoke", err)
	}
	if revoked != "" {
		e.metricInc(MetricSessionInvalidated)
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, EventPasswordResetCompleted, true, claims.Subject, revoked, nil, nil)
	return nil
}

// UpdatePassword describes the update password operation and its observable behavior.
//
// UpdatePassword changes the password of the authenticated account after
// verifying the current one. The caller's session stays valid.
func (e *Engine) UpdatePassword(ctx context.Context, sc SessionContext, current, next string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if current == "" {
		return validationError("Current password is required.")
	}
	if err := e.checkPassword(next); err != nil {
		return err
	}
	if current == next {
		return validationError("New password must be different from the current password.")
	}

	acc, err := e.accounts.FindByID(ctx, sc.AccountID)
	if err != nil {
		return e.storeError("account load", err)
	}
	ok, err := e.hasher.Verify(current, acc.PasswordHash)
	if err != nil || !ok {
		e.emitAudit(ctx, EventPasswordUpdated, false, acc.ID, sc.SessionID, ErrCurrentPasswordInvalid, nil)
		return ErrCurrentPasswordInvalid
	}

	hash, err := e.hasher.Hash(next)
	if err != nil {
		return infraError("password hash", err)
	}
	if err := e.accounts.UpdatePasswordHash(ctx, acc.ID, hash); err != nil {
		return e.storeError("password update", err)
	}

	e.metricInc(MetricPasswordChanged)
	e.emitAudit(ctx, EventPasswordUpdated, true, acc.ID, sc.SessionID, nil, nil)
	return nil
}
