package otpAuth

import (
	"context"
	"errors"

	"github.com/MrEthical07/otpAuth/jwt"
)

// RequestEmailVerification mails a verification link to the caller's address.
// An account that is already verified gets ErrEmailAlreadyVerified.
func (e *Engine) RequestEmailVerification(ctx context.Context, sc SessionContext) error {
	if err := e.ready(); err != nil {
		return err
	}
	acc, err := e.accounts.FindByID(ctx, sc.AccountID)
	if err != nil {
		return e.storeError("account load", err)
	}
	if acc.EmailVerified {
		return ErrEmailAlreadyVerified
	}

	token, _, err := e.tokens.Issue(jwt.PurposeVerification, acc.ID, "", e.now())
	if err != nil {
		return infraError("verification token", err)
	}
	msg, err := e.messages.emailVerification(acc.Email, acc.Username, token)
	if err == nil {
		err = e.sendMail(ctx, msg)
	}
	if err != nil {
		return infraError("verification mail", err)
	}
	return nil
}

// VerifyEmail describes the verify email operation and its observable behavior.
//
// VerifyEmail marks the token's account verified. Repeating it with a still
// valid token is harmless.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if token == "" {
		return ErrEmailVerificationTokenInvalid
	}
	claims, err := e.tokens.Parse(jwt.PurposeVerification, token)
	if err != nil {
		return wrap(ErrEmailVerificationTokenInvalid, err)
	}

	if err := e.accounts.SetEmailVerified(ctx, claims.Subject, true); err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return wrap(ErrEmailVerificationTokenInvalid, err)
		}
		return infraError("email verification", err)
	}
	e.dropProjection(ctx, claims.Subject)

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, EventEmailVerified, true, claims.Subject, "", nil, nil)
	return nil
}
