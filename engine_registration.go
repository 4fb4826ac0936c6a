package otpAuth

import (
	"context"
	"errors"

	"github.com/MrEthical07/otpAuth/internal"
	"github.com/MrEthical07/otpAuth/internal/rate"
	"github.com/MrEthical07/otpAuth/internal/stores"
	"github.com/MrEthical07/otpAuth/password"
	"github.com/google/uuid"
)

// BeginRegistration describes the begin registration operation and its observable behavior.
//
// BeginRegistration rejects a taken email or username with ErrAccountExists,
// applies the per (client IP, email) cooldown, stores a Pending Registration
// under a fresh 32-byte hex token and mails the confirmation link. The password
// is hashed before it reaches Redis. Repeating a signup for an address with an
// unconfirmed attempt behaves exactly like the first attempt.
func (e *Engine) BeginRegistration(ctx context.Context, in RegistrationInput) error {
	if err := e.ready(); err != nil {
		return err
	}

	username, err := normalizeUsername(in.Username)
	if err != nil {
		return err
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return err
	}
	if err := e.checkPassword(in.Password); err != nil {
		return err
	}

	exists, err := e.accounts.Exists(ctx, email, username)
	if err != nil {
		return infraError("registration lookup", err)
	}
	if exists {
		e.metricInc(MetricRegistrationRejected)
		e.emitAudit(ctx, EventRegistrationStarted, false, "", "", ErrAccountExists, map[string]string{"email": email})
		return ErrAccountExists
	}

	if wait, err := e.limiters.Registration(ctx, clientIPFromContext(ctx), email); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricRegistrationRateLimited)
			return withRetryAfter(ErrTooManyRequests, wait, err)
		}
		return infraError("registration cooldown", err)
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return infraError("password hash", err)
	}
	token, err := internal.NewOpaqueToken(internal.OpaqueTokenSize)
	if err != nil {
		return infraError("registration token", err)
	}

	ttl := e.config.Registration.PendingTTL
	record := &stores.PendingRegistration{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    e.now().Unix(),
	}
	if err := e.pending.Save(ctx, token, record, ttl); err != nil {
		return infraError("pending registration", err)
	}

	msg, err := e.messages.confirmation(email, username, token, ttl)
	if err == nil {
		err = e.sendMail(ctx, msg)
	}
	if err != nil {
		// an unmailed token can never be confirmed
		if _, cerr := e.pending.Consume(ctx, token); cerr != nil {
			e.warn(ctx, "otpauth: pending registration cleanup failed", "error", cerr)
		}
		return infraError("confirmation mail", err)
	}

	e.metricInc(MetricRegistrationStarted)
	e.emitAudit(ctx, EventRegistrationStarted, true, "", "", nil, map[string]string{"email": email})
	return nil
}

// ConfirmRegistration describes the confirm registration operation and its observable behavior.
//
// ConfirmRegistration consumes the Pending Registration with GETDEL and
// persists the Account. Unknown, expired and already-used tokens all return
// ErrRegistrationTokenInvalid.
func (e *Engine) ConfirmRegistration(ctx context.Context, token string) (*Projection, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !internal.ValidOpaqueToken(token) {
		return nil, ErrRegistrationTokenInvalid
	}

	record, err := e.pending.Consume(ctx, token)
	if err != nil {
		if errors.Is(err, stores.ErrPendingRegistrationNotFound) {
			e.emitAudit(ctx, EventRegistrationConfirmed, false, "", "", ErrRegistrationTokenInvalid, nil)
			return nil, ErrRegistrationTokenInvalid
		}
		if errors.Is(err, stores.ErrPendingRegistrationBackend) {
			return nil, infraError("pending registration", err)
		}
		return nil, wrap(ErrRegistrationTokenInvalid, err)
	}

	hash := record.PasswordHash
	if !password.IsEncoded(hash) {
		if hash, err = e.hasher.Hash(record.PasswordHash); err != nil {
			return nil, infraError("password hash", err)
		}
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, infraError("account id", err)
	}
	now := e.now().UTC()
	account := &Account{
		ID:            id.String(),
		Username:      record.Username,
		Email:         record.Email,
		PasswordHash:  hash,
		Role:          e.config.Registration.DefaultRole,
		EmailVerified: e.config.Registration.MarkEmailVerified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrStoreConflict) {
			e.metricInc(MetricRegistrationRejected)
			return nil, wrap(ErrAccountExists, err)
		}
		return nil, infraError("account create", err)
	}

	e.metricInc(MetricRegistrationConfirmed)
	e.emitAudit(ctx, EventRegistrationConfirmed, true, account.ID, "", nil, nil)
	return account.projection(), nil
}
