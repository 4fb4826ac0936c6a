package otpAuth

import (
	"context"
	"errors"
)

// CurrentAccount returns the projection of the authenticated account, read
// through the projection cache.
func (e *Engine) CurrentAccount(ctx context.Context, sc SessionContext) (*Projection, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if sc.AccountID == "" {
		return nil, ErrAccessTokenMissing
	}

	p, err := e.sessions.GetProjection(ctx, sc.AccountID)
	if err == nil {
		e.metricInc(MetricProjectionCacheHit)
		return p, nil
	}
	e.metricInc(MetricProjectionCacheMiss)

	p, found, err := e.loadProjection(ctx, sc.AccountID)
	if err != nil {
		return nil, infraError("account load", err)
	}
	if !found {
		return nil, ErrSessionNotFound
	}
	if err := e.sessions.SetProjection(ctx, p); err != nil {
		e.warn(ctx, "otpauth: projection cache write failed", "account_id", sc.AccountID, "error", err)
	}
	return p, nil
}

// CheckUsername describes the check username operation and its observable behavior.
//
// CheckUsername reports whether username is free, already the caller's own,
// or taken by another account.
func (e *Engine) CheckUsername(ctx context.Context, sc SessionContext, raw string) (UsernameAvailability, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	username, err := normalizeUsername(raw)
	if err != nil {
		return "", err
	}

	acc, err := e.accounts.FindByID(ctx, sc.AccountID)
	if err != nil {
		return "", e.storeError("account load", err)
	}
	if acc.Username == username {
		return UsernameCurrent, nil
	}

	taken, err := e.accounts.Exists(ctx, "", username)
	if err != nil {
		return "", infraError("username lookup", err)
	}
	if taken {
		return UsernameTaken, nil
	}
	return UsernameAvailable, nil
}

// UpdateUsername describes the update username operation and its observable behavior.
//
// UpdateUsername renames the caller's account. A name held by another account
// is ErrUsernameTaken. The projection cache is dropped so the next request
// sees the new name.
func (e *Engine) UpdateUsername(ctx context.Context, sc SessionContext, raw string) (*Projection, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	username, err := normalizeUsername(raw)
	if err != nil {
		return nil, err
	}

	acc, err := e.accounts.FindByID(ctx, sc.AccountID)
	if err != nil {
		return nil, e.storeError("account load", err)
	}
	if acc.Username == username {
		return acc.projection(), nil
	}

	if err := e.accounts.UpdateUsername(ctx, acc.ID, username); err != nil {
		if errors.Is(err, ErrStoreConflict) {
			e.emitAudit(ctx, EventUsernameUpdated, false, acc.ID, sc.SessionID, ErrUsernameTaken, nil)
			return nil, wrap(ErrUsernameTaken, err)
		}
		return nil, e.storeError("username update", err)
	}
	e.dropProjection(ctx, acc.ID)

	acc.Username = username
	e.emitAudit(ctx, EventUsernameUpdated, true, acc.ID, sc.SessionID, nil, nil)
	return acc.projection(), nil
}

// ListAccounts returns every account projection. Callers gate it on RoleAdmin.
func (e *Engine) ListAccounts(ctx context.Context) ([]Projection, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	accounts, err := e.accounts.List(ctx)
	if err != nil {
		return nil, infraError("account list", err)
	}
	out := make([]Projection, 0, len(accounts))
	for i := range accounts {
		out = append(out, *accounts[i].projection())
	}
	return out, nil
}

// UpdateRole describes the update role operation and its observable behavior.
//
// UpdateRole sets the role of accountID. An unknown role is ErrInvalidRole and
// an unknown account is ErrAccountNotFound. The projection cache is dropped so
// the account's next request carries the new role; its session stays valid.
func (e *Engine) UpdateRole(ctx context.Context, accountID, rawRole string) (*Projection, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	role, err := ParseRole(rawRole)
	if err != nil {
		return nil, err
	}
	if accountID == "" {
		return nil, ErrAccountNotFound
	}

	acc, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, e.storeError("account load", err)
	}
	if err := e.accounts.UpdateRole(ctx, acc.ID, role); err != nil {
		return nil, e.storeError("role update", err)
	}
	e.dropProjection(ctx, acc.ID)

	acc.Role = role
	e.emitAudit(ctx, EventRoleUpdated, true, acc.ID, "", nil, map[string]string{"role": string(role)})
	return acc.projection(), nil
}
