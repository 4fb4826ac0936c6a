package otpAuth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/MrEthical07/otpAuth/internal"
	"github.com/MrEthical07/otpAuth/session"
)

// CSRFHeaderNames are the request headers checked, in order, for the echoed token.
var CSRFHeaderNames = []string{"X-CSRF-Token", "X-XSRF-Token", "CSRF-Token"}

// CSRFExempt reports whether method is exempt from the double-submit check.
func CSRFExempt(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// VerifyCSRF describes the verify csrf operation and its observable behavior.
//
// VerifyCSRF passes GET, HEAD and OPTIONS unconditionally. For any other
// method it requires headerValue to equal the account's stored CSRF token:
// an empty header is ErrCSRFTokenMissing, an absent stored token is
// ErrCSRFTokenExpired and a mismatch is ErrCSRFTokenInvalid.
func (e *Engine) VerifyCSRF(ctx context.Context, accountID, method, headerValue string) error {
	if CSRFExempt(method) {
		return nil
	}
	if err := e.ready(); err != nil {
		return err
	}

	var rejection *Error
	if headerValue == "" {
		rejection = ErrCSRFTokenMissing
	} else {
		stored, err := e.sessions.GetCSRF(ctx, accountID)
		switch {
		case errors.Is(err, session.ErrNotFound):
			rejection = ErrCSRFTokenExpired
		case err != nil:
			return infraError("csrf lookup", err)
		case subtle.ConstantTimeCompare([]byte(stored), []byte(headerValue)) != 1:
			rejection = ErrCSRFTokenInvalid
		}
	}

	if rejection != nil {
		e.metricInc(MetricCSRFRejected)
		e.emitAudit(ctx, EventCSRFRejected, false, accountID, "", rejection, map[string]string{"method": method})
		return rejection
	}
	return nil
}

// RotateCSRF describes the rotate csrf operation and its observable behavior.
//
// RotateCSRF overwrites the account's CSRF token with a fresh 32-byte hex
// value and a fresh TTL and returns it.
func (e *Engine) RotateCSRF(ctx context.Context, accountID string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	if accountID == "" {
		return "", ErrSessionNotFound
	}
	token, err := internal.NewOpaqueToken(internal.OpaqueTokenSize)
	if err != nil {
		return "", infraError("csrf token", err)
	}
	if err := e.sessions.SetCSRF(ctx, accountID, token); err != nil {
		return "", infraError("csrf store", err)
	}

	e.metricInc(MetricCSRFRotated)
	e.emitAudit(ctx, EventCSRFRotated, true, accountID, "", nil, nil)
	return token, nil
}
