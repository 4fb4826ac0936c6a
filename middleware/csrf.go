package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/otpAuth"
)

// CSRFVerifier checks a double-submit token. *otpAuth.Engine implements it.
type CSRFVerifier interface {
	VerifyCSRF(ctx context.Context, accountID, method, headerValue string) error
}

// RequireCSRF enforces the CSRF header on non-safe methods. It must run after
// [Guard].
func RequireCSRF(v CSRFVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if otpAuth.CSRFExempt(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			sc, ok := SessionFromContext(r.Context())
			if !ok {
				WriteError(w, otpAuth.ErrAccessTokenMissing)
				return
			}
			if err := v.VerifyCSRF(r.Context(), sc.AccountID, r.Method, CSRFHeader(r)); err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CSRFHeader returns the first non-empty header among otpAuth.CSRFHeaderNames.
func CSRFHeader(r *http.Request) string {
	for _, name := range otpAuth.CSRFHeaderNames {
		if v := r.Header.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// RequireRole rejects sessions whose role is not one of roles. It must run
// after [Guard].
func RequireRole(roles ...otpAuth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc, ok := SessionFromContext(r.Context())
			if !ok {
				WriteError(w, otpAuth.ErrAccessTokenMissing)
				return
			}
			for _, role := range roles {
				if sc.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			WriteError(w, otpAuth.ErrForbidden)
		})
	}
}
