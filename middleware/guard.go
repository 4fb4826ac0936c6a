package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/otpAuth"
)

// Authenticator validates an access token. *otpAuth.Engine implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*otpAuth.SessionContext, error)
}

type sessionContextKey struct{}

// SessionFromContext returns the session put there by [Guard].
func SessionFromContext(ctx context.Context) (otpAuth.SessionContext, bool) {
	sc, ok := ctx.Value(sessionContextKey{}).(otpAuth.SessionContext)
	return sc, ok
}

// WithSession attaches sc to ctx.
func WithSession(ctx context.Context, sc otpAuth.SessionContext) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sc)
}

// Guard authenticates the access token from the accessToken cookie, falling
// back to an Authorization Bearer header. A missing or superseded session
// clears the auth cookies; an expired access token keeps them so the refresh
// cookie can still be exchanged.
func Guard(auth Authenticator, cookies Cookies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				WriteError(w, otpAuth.ErrEngineNotReady)
				return
			}

			sc, err := auth.Authenticate(r.Context(), AccessToken(r))
			if err != nil {
				if sessionGone(err) {
					cookies.ClearAuth(w)
				}
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), *sc)))
		})
	}
}

func sessionGone(err error) bool {
	return errors.Is(err, otpAuth.ErrSessionInvalidated) || errors.Is(err, otpAuth.ErrSessionNotFound)
}

// AccessToken returns the presented access token, cookie first.
func AccessToken(r *http.Request) string {
	if token := CookieValue(r, AccessCookie); token != "" {
		return token
	}
	token, _ := bearerToken(r.Header.Get("Authorization"))
	return token
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
