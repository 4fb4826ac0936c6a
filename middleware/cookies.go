package middleware

import (
	"net/http"
	"time"

	"github.com/MrEthical07/otpAuth"
)

// Cookie names shared with browser clients.
const (
	AccessCookie       = "accessToken"
	RefreshCookie      = "refreshToken"
	CSRFCookie         = "csrfToken"
	VerificationCookie = "v_s"
)

// Cookies writes and clears the auth cookies. All cookies use path "/" and
// SameSite=Lax. Only csrfToken is readable by scripts.
type Cookies struct {
	Secure    bool
	Domain    string
	Lifetimes otpAuth.TokenLifetimes
}

// NewCookies returns cookie settings using the engine's token lifetimes.
func NewCookies(engine *otpAuth.Engine, secure bool, domain string) Cookies {
	return Cookies{Secure: secure, Domain: domain, Lifetimes: engine.Lifetimes()}
}

// SetSession writes access, refresh and CSRF cookies and drops the
// verification session cookie.
func (c Cookies) SetSession(w http.ResponseWriter, s *otpAuth.EstablishedSession) {
	c.SetAccess(w, s.AccessToken)
	c.set(w, RefreshCookie, s.RefreshToken, c.Lifetimes.Refresh, true)
	c.SetCSRF(w, s.CSRFToken)
	c.ClearVerification(w)
}

// SetAccess writes the access token cookie.
func (c Cookies) SetAccess(w http.ResponseWriter, token string) {
	c.set(w, AccessCookie, token, c.Lifetimes.Access, true)
}

// SetCSRF writes the script-readable CSRF cookie.
func (c Cookies) SetCSRF(w http.ResponseWriter, token string) {
	c.set(w, CSRFCookie, token, c.Lifetimes.CSRF, false)
}

// SetVerification writes the v_s cookie that carries the verification session id.
func (c Cookies) SetVerification(w http.ResponseWriter, id string) {
	c.set(w, VerificationCookie, id, c.Lifetimes.VerificationSession, true)
}

// ClearVerification expires the v_s cookie.
func (c Cookies) ClearVerification(w http.ResponseWriter) {
	c.clear(w, VerificationCookie, true)
}

// ClearAuth expires the access, refresh and CSRF cookies.
func (c Cookies) ClearAuth(w http.ResponseWriter) {
	c.clear(w, AccessCookie, true)
	c.clear(w, RefreshCookie, true)
	c.clear(w, CSRFCookie, false)
}

func (c Cookies) set(w http.ResponseWriter, name, value string, ttl time.Duration, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   int(ttl / time.Second),
		HttpOnly: httpOnly,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c Cookies) clear(w http.ResponseWriter, name string, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   -1,
		HttpOnly: httpOnly,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// CookieValue returns the named cookie's value or "".
func CookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
