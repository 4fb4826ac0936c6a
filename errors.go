package otpAuth

import (
	"errors"
	"net/http"
	"strconv"
	"time"
)

// Kind is the closed set of failure classes the engine reports. Each kind has
// a default HTTP status; mapping happens at the edge.
type Kind uint8

const (
	// KindValidation is malformed or rejected input (400).
	KindValidation Kind = iota + 1
	// KindAuthentication is a missing, invalid or superseded credential (401).
	KindAuthentication
	// KindAuthorization is a role or CSRF rejection (403).
	KindAuthorization
	// KindNotFound is an unknown target resource (404).
	KindNotFound
	// KindConflict is a duplicate account or username (409).
	KindConflict
	// KindRateLimited is a cooldown or attempt budget hit (429).
	KindRateLimited
	// KindInfrastructure is a store, database or mail failure (500).
	KindInfrastructure
)

// HTTPStatus returns the default status code for k.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindInfrastructure:
		return "infrastructure"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Error defines a public type used by otpAuth APIs.
//
// Every error returned by an Engine method is an *Error. Code is the stable
// machine-readable reason clients branch on; Message is safe to display.
// errors.Is matches on Kind and Code, so the exported sentinels below match
// instances carrying a cause or a retry hint. A sentinel with an empty Code
// matches every error of its Kind.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	RetryAfter time.Duration
	Status     int
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is an *Error of the same Kind and Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// HTTPStatus returns Status when set, otherwise the Kind default.
func (e *Error) HTTPStatus() int {
	if e == nil {
		return http.StatusInternalServerError
	}
	if e.Status != 0 {
		return e.Status
	}
	return e.Kind.HTTPStatus()
}

// AsError extracts the *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or KindInfrastructure for foreign errors.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return KindInfrastructure
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// wrap copies base and attaches cause.
func wrap(base *Error, cause error) *Error {
	e := *base
	e.Err = cause
	return &e
}

func withRetryAfter(base *Error, wait time.Duration, cause error) *Error {
	e := *base
	e.RetryAfter = wait
	e.Err = cause
	if wait > 0 {
		e.Message = base.Message + " Try again in " + strconv.Itoa(int((wait+time.Second-1)/time.Second)) + " seconds."
	}
	return &e
}

func validationError(message string) *Error {
	return newError(KindValidation, "", message)
}

func infraError(op string, cause error) *Error {
	e := wrap(ErrInfrastructure, cause)
	e.Message = ErrInfrastructure.Message
	if op != "" {
		e.Err = errors.Join(errors.New(op), cause)
	}
	return e
}

var (
	// ErrValidation matches every validation failure.
	ErrValidation = newError(KindValidation, "", "invalid request")
	// ErrInfrastructure matches every store, database and mail failure.
	ErrInfrastructure = newError(KindInfrastructure, "", "Something went wrong. Please try again later.")
	// ErrEngineNotReady is returned by a zero or closed Engine.
	ErrEngineNotReady = newError(KindInfrastructure, "ENGINE_NOT_READY", "authentication engine not initialized")

	// ErrAccountExists is returned by BeginRegistration for a taken email or username.
	ErrAccountExists = newError(KindConflict, "ACCOUNT_EXISTS", "An account with that email or username already exists.")
	// ErrUsernameTaken is returned by UpdateUsername; it maps to 422.
	ErrUsernameTaken = &Error{Kind: KindConflict, Code: "USERNAME_TAKEN", Message: "Username is already taken.", Status: http.StatusUnprocessableEntity}
	// ErrRegistrationTokenInvalid covers expired, unknown and already-used confirmation tokens.
	ErrRegistrationTokenInvalid = newError(KindValidation, "REGISTRATION_TOKEN_INVALID", "Invalid or expired registration link.")
	// ErrTooManyRequests is the generic cooldown rejection.
	ErrTooManyRequests = newError(KindRateLimited, "TOO_MANY_REQUESTS", "Too many requests.")

	// ErrInvalidCredentials is identical for unknown accounts and wrong passwords.
	ErrInvalidCredentials = newError(KindAuthentication, "INVALID_CREDENTIALS", "Invalid email/username or password.")
	// ErrVerificationSessionExpired means the v_s cookie or its record is gone.
	ErrVerificationSessionExpired = newError(KindAuthentication, "VERIFICATION_SESSION_EXPIRED", "Verification session expired. Please log in again.")
	// ErrOTPExpired means no code is pending for the account.
	ErrOTPExpired = newError(KindValidation, "OTP_EXPIRED", "OTP expired. Please request a new one.")
	// ErrInvalidOTP is a wrong code; the verification session stays usable.
	ErrInvalidOTP = newError(KindValidation, "INVALID_OTP", "Invalid OTP.")
	// ErrOTPAttemptsExceeded burns the pending code after too many wrong guesses.
	ErrOTPAttemptsExceeded = newError(KindRateLimited, "OTP_ATTEMPTS_EXCEEDED", "Too many invalid codes. Request a new OTP.")

	// ErrAccessTokenMissing is returned when no access token was presented.
	ErrAccessTokenMissing = newError(KindAuthentication, "ACCESS_TOKEN_MISSING", "Not logged in.")
	// ErrAccessTokenInvalid covers bad signatures, wrong purpose and expiry.
	ErrAccessTokenInvalid = newError(KindAuthentication, "ACCESS_TOKEN_INVALID", "Access token invalid or expired.")
	// ErrSessionNotFound means the account has no Active Session.
	ErrSessionNotFound = newError(KindAuthentication, "SESSION_NOT_FOUND", "Session not found. Please log in again.")
	// ErrSessionInvalidated means the session was superseded or revoked.
	ErrSessionInvalidated = newError(KindAuthentication, "SESSION_INVALIDATED", "Session superseded by another login.")
	// ErrRefreshTokenMissing is returned when no refresh token was presented.
	ErrRefreshTokenMissing = newError(KindAuthentication, "REFRESH_TOKEN_MISSING", "Refresh token missing.")
	// ErrRefreshTokenExpired is a well-signed refresh token past its expiry.
	ErrRefreshTokenExpired = newError(KindAuthentication, "REFRESH_TOKEN_EXPIRED", "Refresh token expired.")
	// ErrRefreshTokenInvalid is a malformed or badly signed refresh token.
	ErrRefreshTokenInvalid = newError(KindAuthentication, "REFRESH_TOKEN_INVALID", "Refresh token invalid.")

	// ErrCSRFTokenMissing means no CSRF header accompanied a state-changing request.
	ErrCSRFTokenMissing = newError(KindAuthorization, "CSRF_TOKEN_MISSING", "CSRF token missing.")
	// ErrCSRFTokenExpired means the server-side CSRF token is gone.
	ErrCSRFTokenExpired = newError(KindAuthorization, "CSRF_TOKEN_EXPIRED", "CSRF token expired.")
	// ErrCSRFTokenInvalid means the header does not match the stored token.
	ErrCSRFTokenInvalid = newError(KindAuthorization, "CSRF_TOKEN_INVALID", "CSRF token invalid.")
	// ErrForbidden is a role mismatch. It is never retried.
	ErrForbidden = newError(KindAuthorization, "FORBIDDEN", "You do not have permission to perform this action.")

	// ErrAccountNotFound is returned by admin operations on an unknown account.
	ErrAccountNotFound = newError(KindNotFound, "ACCOUNT_NOT_FOUND", "Account not found.")
	// ErrInvalidRole rejects a role outside the enumeration.
	ErrInvalidRole = newError(KindValidation, "INVALID_ROLE", "Role must be user or admin.")
	// ErrPasswordPolicy wraps a rejection from the configured PasswordValidator.
	ErrPasswordPolicy = newError(KindValidation, "PASSWORD_POLICY", "Password does not meet the policy.")
	// ErrCurrentPasswordInvalid is returned by UpdatePassword.
	ErrCurrentPasswordInvalid = newError(KindValidation, "CURRENT_PASSWORD_INVALID", "Current password is incorrect.")
	// ErrResetTokenInvalid covers expired, forged and already-used reset links.
	ErrResetTokenInvalid = newError(KindValidation, "RESET_TOKEN_INVALID", "Invalid or expired password reset link.")
	// ErrEmailVerificationTokenInvalid covers expired and forged verification links.
	ErrEmailVerificationTokenInvalid = newError(KindValidation, "EMAIL_VERIFICATION_TOKEN_INVALID", "Invalid or expired verification link.")
	// ErrEmailAlreadyVerified is returned by RequestEmailVerification.
	ErrEmailAlreadyVerified = newError(KindValidation, "EMAIL_ALREADY_VERIFIED", "Email is already verified.")
)
