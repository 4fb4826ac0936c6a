package internaldefs

import (
	"github.com/MrEthical07/otpAuth"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   otpAuth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID   otpAuth.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: otpAuth.MetricRegistrationStarted, Name: "otpauth_registration_started_total", Help: "Pending registrations created and mailed."},
	{ID: otpAuth.MetricRegistrationConfirmed, Name: "otpauth_registration_confirmed_total", Help: "Registrations confirmed into accounts."},
	{ID: otpAuth.MetricRegistrationRejected, Name: "otpauth_registration_rejected_total", Help: "Registrations rejected as duplicate or invalid."},
	{ID: otpAuth.MetricRegistrationRateLimited, Name: "otpauth_registration_rate_limited_total", Help: "Registrations rejected by cooldown."},
	{ID: otpAuth.MetricLoginOTPSent, Name: "otpauth_login_otp_sent_total", Help: "Password checks that mailed a login code."},
	{ID: otpAuth.MetricLoginFailure, Name: "otpauth_login_failure_total", Help: "Failed password checks."},
	{ID: otpAuth.MetricLoginRateLimited, Name: "otpauth_login_rate_limited_total", Help: "Logins rejected by cooldown."},
	{ID: otpAuth.MetricOTPVerified, Name: "otpauth_otp_verified_total", Help: "Login codes accepted."},
	{ID: otpAuth.MetricOTPFailure, Name: "otpauth_otp_failure_total", Help: "Login codes rejected."},
	{ID: otpAuth.MetricOTPAttemptsExceeded, Name: "otpauth_otp_attempts_exceeded_total", Help: "Login codes burned after too many wrong guesses."},
	{ID: otpAuth.MetricOTPResent, Name: "otpauth_otp_resent_total", Help: "Login codes re-sent."},
	{ID: otpAuth.MetricSessionCreated, Name: "otpauth_session_created_total", Help: "Sessions established."},
	{ID: otpAuth.MetricSessionSuperseded, Name: "otpauth_session_superseded_total", Help: "Sessions evicted by a newer login."},
	{ID: otpAuth.MetricRefreshSuccess, Name: "otpauth_refresh_success_total", Help: "Access tokens minted by refresh."},
	{ID: otpAuth.MetricRefreshFailure, Name: "otpauth_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: otpAuth.MetricSessionInvalidated, Name: "otpauth_session_invalidated_total", Help: "Requests presenting a superseded session."},
	{ID: otpAuth.MetricAuthenticateSuccess, Name: "otpauth_authenticate_success_total", Help: "Authenticated requests."},
	{ID: otpAuth.MetricAuthenticateFailure, Name: "otpauth_authenticate_failure_total", Help: "Rejected access tokens."},
	{ID: otpAuth.MetricProjectionCacheHit, Name: "otpauth_projection_cache_hit_total", Help: "Account projections served from cache."},
	{ID: otpAuth.MetricProjectionCacheMiss, Name: "otpauth_projection_cache_miss_total", Help: "Account projections loaded from the account store."},
	{ID: otpAuth.MetricLogout, Name: "otpauth_logout_total", Help: "Logout operations."},
	{ID: otpAuth.MetricCSRFRotated, Name: "otpauth_csrf_rotated_total", Help: "CSRF token rotations."},
	{ID: otpAuth.MetricCSRFRejected, Name: "otpauth_csrf_rejected_total", Help: "Requests rejected by the CSRF check."},
	{ID: otpAuth.MetricPasswordResetRequest, Name: "otpauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: otpAuth.MetricPasswordResetSuccess, Name: "otpauth_password_reset_success_total", Help: "Completed password resets."},
	{ID: otpAuth.MetricPasswordResetFailure, Name: "otpauth_password_reset_failure_total", Help: "Rejected password reset tokens."},
	{ID: otpAuth.MetricPasswordChanged, Name: "otpauth_password_changed_total", Help: "Password updates by signed-in accounts."},
	{ID: otpAuth.MetricEmailVerificationSuccess, Name: "otpauth_email_verification_success_total", Help: "Verified email addresses."},
	{ID: otpAuth.MetricMailFailure, Name: "otpauth_mail_failure_total", Help: "Outgoing mail that failed to send."},
}

// HistogramDefs lists every latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: otpAuth.MetricAuthenticateLatency, Name: "otpauth_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// HistogramBounds are the Prometheus le labels, matching the engine buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are instrument-name-safe forms of HistogramBounds.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
