// Package limiters maps each throttled flow onto the internal/rate primitives.
//
// # Limiters
//
//   - Registration: one attempt per (client IP, email) per cooldown window.
//   - Login: one OTP dispatch per (client IP, email) per cooldown window.
//   - Resend: one OTP resend per email per cooldown window.
//   - PasswordReset: one reset mail per (client IP, email) per cooldown window.
//   - OTPAttempts: bounded wrong-code budget per verification session.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # What this package must NOT do
//
//   - Import otpAuth or any sibling internal package except internal/rate.
//   - Decide consequences; the engine maps refusals to errors.
package limiters
