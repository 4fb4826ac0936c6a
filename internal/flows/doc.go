// Package flows contains the orchestrators behind the engine's login, OTP,
// refresh and authenticate operations.
//
// Each Run* function accepts a typed dependency struct and returns a result
// carrying a failure kind instead of a public error. The engine maps failure
// kinds to its error taxonomy, metrics and audit events, so this package never
// needs to import otpAuth.
//
// # Login state machine
//
// [LoginState] makes the pre-session protocol explicit:
//
//	CREDENTIALS_SUBMITTED -> OTP_PENDING -> SESSION_ESTABLISHED
//
// Only OTP_PENDING verification sessions accept a code or a resend. Every
// state change goes through [Advance], which rejects transitions not listed in
// the table.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import otpAuth (to avoid import cycles).
//   - Perform I/O directly; all I/O goes through the dependency structs.
package flows
