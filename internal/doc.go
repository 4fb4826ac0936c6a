// Package internal contains helper utilities that are private to otpAuth:
// opaque token, session id and OTP generation.
//
// # Sub-packages
//
//   - flows: flow orchestrators (login state machine, OTP verification, refresh, authenticate)
//   - limiters: Redis cooldown markers for registration, login, resend and reset
//   - stores: Redis-backed ephemeral records (pending registration, OTP, verification session)
//   - rate: SET NX EX cooldown primitive used by limiters
//   - audit: asynchronous audit event dispatcher and sinks
//   - metrics: lock-free counters and the latency histogram
//   - security: configuration posture report
//
// # What this package must NOT do
//
//   - Export types that appear in the public otpAuth API.
//   - Be imported by any package outside the otpAuth module.
package internal
