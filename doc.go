// Package otpAuth is a credential-and-session authority: signup confirmed by a
// mailed link, password login gated by a mailed one-time code, a single active
// session per account, access/refresh/CSRF tokens, and revocation on logout
// and password reset.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// otpAuth is the public surface. It exposes [Engine], [Builder], [Config], [Error] and the
// value types returned by Engine methods. Flow orchestration, ephemeral record encoding,
// rate limiting and audit dispatch live under internal/ and are never exported.
// HTTP concerns (cookies, routes, status mapping) belong to the server and middleware
// packages; the client package holds the retry coordinator for callers.
//
// # State
//
// All short-lived state (pending registrations, OTP digests, verification sessions,
// active sessions, refresh and CSRF tokens, cached projections) lives in Redis with TTLs.
// Durable accounts live behind [AccountStore]. Nothing is swept; expiry is the only
// garbage collection.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Read configuration from the environment. Callers pass a [Config].
//   - Import any sub-package that re-imports otpAuth (no import cycles).
package otpAuth
