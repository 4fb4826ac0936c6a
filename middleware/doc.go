// Package middleware adapts otpAuth.Engine to net/http.
//
// # Guards
//
//   - [Guard] authenticates the access cookie (or a Bearer header) and puts the
//     [otpAuth.SessionContext] in the request context.
//   - [RequireCSRF] enforces the double-submit header on state-changing methods.
//   - [RequireRole] rejects sessions whose role is not in the allowed set.
//
// Supporting pieces: [RequestContext] attaches client IP and user agent for the
// engine's cooldowns and audit records, [RateLimit] applies per-client token
// buckets, [Logger] logs each request with slog, and [Cookies] owns the cookie
// names, lifetimes and attributes. [WriteError] renders the error envelope.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT implement
// authentication logic itself; every decision is delegated to the Engine.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Access Redis.
//   - Decide routes. The server package wires guards to paths.
//
// # Tests
//
// HTTP-facing packages (middleware, server, client) assert with testify; the
// engine and its internal packages use plain testing.
package middleware
