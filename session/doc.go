// Package session owns the Redis state behind an established login: the
// single Active Session pointer per account, the Session Record, the stored
// refresh and CSRF tokens, and the cached account projection.
//
// # Keys
//
//	active_session:<accountId>  session id of the one live session
//	session:<sessionId>         binary Session Record (createdAt, lastActivity)
//	refresh:<accountId>         refresh token issued with the live session
//	csrf:<accountId>            double-submit CSRF token
//	user:<accountId>            JSON account projection
//
// Multi-key changes (establish, revoke, logout, touch) run as Lua scripts so a
// concurrent request sees either the old session or the new one, never a mix.
// Refresh validation reads the Active Session and refresh token with one MGET.
//
// # What this package must NOT do
//
//   - Import otpAuth or jwt (no upward imports).
//   - Decide authentication outcomes; it reports what Redis holds.
package session
