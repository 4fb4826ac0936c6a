// Package stores provides Redis-backed, short-lived records for the
// registration and login flows: pending registrations, login OTPs,
// verification sessions and used single-use token ids.
//
// # Design
//
// Every record lives under a prefixed key with a TTL; expiry is the only
// garbage collection. Pending registrations are consumed with GETDEL so a
// confirmation token can succeed at most once. OTPs are stored as SHA-256
// digests and consumed by a DEL whose reply decides the single winner.
//
// # Architecture boundaries
//
// This package owns persistence only. It does NOT generate tokens or OTPs,
// enforce cooldowns, or make authentication decisions; those belong to
// internal/flows and the engine.
//
// # What this package must NOT do
//
//   - Import otpAuth or any sibling internal package.
//   - Log or persist plaintext OTPs.
package stores
