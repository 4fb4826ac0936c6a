// Package rate holds the Redis primitives behind every throttle in otpAuth:
// a one-shot cooldown marker (SET NX with expiry) and a fixed-window counter
// (INCR, EXPIRE on first hit).
//
// Both primitives report how long the caller must wait, so the edge can turn
// a refusal into a human-readable hint and a Retry-After header.
package rate
