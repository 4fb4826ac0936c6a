// Package server mounts the otpAuth HTTP API on a Go 1.22 ServeMux.
//
// Every route lives under /api except the operational /healthz and /metrics.
// Handlers decode JSON, call one Engine method, set or clear cookies through
// [middleware.Cookies] and render failures with [middleware.WriteError].
// Error mapping to HTTP status happens only here and in middleware.
//
// Tests run the full router against httptest and miniredis and assert with
// testify, unlike the engine packages, which use plain testing.
package server
