// Package client is the caller side of the otpAuth HTTP API.
//
// A [Coordinator] sends requests with a cookie jar, echoes the csrfToken
// cookie on state-changing methods, and recovers from expired credentials:
// a 401 triggers one shared refresh call, a 403 with a CSRF_* code triggers
// one shared CSRF rotation, and every request that failed meanwhile waits for
// that call and is replayed once. When refresh fails the session-end hook
// runs once per login.
//
// Tests use testify against httptest servers, including one backed by the
// real server package.
package client
