// Package prometheus renders otpAuth metrics in the Prometheus text format.
//
// [NewPrometheusExporter] reads an [otpAuth.Engine] and exposes an
// [http.Handler] for /metrics. Counters are named otpauth_*_total; the single
// histogram is otpauth_authenticate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register with a global registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
