// Package accountstore holds the durable [otpAuth.AccountStore]
// implementations: memory for tests and single-process development, postgres
// for deployments.
//
// Their tests use testify, and postgres runs its queries against go-sqlmock.
package accountstore
