// Package jwt signs and verifies the bearer tokens otpAuth hands out: access,
// refresh, password-reset and email-verification tokens. Each purpose has its
// own key and TTL, and a token minted for one purpose never parses as another.
package jwt
