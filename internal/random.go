package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// OpaqueTokenSize is the raw entropy behind confirmation, CSRF and verification-session tokens.
const OpaqueTokenSize = 32

// NewOpaqueToken returns size random bytes hex-encoded.
func NewOpaqueToken(size int) (string, error) {
	if size <= 0 {
		return "", errors.New("invalid token size")
	}
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// NewSessionID mints a random v4 UUID string.
func NewSessionID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ValidSessionID reports whether s parses as a UUID.
func ValidSessionID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// ValidOpaqueToken reports whether s is a lowercase hex token of OpaqueTokenSize bytes.
func ValidOpaqueToken(s string) bool {
	if len(s) != OpaqueTokenSize*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// DigestCode returns the hex SHA-256 of code. OTPs are stored as digests, never in clear.
func DigestCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func NewOTP(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// IsDigits reports whether s is exactly n ASCII digits.
func IsDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
