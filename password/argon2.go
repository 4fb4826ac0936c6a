package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	maxPassBytes          = 1024
	algorithmID           = "argon2id"
)

var (
	// ErrEmptyPassword is returned by Hash for a zero-length input.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrPasswordTooLong bounds the CPU an attacker can spend per request.
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	// ErrMalformedHash is returned for anything that is not an argon2id PHC string.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Config holds Argon2id cost parameters.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns the production cost parameters (64 MiB, t=3, p=2).
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2 is safe for concurrent use.
type Argon2 struct {
	config Config
}

type phc struct {
	params Config
	salt   []byte
	hash   []byte
}

// NewArgon2 validates cfg against the minimum cost floor.
func NewArgon2(cfg Config) (*Argon2, error) {
	switch {
	case cfg.Memory < minMemoryKB:
		return nil, errors.New("password memory must be >= 8192 KB")
	case cfg.Time < minTimeCost:
		return nil, errors.New("password time must be >= 1")
	case cfg.Parallelism < minParallelism:
		return nil, errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return nil, errors.New("password salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return nil, errors.New("password key length must be >= 16")
	}
	return &Argon2{config: cfg}, nil
}

// Hash derives a PHC-encoded hash with a fresh random salt.
func (a *Argon2) Hash(password string) (string, error) {
	if err := checkInput(password); err != nil {
		return "", err
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the hash with the stored parameters and compares in constant time.
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	if len(password) > maxPassBytes {
		return false, ErrPasswordTooLong
	}
	parsed, err := decode(encoded)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey(
		[]byte(password),
		parsed.salt,
		parsed.params.Time,
		parsed.params.Memory,
		parsed.params.Parallelism,
		parsed.params.KeyLength,
	)
	return subtle.ConstantTimeCompare(key, parsed.hash) == 1, nil
}

// NeedsUpgrade reports whether encoded was produced with weaker parameters.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	parsed, err := decode(encoded)
	if err != nil {
		return false, err
	}
	p := parsed.params
	return a.config.Memory > p.Memory ||
		a.config.Time > p.Time ||
		a.config.Parallelism > p.Parallelism ||
		a.config.KeyLength != p.KeyLength, nil
}

// IsEncoded reports whether s looks like a hash this package produced.
func IsEncoded(s string) bool {
	_, err := decode(s)
	return err == nil
}

func checkInput(password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if len(password) > maxPassBytes {
		return ErrPasswordTooLong
	}
	return nil
}

func decode(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported version", ErrMalformedHash)
	}

	var (
		params      Config
		parallelism uint32
	)
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Time, &parallelism); err != nil {
		return nil, fmt.Errorf("%w: parameters", ErrMalformedHash)
	}
	if params.Memory < minMemoryKB || params.Time < minTimeCost || parallelism < uint32(minParallelism) || parallelism > 255 {
		return nil, fmt.Errorf("%w: parameters out of range", ErrMalformedHash)
	}
	params.Parallelism = uint8(parallelism)

	salt, err := decodeSegment(parts[4])
	if err != nil || len(salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	hash, err := decodeSegment(parts[5])
	if err != nil || len(hash) == 0 {
		return nil, fmt.Errorf("%w: hash", ErrMalformedHash)
	}
	params.SaltLength = uint32(len(salt))
	params.KeyLength = uint32(len(hash))

	return &phc{params: params, salt: salt, hash: hash}, nil
}

// decodeSegment accepts padded and unpadded base64.
func decodeSegment(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
