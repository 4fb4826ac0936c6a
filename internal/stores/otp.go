package stores

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrOTPNotFound = errors.New("otp not found")
	ErrOTPMismatch = errors.New("otp mismatch")
	ErrOTPBackend  = errors.New("otp backend unavailable")
)

// OTPStore keeps one digest per email. Put overwrites, so only the latest
// code is ever valid.
type OTPStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewOTPStore(redisClient redis.UniversalClient, prefix string) *OTPStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &OTPStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *OTPStore) key(email string) string {
	return s.prefix + ":" + email
}

func (s *OTPStore) Put(ctx context.Context, email, digest string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(email), digest, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPBackend, err)
	}
	return nil
}

// Consume checks digest against the stored value and deletes it on match.
// A mismatch leaves the record in place. When two callers race with the
// correct code only the one whose DEL removed the key wins.
func (s *OTPStore) Consume(ctx context.Context, email, digest string) error {
	key := s.key(email)
	stored, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrOTPNotFound
		}
		return fmt.Errorf("%w: %v", ErrOTPBackend, err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(digest)) != 1 {
		return ErrOTPMismatch
	}

	n, err := s.redis.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOTPBackend, err)
	}
	if n == 0 {
		return ErrOTPNotFound
	}
	return nil
}

func (s *OTPStore) Delete(ctx context.Context, email string) error {
	if err := s.redis.Del(ctx, s.key(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPBackend, err)
	}
	return nil
}
