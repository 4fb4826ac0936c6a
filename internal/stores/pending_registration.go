package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrPendingRegistrationNotFound = errors.New("pending registration not found")
	ErrPendingRegistrationBackend  = errors.New("pending registration backend unavailable")
)

// PendingRegistration is a signup waiting for its mailed confirmation link.
type PendingRegistration struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
	CreatedAt    int64  `json:"created_at"`
}

type PendingRegistrationStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPendingRegistrationStore(redisClient redis.UniversalClient, prefix string) *PendingRegistrationStore {
	if prefix == "" {
		prefix = "verify"
	}
	return &PendingRegistrationStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *PendingRegistrationStore) key(token string) string {
	return s.prefix + ":" + token
}

func (s *PendingRegistrationStore) Save(
	ctx context.Context,
	token string,
	record *PendingRegistration,
	ttl time.Duration,
) error {
	if record == nil {
		return errors.New("nil pending registration")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(token), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingRegistrationBackend, err)
	}
	return nil
}

// Consume reads and deletes the record in one round trip.
func (s *PendingRegistrationStore) Consume(ctx context.Context, token string) (*PendingRegistration, error) {
	data, err := s.redis.GetDel(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPendingRegistrationNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPendingRegistrationBackend, err)
	}

	var record PendingRegistration
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode pending registration: %w", err)
	}
	return &record, nil
}
