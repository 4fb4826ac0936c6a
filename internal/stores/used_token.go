package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrUsedTokenBackend = errors.New("used token backend unavailable")

// UsedTokenStore remembers the jti of single-use signed tokens until they
// would have expired anyway.
type UsedTokenStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewUsedTokenStore(redisClient redis.UniversalClient, prefix string) *UsedTokenStore {
	if prefix == "" {
		prefix = "reset_used"
	}
	return &UsedTokenStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *UsedTokenStore) key(id string) string {
	return s.prefix + ":" + id
}

// MarkUsed records id and reports whether this call was the first to do so.
func (s *UsedTokenStore) MarkUsed(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if id == "" {
		return false, errors.New("token id required")
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	first, err := s.redis.SetNX(ctx, s.key(id), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUsedTokenBackend, err)
	}
	return first, nil
}

// Release forgets id so the token can be presented again. Used when the work
// guarded by MarkUsed failed.
func (s *UsedTokenStore) Release(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUsedTokenBackend, err)
	}
	return nil
}
