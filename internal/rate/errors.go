package rate

import "errors"

var (
	// ErrRateLimited is returned when a cooldown marker or window budget is already spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps transport failures from the backing store.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
