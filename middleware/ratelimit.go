package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrEthical07/otpAuth"
)

// RateLimitConfig sets the per-client token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	IdleTTL           time.Duration
}

// DefaultRateLimitConfig allows 10 requests per second with a burst of 20.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 10, Burst: 20, IdleTTL: 10 * time.Minute}
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds one token bucket per client IP. Buckets idle for longer than
// IdleTTL are dropped on the next sweep.
type Limiter struct {
	cfg       RateLimitConfig
	now       func() time.Time
	mu        sync.Mutex
	clients   map[string]*clientBucket
	lastSweep time.Time
}

// NewLimiter returns a Limiter for cfg.
func NewLimiter(cfg RateLimitConfig) *Limiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &Limiter{cfg: cfg, now: time.Now, clients: make(map[string]*clientBucket)}
}

// Reserve takes a token for key. It returns 0 when the request may proceed,
// otherwise how long the caller should wait.
func (l *Limiter) Reserve(key string) time.Duration {
	now := l.now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) > l.cfg.IdleTTL {
		for k, b := range l.clients {
			if now.Sub(b.lastSeen) > l.cfg.IdleTTL {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}
	b, ok := l.clients[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.clients[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	if b.limiter.AllowN(now, 1) {
		return 0
	}
	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return l.cfg.IdleTTL
	}
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	if wait <= 0 {
		wait = time.Second
	}
	return wait
}

// Len reports how many client buckets are tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// RateLimit rejects requests over the client's bucket with 429 and a
// Retry-After header.
func RateLimit(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if wait := l.Reserve(ClientIP(r)); wait > 0 {
				WriteError(w, &otpAuth.Error{
					Kind:       otpAuth.KindRateLimited,
					Code:       otpAuth.ErrTooManyRequests.Code,
					Message:    otpAuth.ErrTooManyRequests.Message,
					RetryAfter: wait,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
