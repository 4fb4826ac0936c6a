package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestCooldownBlocksUntilExpiry(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := New(rdb)
	ctx := context.Background()

	if _, err := l.Cooldown(ctx, "k", time.Minute); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	wait, err := l.Cooldown(ctx, "k", time.Minute)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if wait <= 0 || wait > time.Minute {
		t.Fatalf("unexpected wait %v", wait)
	}

	mr.FastForward(time.Minute + time.Second)
	if _, err := l.Cooldown(ctx, "k", time.Minute); err != nil {
		t.Fatalf("claim after expiry: %v", err)
	}
}

func TestHitBudget(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := New(rdb)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := l.Hit(ctx, "c", 3, time.Minute); err != nil {
			t.Fatalf("hit %d: %v", i, err)
		}
	}
	if _, err := l.Hit(ctx, "c", 3, time.Minute); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected budget exhausted, got %v", err)
	}
	if err := l.Release(ctx, "c"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := l.Hit(ctx, "c", 3, time.Minute); err != nil {
		t.Fatalf("hit after release: %v", err)
	}
}

func TestNilLimiterAllows(t *testing.T) {
	var l *Limiter
	if _, err := l.Cooldown(context.Background(), "k", time.Minute); err != nil {
		t.Fatalf("nil limiter: %v", err)
	}
}

func TestRedisDownIsWrapped(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := New(rdb)
	mr.Close()

	if _, err := l.Cooldown(context.Background(), "k", time.Minute); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
