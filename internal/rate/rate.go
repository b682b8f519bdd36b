// Package rate provides the fixed-window limiter guarding the OTP
// endpoints. Throttles here protect the mobile-auth channel from abuse; the
// OTP resend cooldown itself lives in the otp service.
package rate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// RedisLimiter: simple fixed window (INCR + EXPIRE).
type RedisLimiter struct {
	Client *rdb.Client
	Prefix string
	Max    int64
	Window time.Duration
}

func NewRedisLimiter(client *rdb.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{Client: client, Prefix: prefix, Max: int64(max), Window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now().UTC()
	winStart := now.Truncate(l.Window)
	redisKey := fmt.Sprintf("%s%s:%d", l.Prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())

	incr := l.Client.Incr(ctx, redisKey)
	if err := incr.Err(); err != nil {
		return Result{}, err
	}

	if incr.Val() == 1 {
		_ = l.Client.Expire(ctx, redisKey, l.Window).Err()
	}

	hits := incr.Val()
	if hits > l.Max {
		return Result{Allowed: false, RetryAfter: winStart.Add(l.Window).Sub(now)}, nil
	}
	return Result{Allowed: true, Remaining: l.Max - hits}, nil
}

// MemoryLimiter mirrors the redis semantics in-process for dev and tests.
type MemoryLimiter struct {
	Max    int64
	Window time.Duration

	mu   sync.Mutex
	hits map[string]int64
	wins map[string]time.Time
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		Max:    int64(max),
		Window: window,
		hits:   map[string]int64{},
		wins:   map[string]time.Time{},
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := time.Now().UTC()
	winStart := now.Truncate(l.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.wins[key] != winStart {
		l.wins[key] = winStart
		l.hits[key] = 0
	}
	l.hits[key]++

	if l.hits[key] > l.Max {
		return Result{Allowed: false, RetryAfter: winStart.Add(l.Window).Sub(now)}, nil
	}
	return Result{Allowed: true, Remaining: l.Max - l.hits[key]}, nil
}
