// Package rate implements a fixed-window request counter in Redis.
// Auth-sensitive routes get far tighter budgets than standard traffic
// because credential-guessing concentrates on them.
package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable wraps Redis transport failures. The middleware
// resolves it fail-open through the auth failure policy table.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Class is a named rate limit policy.
type Class struct {
	Name   string
	Max    int
	Window time.Duration
}

// Result describes one admission decision, including the header values
// set on every response regardless of outcome.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts requests per (client, class, window index) key.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// New creates a Limiter. An empty prefix selects "rl:".
func New(client redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &Limiter{redis: client, prefix: prefix, now: time.Now}
}

// WithClock overrides the time source. Test hook.
func (l *Limiter) WithClock(fn func() time.Time) *Limiter {
	if fn != nil {
		l.now = fn
	}
	return l
}

// Allow increments the client's counter for the current window and
// compares it to the class threshold. The counter key carries the
// window index, so a request in the next window starts from a fresh
// count; TTL equals the window length to reclaim old counters.
func (l *Limiter) Allow(ctx context.Context, clientKey string, class Class) (Result, error) {
	now := l.now()
	windowIndex := now.Unix() / int64(class.Window/time.Second)
	key := l.prefix + class.Name + ":" + clientKey + ":" + strconv.FormatInt(windowIndex, 10)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, class.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	remaining := class.Max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	windowEnd := time.Unix((windowIndex+1)*int64(class.Window/time.Second), 0)
	return Result{
		Allowed:    count <= int64(class.Max),
		Limit:      class.Max,
		Remaining:  remaining,
		RetryAfter: windowEnd.Sub(now),
	}, nil
}
