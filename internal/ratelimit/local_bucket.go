package ratelimit

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/smallbiznis/timeledger/internal/clock"
)

// LocalTokenBucket is the in-process counterpart of TokenBucket for single-replica
// deployments without Redis. Buckets idle for longer than their TTL are dropped.
type LocalTokenBucket struct {
	mu      sync.Mutex
	clock   clock.Clock
	buckets map[string]*localBucket
}

type localBucket struct {
	tokens float64
	ts     time.Time
	ttl    time.Duration
}

func NewLocalTokenBucket(c clock.Clock) *LocalTokenBucket {
	if c == nil {
		c = clock.SystemClock{}
	}
	return &LocalTokenBucket{
		clock:   c,
		buckets: make(map[string]*localBucket),
	}
}

func (t *LocalTokenBucket) Allow(_ context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	if key == "" {
		return nil, errors.New("rate limiter key is empty")
	}
	if rate <= 0 || burst <= 0 {
		return nil, errors.New("rate limiter rate and burst must be positive")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	t.evict(now)

	b, ok := t.buckets[key]
	if !ok {
		b = &localBucket{tokens: float64(burst), ts: now, ttl: bucketTTL(rate, burst)}
		t.buckets[key] = b
	} else {
		delta := now.Sub(b.ts).Seconds()
		if delta < 0 {
			delta = 0
		}
		b.tokens = math.Min(float64(burst), b.tokens+delta*rate)
		b.ts = now
	}

	res := &RateLimitResult{Limit: burst}
	if b.tokens >= 1 {
		b.tokens--
		res.Allowed = true
	} else {
		res.RetryAfter = time.Duration((1 - b.tokens) / rate * float64(time.Second))
	}
	res.Remaining = int(b.tokens)
	return res, nil
}

func (t *LocalTokenBucket) evict(now time.Time) {
	for key, b := range t.buckets {
		if now.Sub(b.ts) > b.ttl {
			delete(t.buckets, key)
		}
	}
}
