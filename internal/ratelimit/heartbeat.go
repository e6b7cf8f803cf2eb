package ratelimit

import (
	"context"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/timeledger/internal/clock"
	"github.com/smallbiznis/timeledger/internal/config"
	"go.uber.org/zap"
)

const keyHeartbeat = "timeledger:heartbeat:%s:%s"

// ErrRateLimited is returned when a caller exceeds its heartbeat budget.
var ErrRateLimited = errors.New("rate_limited")

type bucket interface {
	Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error)
}

// HeartbeatLimiter bounds how often one user can post timer heartbeats.
// A nil limiter allows everything.
type HeartbeatLimiter struct {
	bucket bucket
	rate   float64
	burst  int
	log    *zap.Logger
}

// NewHeartbeatLimiter shares buckets through Redis when a client is configured and
// keeps them in process otherwise. A non-positive rate or burst disables limiting.
func NewHeartbeatLimiter(cfg config.Config, client *redis.Client, c clock.Clock, log *zap.Logger) *HeartbeatLimiter {
	if cfg.Timer.HeartbeatRate <= 0 || cfg.Timer.HeartbeatBurst <= 0 {
		return nil
	}
	var b bucket = NewLocalTokenBucket(c)
	if client != nil {
		b = NewTokenBucket(client)
	}
	return &HeartbeatLimiter{
		bucket: b,
		rate:   cfg.Timer.HeartbeatRate,
		burst:  cfg.Timer.HeartbeatBurst,
		log:    log.Named("ratelimit.heartbeat"),
	}
}

// Allow fails open when Redis errors: a lost heartbeat only weakens idle detection.
func (l *HeartbeatLimiter) Allow(ctx context.Context, orgID, userID string) error {
	if l == nil {
		return nil
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyHeartbeat, orgID, userID), l.rate, l.burst)
	if err != nil {
		l.log.Warn("heartbeat rate limit check failed", zap.Error(err))
		return nil
	}
	if !res.Allowed {
		return ErrRateLimited
	}
	return nil
}
