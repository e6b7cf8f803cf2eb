package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/timeledger/internal/clock"
	"github.com/smallbiznis/timeledger/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNilHeartbeatLimiterAllows(t *testing.T) {
	l := NewHeartbeatLimiter(config.Config{}, nil, nil, zap.NewNop())
	assert.Nil(t, l)
	assert.NoError(t, l.Allow(context.Background(), "1", "2"))
}

func TestHeartbeatLimiterFallsBackToLocalBucket(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC))
	cfg := config.Config{Timer: config.TimerConfig{HeartbeatRate: 1, HeartbeatBurst: 2}}

	l := NewHeartbeatLimiter(cfg, nil, fake, zap.NewNop())
	require.NotNil(t, l)
	ctx := context.Background()

	assert.NoError(t, l.Allow(ctx, "1", "2"))
	assert.NoError(t, l.Allow(ctx, "1", "2"))
	assert.ErrorIs(t, l.Allow(ctx, "1", "2"), ErrRateLimited)

	// Buckets are per user.
	assert.NoError(t, l.Allow(ctx, "1", "3"))

	fake.Advance(time.Second)
	assert.NoError(t, l.Allow(ctx, "1", "2"))
	assert.ErrorIs(t, l.Allow(ctx, "1", "2"), ErrRateLimited)
}

func TestLocalTokenBucketRefillCapsAtBurst(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC))
	b := NewLocalTokenBucket(fake)
	ctx := context.Background()

	res, err := b.Allow(ctx, "k", 2, 3)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)

	fake.Advance(10 * time.Second)
	for i := 0; i < 3; i++ {
		res, err = b.Allow(ctx, "k", 2, 3)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err = b.Allow(ctx, "k", 2, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 500*time.Millisecond, res.RetryAfter)
}

func TestLocalTokenBucketRejectsBadInput(t *testing.T) {
	b := NewLocalTokenBucket(nil)
	_, err := b.Allow(context.Background(), "", 1, 1)
	assert.Error(t, err)
	_, err = b.Allow(context.Background(), "k", 0, 1)
	assert.Error(t, err)
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 20*time.Second, bucketTTL(1, 10))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
}

func TestScriptValueParsing(t *testing.T) {
	assert.Equal(t, int64(1), toInt(int64(1)))
	assert.Equal(t, 0.5, toFloat("0.5"))
	assert.Equal(t, 3.0, toFloat(int64(3)))
	assert.Equal(t, 0.0, toFloat(nil))
}
