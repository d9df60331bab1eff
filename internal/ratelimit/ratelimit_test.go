package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toddfishman/meetini/internal/config"
)

func TestDisabledWithoutRedis(t *testing.T) {
	ctx := context.Background()

	locker := NewLocker(nil)
	assert.False(t, locker.Enabled())
	_, ok, err := locker.Acquire(ctx, "k", time.Minute)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrLockNotConfigured)

	limiter := NewLinkLimiter(nil, config.Config{Redis: config.RedisConfig{PublicLinkRate: 1, PublicLinkBurst: 5}})
	assert.False(t, limiter.Enabled())
	allowed, retry, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Zero(t, retry)
}

func TestDecide(t *testing.T) {
	d := decide(int64(1), "3.5", 2)
	assert.True(t, d.Allowed)
	assert.InDelta(t, 3.5, d.Remaining, 1e-9)
	assert.Zero(t, d.RetryAfter)

	d = decide(int64(0), "0.5", 2)
	assert.False(t, d.Allowed)
	assert.Equal(t, 250*time.Millisecond, d.RetryAfter)
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 20*time.Second, bucketTTL(1, 10))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
}
