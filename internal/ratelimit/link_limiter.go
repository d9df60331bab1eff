package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/toddfishman/meetini/internal/config"
)

const keyPublicLink = "meetini:public_link:%s"

// LinkLimiter throttles unauthenticated lookups of invitation links per
// client address. Without redis every request is allowed.
type LinkLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewLinkLimiter(client *redis.Client, cfg config.Config) *LinkLimiter {
	return &LinkLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.Redis.PublicLinkRate,
		burst:  cfg.Redis.PublicLinkBurst,
	}
}

func (l *LinkLimiter) Enabled() bool {
	return l != nil && l.bucket != nil && l.rate > 0 && l.burst > 0
}

// Allow fails open on redis errors; the caller logs them.
func (l *LinkLimiter) Allow(ctx context.Context, clientKey string) (bool, time.Duration, error) {
	if !l.Enabled() {
		return true, 0, nil
	}
	d, err := l.bucket.Take(ctx, fmt.Sprintf(keyPublicLink, strings.TrimSpace(clientKey)), l.rate, l.burst)
	if err != nil {
		return true, 0, err
	}
	return d.Allowed, d.RetryAfter, nil
}
