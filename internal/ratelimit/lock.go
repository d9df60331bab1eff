package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Only the holder of the token may delete the key.
const releaseScript = `
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
return redis.call("DEL", KEYS[1])
`

var ErrLockNotConfigured = errors.New("lock_not_configured")

// Locker hands out expiring, token-guarded redis locks.
type Locker struct {
	client *redis.Client
	script *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client, script: redis.NewScript(releaseScript)}
}

func (l *Locker) Enabled() bool {
	return l != nil && l.client != nil
}

// Acquire tries once. When the lock is held elsewhere it returns ok=false and
// a nil release func.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error) {
	if !l.Enabled() {
		return nil, false, ErrLockNotConfigured
	}
	if key == "" || ttl <= 0 {
		return nil, false, errors.New("lock key and ttl are required")
	}

	token := uuid.NewString()
	ok, err = l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return func(ctx context.Context) error {
		return l.script.Run(ctx, l.client, []string{key}, token).Err()
	}, true, nil
}
