package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when another run already holds the lock.
var ErrNotAcquired = errors.New("optimization lock not acquired")

// Locker serializes optimization runs per (user, week).
type Locker interface {
	WithOptimizationLock(ctx context.Context, userID string, weekStart time.Time, fn func(ctx context.Context) error) error
}

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker creates a locker keyed on user and week start.
func NewRedisLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisLocker{client: client, ttl: ttl}
}

func (l *redisLocker) WithOptimizationLock(ctx context.Context, userID string, weekStart time.Time, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:optimize:%s:%s", userID, weekStart.Format("2006-01-02"))
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire optimization lock: %w", err)
	}
	if !ok {
		return ErrNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	lockCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(lockCtx)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release optimization lock: %w", err)
	}
	return nil
}

// Unlocked is a no-op locker for embedders that serialize externally.
type Unlocked struct{}

func (Unlocked) WithOptimizationLock(ctx context.Context, _ string, _ time.Time, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
