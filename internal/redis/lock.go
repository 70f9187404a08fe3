package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("schedule lock not acquired")
)

// Locker guards the check-then-write critical section of a scheduling
// operation. Keys identify the schedules touched, one per
// (dimension id, date) pair.
type Locker interface {
	WithScheduleLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

type redisScheduleLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisScheduleLocker creates a locker that uses one Redis key per
// schedule key.
func NewRedisScheduleLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisScheduleLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisScheduleLocker) WithScheduleLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	token := uuid.NewString()

	// Acquire in sorted order so two operations touching the same schedules
	// never deadlock against each other.
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)

	var held []string
	release := func() {
		for _, key := range held {
			_ = l.release(ctx, key, token)
		}
	}

	for _, k := range sorted {
		key := fmt.Sprintf("lock:schedule:%s", k)
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			release()
			return fmt.Errorf("acquire schedule lock: %w", err)
		}
		if !ok {
			release()
			return ErrLockNotAcquired
		}
		held = append(held, key)
	}

	defer release()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisScheduleLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release schedule lock: %w", err)
	}
	return nil
}
