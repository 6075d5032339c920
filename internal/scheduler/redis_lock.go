package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// DefaultLockKey is the Redis key guarding the sweep.
const DefaultLockKey = "tutoring:sweep:lock"

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a Locker backed by SET NX PX. The TTL bounds how long a
// crashed holder can block the other instances.
type RedisLock struct {
	rdb   *redis.Client
	key   string
	ttl   time.Duration
	token string
}

// NewRedisLock creates a RedisLock with a token unique to this process.
func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration) *RedisLock {
	if key == "" {
		key = DefaultLockKey
	}
	return &RedisLock{
		rdb:   rdb,
		key:   key,
		ttl:   ttl,
		token: uuid.NewString(),
	}
}

// Acquire tries to take the lock without waiting.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire sweep lock: %w", err)
	}
	return ok, nil
}

// Release drops the lock if it is still ours.
func (l *RedisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release sweep lock: %w", err)
	}
	return nil
}
