package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another request owns the lock
var ErrLockHeld = errors.New("lock held by another request")

// releaseScript deletes the key only if it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short-lived mutual exclusion over a key
type Locker struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewLocker(rdb redis.Cmdable, ttl time.Duration) *Locker {
	return &Locker{rdb: rdb, ttl: ttl}
}

// Acquire takes the lock for key. The returned func releases it; the TTL frees it if the holder dies.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()
	lockKey := "lock:" + key
	acquired, err := l.rdb.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrLockHeld
	}
	return func() {
		// release with a fresh context so a cancelled request still frees the lock
		releaseScript.Run(context.Background(), l.rdb, []string{lockKey}, token)
	}, nil
}
