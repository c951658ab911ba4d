package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// Locker serializes resolutions of the same identity key.
type Locker interface {
	// Lock blocks until key is held or ctx is done. The returned func
	// releases the lock.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// NoopLocker never blocks. It is used when no Redis is configured.
type NoopLocker struct{}

// Lock returns immediately.
func (NoopLocker) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}

// redisCmdable is the part of *redis.Client the locker uses.
type redisCmdable interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// releaseScript deletes the key only if this holder still owns it.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`

const lockPollInterval = 25 * time.Millisecond

// RedisLocker is a single-instance Redis lock keyed by identity hash.
type RedisLocker struct {
	client redisCmdable
	ttl    time.Duration
}

// NewRedisLocker connects to Redis at addr.
func NewRedisLocker(addr, password string, db int, ttl time.Duration) *RedisLocker {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return newRedisLocker(rdb, ttl)
}

func newRedisLocker(client redisCmdable, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := "identity_lock:" + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, eris.Wrap(err, "identity: acquire lock")
		}
		if ok {
			break
		}
		timer := time.NewTimer(lockPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, eris.Wrap(ctx.Err(), "identity: wait for lock")
		case <-timer.C:
		}
	}

	return func() {
		// Release even when ctx is already cancelled.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.client.Eval(releaseCtx, releaseScript, []string{lockKey}, token).Err()
	}, nil
}
