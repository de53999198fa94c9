package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/scry-assess/internal/service/userlock"
)

// ErrLockNotAcquired is returned when the context ends before the lock frees up.
var ErrLockNotAcquired = errors.New("lock not acquired")

const (
	lockKeyPrefix      = "scry:lock:"
	defaultLockTTL     = 10 * time.Second
	lockRetryInterval  = 25 * time.Millisecond
	releaseTimeout     = 2 * time.Second
	releaseIfOwnerLuaS = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`
)

// lockClient is the subset of the go-redis client the locker needs.
type lockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *goredis.Cmd
}

// Locker is a userlock.Locker backed by SET NX PX. Each acquisition stores a
// random token; release deletes the key only while it still holds that token.
type Locker struct {
	client lockClient
	ttl    time.Duration
	logger *slog.Logger
}

var _ userlock.Locker = (*Locker)(nil)

// NewLocker creates a Locker. A non-positive ttl falls back to 10s.
func NewLocker(client lockClient, ttl time.Duration, logger *slog.Logger) *Locker {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{
		client: client,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "redis_locker")),
	}
}

// Lock implements userlock.Locker.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := lockKeyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrLockNotAcquired, key, ctx.Err())
		case <-time.After(lockRetryInterval):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// release must run even when the request context is already cancelled
			relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
			defer cancel()
			if err := l.client.Eval(relCtx, releaseIfOwnerLuaS, []string{redisKey}, token).Err(); err != nil {
				l.logger.Warn("failed to release lock",
					slog.String("key", key),
					slog.String("error", err.Error()))
			}
		})
	}, nil
}
