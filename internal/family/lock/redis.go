package lock

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	dErrors "cradle/pkg/domain-errors"
)

const (
	// Redis key prefix for transition locks
	lockKeyPrefix = "cradle:lock:"

	defaultLockTTL     = 5 * time.Second
	defaultLockTimeout = 5 * time.Second
	defaultRetryWait   = 10 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another holder is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a distributed Locker for multi-instance deployments. Each key
// is a SET NX PX entry owning a random token.
type RedisLocker struct {
	client    *redis.Client
	ttl       time.Duration
	retryWait time.Duration
	timeout   time.Duration
}

// RedisLockerOption configures a RedisLocker instance.
type RedisLockerOption func(*RedisLocker)

// WithTTL bounds how long a crashed holder can block a timeline.
func WithTTL(ttl time.Duration) RedisLockerOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

func WithRetryWait(d time.Duration) RedisLockerOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.retryWait = d
		}
	}
}

func NewRedisLocker(client *redis.Client, opts ...RedisLockerOption) *RedisLocker {
	l := &RedisLocker{
		client:    client,
		ttl:       defaultLockTTL,
		retryWait: defaultRetryWait,
		timeout:   defaultLockTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func (l *RedisLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	token := uuid.NewString()
	var held []string
	release := func() {
		// release must work after the acquiring context is gone
		bg, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		for _, k := range held {
			_ = releaseScript.Run(bg, l.client, []string{k}, token).Err()
		}
	}

	for _, k := range sorted {
		key := lockKeyPrefix + k
		if err := l.acquire(ctx, key, token); err != nil {
			release()
			return nil, err
		}
		held = append(held, key)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "timed out waiting for lock "+key)
		case <-time.After(l.retryWait):
		}
	}
}
