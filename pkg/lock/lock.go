// Package lock provides a Redis-backed mutual-exclusion lock keyed by name, used to
// serialize work on one event across processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNotAcquired is returned when the lock could not be taken before the wait expired.
var ErrNotAcquired = errors.New("lock not acquired")

const keyPrefix = "lock:"

// Release only deletes the key if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Options tune lock acquisition.
type Options struct {
	// TTL bounds how long a crashed holder can block others.
	TTL time.Duration
	// Wait is the total time to keep retrying before giving up.
	Wait time.Duration
	// RetryInterval is the pause between attempts.
	RetryInterval time.Duration
}

// DefaultOptions suits locks held for one short transaction.
var DefaultOptions = Options{
	TTL:           10 * time.Second,
	Wait:          5 * time.Second,
	RetryInterval: 25 * time.Millisecond,
}

// Locker acquires named locks in Redis.
type Locker struct {
	client redis.Cmdable
	opts   Options
	logger *zap.Logger
}

// NewLocker creates a Locker. Zero option fields take DefaultOptions values.
func NewLocker(client redis.Cmdable, opts Options, logger *zap.Logger) *Locker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultOptions.TTL
	}
	if opts.Wait <= 0 {
		opts.Wait = DefaultOptions.Wait
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultOptions.RetryInterval
	}
	return &Locker{client: client, opts: opts, logger: logger}
}

// Lock is a held lock.
type Lock struct {
	client redis.Cmdable
	key    string
	token  string
}

// Acquire blocks until name is locked, the wait elapses, or ctx is done.
func (l *Locker) Acquire(ctx context.Context, name string) (*Lock, error) {
	token := uuid.NewString()
	key := keyPrefix + name
	deadline := time.Now().Add(l.opts.Wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.opts.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("setnx %s: %w", key, err)
		}
		if ok {
			return &Lock{client: l.client, key: key, token: token}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrNotAcquired, name)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.opts.RetryInterval):
		}
	}
}

// WithLock runs fn while holding name.
func (l *Locker) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	lk, err := l.Acquire(ctx, name)
	if err != nil {
		return err
	}
	defer func() {
		if err := lk.Release(context.WithoutCancel(ctx)); err != nil {
			l.logger.Warn("release lock failed", zap.String("key", lk.key), zap.Error(err))
		}
	}()
	return fn(ctx)
}

// Release frees the lock if this holder still owns it.
func (lk *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, lk.client, []string{lk.key}, lk.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release %s: %w", lk.key, err)
	}
	return nil
}

// EventKey names the lock for one event.
func EventKey(eventID fmt.Stringer) string {
	return "event:" + eventID.String()
}
