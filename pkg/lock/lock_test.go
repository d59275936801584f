package lock

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocker_Defaults(t *testing.T) {
	l := NewLocker(nil, Options{}, nil)
	assert.Equal(t, DefaultOptions, l.opts)

	l = NewLocker(nil, Options{TTL: time.Second}, nil)
	assert.Equal(t, time.Second, l.opts.TTL)
	assert.Equal(t, DefaultOptions.Wait, l.opts.Wait)
}

func TestEventKey(t *testing.T) {
	id := uuid.MustParse("0194b7a2-8c1e-7000-8000-000000000001")
	assert.Equal(t, "event:0194b7a2-8c1e-7000-8000-000000000001", EventKey(id))
}

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run")
	}
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestWithLock_Serializes(t *testing.T) {
	client := redisClient(t)
	l := NewLocker(client, Options{TTL: 5 * time.Second, Wait: 10 * time.Second}, nil)
	name := "test:" + uuid.NewString()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), name, func(context.Context) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()
				time.Sleep(10 * time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestAcquire_TimesOut(t *testing.T) {
	client := redisClient(t)
	l := NewLocker(client, Options{TTL: 5 * time.Second, Wait: 100 * time.Millisecond}, nil)
	name := "test:" + uuid.NewString()

	held, err := l.Acquire(context.Background(), name)
	require.NoError(t, err)
	defer held.Release(context.Background())

	_, err = l.Acquire(context.Background(), name)
	assert.ErrorIs(t, err, ErrNotAcquired)
}
