package health

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newUnreachableClient creates a Redis client pointed at an address where
// nothing listens, so every command fails.
func newUnreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		ReadTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestNewRedisMonitor_Defaults(t *testing.T) {
	rdb := newUnreachableClient()
	defer rdb.Close()

	m := NewRedisMonitor(rdb, WithHost("host-a"))
	assert.Equal(t, 5*time.Second, m.interval)
	assert.Equal(t, "bmq:host-health:host-a", m.Key())
	assert.True(t, m.Healthy())
}

func TestNewRedisMonitor_Options(t *testing.T) {
	rdb := newUnreachableClient()
	defer rdb.Close()

	m := NewRedisMonitor(rdb,
		WithHost("host-b"),
		WithKeyPrefix("custom"),
		WithInterval(time.Second),
	)
	assert.Equal(t, time.Second, m.interval)
	assert.Equal(t, "custom:host-b", m.Key())
}

func TestRedisMonitor_UnreachableIsUnhealthy(t *testing.T) {
	rdb := newUnreachableClient()
	defer rdb.Close()

	var downCalled atomic.Int32
	var notified atomic.Int32
	m := NewRedisMonitor(rdb,
		WithHost("host-c"),
		WithOnDown(func() { downCalled.Add(1) }),
	)
	m.Subscribe(func(healthy bool) {
		if !healthy {
			notified.Add(1)
		}
	})

	m.check(context.Background())

	assert.False(t, m.Healthy())
	assert.Equal(t, int32(1), downCalled.Load())
	assert.Equal(t, int32(1), notified.Load())

	status := m.GetStatus()
	assert.False(t, status.Healthy)
	assert.NotEmpty(t, status.LastError)
	assert.Equal(t, 1, status.Transitions)

	// A second failing check is not a transition
	m.check(context.Background())
	assert.Equal(t, int32(1), downCalled.Load())
}

func TestRedisMonitor_RunStopsOnCancel(t *testing.T) {
	rdb := newUnreachableClient()
	defer rdb.Close()

	m := NewRedisMonitor(rdb, WithHost("host-d"), WithInterval(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRedisMonitor_KeyTransitions(t *testing.T) {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}
	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing (set TEST_REDIS_URL or run Redis on localhost:6379): %v", err)
	}

	var upCalled atomic.Int32
	m := NewRedisMonitor(rdb,
		WithHost("test-"+time.Now().Format("150405.000000")),
		WithOnUp(func() { upCalled.Add(1) }),
	)
	defer rdb.Del(ctx, m.Key())

	m.check(ctx)
	assert.True(t, m.Healthy(), "missing key means healthy")

	require.NoError(t, m.SetHealth(ctx, false))
	m.check(ctx)
	assert.False(t, m.Healthy())

	require.NoError(t, m.SetHealth(ctx, true))
	m.check(ctx)
	assert.True(t, m.Healthy())
	assert.Equal(t, int32(1), upCalled.Load())
}
