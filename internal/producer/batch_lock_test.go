package producer

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
)

// Test helper: connect to Redis or skip
func testRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}
	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available for testing (set TEST_REDIS_URL or run Redis on localhost:6379): %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestBatchLock_AcquireReleaseExtend(t *testing.T) {
	client := testRedisClient(t)
	queue := "bmq://locktest/" + domain.NewGUID().String()
	ctx := context.Background()

	first := newBatchLock(client, queue, "producer-1", testLogger())
	second := newBatchLock(client, queue, "producer-2", testLogger())

	require.NoError(t, first.AcquireLock(ctx))
	require.NoError(t, first.ExtendLock(ctx))

	// The second instance waits while the first holds the lock
	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, second.AcquireLock(waitCtx), context.DeadlineExceeded)
	assert.Error(t, second.ExtendLock(ctx))

	// Releasing a lock owned by another instance leaves it in place
	require.NoError(t, second.ReleaseLock(ctx))
	assert.Equal(t, "producer-1", client.Get(ctx, first.key).Val())

	require.NoError(t, first.ReleaseLock(ctx))
	require.NoError(t, second.AcquireLock(ctx))
	require.NoError(t, second.ReleaseLock(ctx))
}
