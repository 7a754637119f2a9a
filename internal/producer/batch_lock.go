package producer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix            = "producer:lock:"
	lockTTL                  = 5 * time.Minute // Max time to hold lock
	lockAcquireRetryInterval = 2 * time.Second
)

// BatchLock provides distributed locking for one pass over a queue.
// Ensures only one producer instance posts a batch to a queue at a time.
type BatchLock struct {
	client    *redis.Client
	key       string
	lockValue string // Unique identifier for this producer instance
	logger    *slog.Logger
}

// NewBatchLock creates a new batch lock manager for queueURI
func NewBatchLock(redisURL, queueURI, instanceID string, logger *slog.Logger) (*BatchLock, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newBatchLock(client, queueURI, instanceID, logger), nil
}

func newBatchLock(client *redis.Client, queueURI, instanceID string, logger *slog.Logger) *BatchLock {
	return &BatchLock{
		client:    client,
		key:       lockKeyPrefix + queueURI,
		lockValue: instanceID,
		logger:    logger.With("component", "batch_lock", "key", lockKeyPrefix+queueURI),
	}
}

// AcquireLock attempts to acquire the batch lock
// Blocks until lock is acquired or context is cancelled
func (bl *BatchLock) AcquireLock(ctx context.Context) error {
	for {
		// Try to set lock with NX (only if not exists) and EX (expiration)
		success, err := bl.client.SetNX(ctx, bl.key, bl.lockValue, lockTTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			bl.logger.Warn("Failed to acquire lock", "error", err)
		} else if success {
			bl.logger.Info("Acquired batch lock", "instance_id", bl.lockValue)
			return nil
		} else {
			bl.logger.Debug("Batch lock held by another producer, waiting...",
				"retry_interval", lockAcquireRetryInterval,
			)
		}

		// Interruptible sleep - allows graceful shutdown during retry wait period
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockAcquireRetryInterval):
		}
	}
}

// ReleaseLock releases the batch lock
func (bl *BatchLock) ReleaseLock(ctx context.Context) error {
	// Only release if we own the lock (check value matches)
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`

	result, err := bl.client.Eval(ctx, script, []string{bl.key}, bl.lockValue).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	if result == 1 {
		bl.logger.Info("Released batch lock", "instance_id", bl.lockValue)
	} else {
		bl.logger.Warn("Lock was not owned by this instance or already released",
			"instance_id", bl.lockValue,
		)
	}

	return nil
}

// ExtendLock extends the TTL of the lock (for long-running passes)
func (bl *BatchLock) ExtendLock(ctx context.Context) error {
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`

	result, err := bl.client.Eval(ctx, script, []string{bl.key}, bl.lockValue, lockTTL.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}

	if result == 0 {
		return fmt.Errorf("lock not owned by this instance")
	}

	bl.logger.Debug("Extended batch lock", "instance_id", bl.lockValue, "ttl", lockTTL)
	return nil
}

// Close closes the Redis connection
func (bl *BatchLock) Close() error {
	if bl.client != nil {
		return bl.client.Close()
	}
	return nil
}
