package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix is the prefix of the per-host health keys
const DefaultKeyPrefix = "bmq:host-health"

// Status represents the last observed host health
type Status struct {
	Healthy     bool      `json:"healthy"`
	Host        string    `json:"host"`
	LastCheck   time.Time `json:"last_check,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Transitions int       `json:"transitions"`
}

// RedisMonitor polls a Redis key holding the health of this host. The host
// is unhealthy when the key holds "unhealthy" or when Redis cannot be
// reached; a missing key means healthy.
type RedisMonitor struct {
	rdb      *redis.Client
	host     string
	key      string
	interval time.Duration
	logger   *slog.Logger

	mu          sync.RWMutex
	healthy     bool
	lastCheck   time.Time
	lastErr     string
	transitions int

	subs subscribers

	onDown func()
	onUp   func()
}

// RedisOption configures the RedisMonitor.
type RedisOption func(*RedisMonitor)

// WithInterval sets the polling interval (default 5s).
func WithInterval(d time.Duration) RedisOption {
	return func(m *RedisMonitor) {
		m.interval = d
	}
}

// WithHost sets the host name whose key is polled (default os.Hostname).
func WithHost(host string) RedisOption {
	return func(m *RedisMonitor) {
		m.host = host
	}
}

// WithKeyPrefix sets the key prefix (default DefaultKeyPrefix).
func WithKeyPrefix(prefix string) RedisOption {
	return func(m *RedisMonitor) {
		m.key = prefix
	}
}

// WithOnDown is called when the host transitions from healthy to unhealthy.
func WithOnDown(fn func()) RedisOption {
	return func(m *RedisMonitor) {
		m.onDown = fn
	}
}

// WithOnUp is called when the host transitions from unhealthy to healthy.
func WithOnUp(fn func()) RedisOption {
	return func(m *RedisMonitor) {
		m.onUp = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RedisOption {
	return func(m *RedisMonitor) {
		m.logger = logger
	}
}

// NewRedisMonitor creates a monitor for this host. It starts healthy.
func NewRedisMonitor(rdb *redis.Client, opts ...RedisOption) *RedisMonitor {
	m := &RedisMonitor{
		rdb:      rdb,
		key:      DefaultKeyPrefix,
		interval: 5 * time.Second,
		healthy:  true,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	if m.host == "" {
		if hostname, err := os.Hostname(); err == nil {
			m.host = hostname
		} else {
			m.host = "localhost"
		}
	}
	m.key = fmt.Sprintf("%s:%s", m.key, m.host)
	m.logger = m.logger.With("component", "host_health", "host", m.host)
	return m
}

// Key returns the Redis key polled for this host
func (m *RedisMonitor) Key() string {
	return m.key
}

// Run polls the health key until ctx is cancelled.
func (m *RedisMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// check reads the health key once and updates state.
func (m *RedisMonitor) check(ctx context.Context) {
	getCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	value, err := m.rdb.Get(getCtx, m.key).Result()
	healthy := true
	errText := ""
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		healthy = false
		errText = err.Error()
	default:
		healthy = !strings.EqualFold(strings.TrimSpace(value), "unhealthy")
	}

	m.mu.Lock()
	was := m.healthy
	m.healthy = healthy
	m.lastCheck = time.Now()
	m.lastErr = errText
	if was != healthy {
		m.transitions++
	}
	m.mu.Unlock()

	if was == healthy {
		return
	}
	if healthy {
		m.logger.Info("Host health restored")
		if m.onUp != nil {
			m.onUp()
		}
	} else {
		m.logger.Warn("Host became unhealthy", "error", errText)
		if m.onDown != nil {
			m.onDown()
		}
	}
	m.subs.notify(healthy)
}

// Healthy returns the result of the last check
func (m *RedisMonitor) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy
}

// Subscribe registers fn for health transitions
func (m *RedisMonitor) Subscribe(fn func(healthy bool)) func() {
	return m.subs.add(fn)
}

// SetHealth writes the health of this host, for operators and tests.
func (m *RedisMonitor) SetHealth(ctx context.Context, healthy bool) error {
	if healthy {
		if err := m.rdb.Del(ctx, m.key).Err(); err != nil {
			return fmt.Errorf("failed to clear host health: %w", err)
		}
		return nil
	}
	if err := m.rdb.Set(ctx, m.key, "unhealthy", 0).Err(); err != nil {
		return fmt.Errorf("failed to set host health: %w", err)
	}
	return nil
}

// GetStatus returns the current health status.
func (m *RedisMonitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		Healthy:     m.healthy,
		Host:        m.host,
		LastCheck:   m.lastCheck,
		LastError:   m.lastErr,
		Transitions: m.transitions,
	}
}
