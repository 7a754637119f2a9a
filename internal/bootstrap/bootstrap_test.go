package bootstrap

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnabghosh/blazingmq-session/internal/config"
	"github.com/arnabghosh/blazingmq-session/internal/domain"
	"github.com/arnabghosh/blazingmq-session/internal/health"
	"github.com/arnabghosh/blazingmq-session/internal/mq"
	"github.com/arnabghosh/blazingmq-session/internal/session"
	"github.com/arnabghosh/blazingmq-session/internal/storage/inmemory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte("broker:\n  uri: loopback://local\n  client_id: from-file\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "loopback://local", cfg.Broker.URI)
	assert.Equal(t, "from-file", cfg.Broker.ClientID)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "cassandra")

	_, err := LoadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid storage type")
}

func TestNewLogger(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	cfg := config.Default()
	cfg.Log.Format = "json"
	var buf bytes.Buffer

	log, err := NewLogger(cfg, &buf)
	require.NoError(t, err)
	slog.Info("installed")

	assert.Equal(t, log, slog.Default())
	assert.Contains(t, buf.String(), `"msg":"installed"`)
}

func TestDialConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Session.Compression = "zlib"
	cfg.Broker.ClientID = "client-7"

	dc, err := DialConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, domain.CompressionZlib, dc.Compression)
	assert.Equal(t, "client-7", dc.ClientID)
	assert.Equal(t, cfg.Broker.PollInterval, dc.HTTP.PollInterval)
	assert.Equal(t, cfg.Broker.RedisKeyPrefix, dc.Redis.KeyPrefix)

	cfg.Session.Compression = "lz4"
	_, err = DialConfig(cfg)
	assert.Error(t, err)
}

func TestNewSession_Loopback(t *testing.T) {
	cfg := config.Default()
	cfg.Broker.URI = "loopback://local"

	received := make(chan *domain.Message, 1)
	s, err := NewSession(cfg, session.Options{
		OnMessage: func(msg *domain.Message, _ *session.MessageHandle) { received <- msg },
	}, testLogger())
	require.NoError(t, err)
	t.Cleanup(s.Stop)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.OpenQueue(ctx, "bmq://bmq.test/boot", mq.FlagRead|mq.FlagWrite, domain.QueueOptions{}))
	_, err = s.Post(ctx, "bmq://bmq.test/boot", []byte("hi"), session.PostOptions{})
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, []byte("hi"), msg.Data)
	case <-time.After(3 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestNewSession_UnsupportedScheme(t *testing.T) {
	cfg := config.Default()
	cfg.Broker.URI = "amqp://localhost"

	_, err := NewSession(cfg, session.Options{}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to dial broker")
}

func TestNewHostHealthMonitor(t *testing.T) {
	ctx := context.Background()

	monitor, release, err := NewHostHealthMonitor(ctx, config.HealthConfig{Type: "none"}, testLogger())
	require.NoError(t, err)
	assert.Nil(t, monitor)
	release()

	monitor, release, err = NewHostHealthMonitor(ctx, config.HealthConfig{Type: "basic"}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &health.BasicMonitor{}, monitor)
	assert.True(t, monitor.Healthy())
	release()

	_, _, err = NewHostHealthMonitor(ctx, config.HealthConfig{Type: "redis", RedisURL: "not-a-url"}, testLogger())
	assert.Error(t, err)

	_, _, err = NewHostHealthMonitor(ctx, config.HealthConfig{Type: "consul"}, testLogger())
	assert.Error(t, err)
}

func TestNewHostHealthMonitor_Redis(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Construction does not contact Redis
	monitor, release, err := NewHostHealthMonitor(ctx, config.HealthConfig{
		Type:     "redis",
		RedisURL: "redis://localhost:6379",
		Host:     "bootstrap-test",
		Interval: time.Hour,
	}, testLogger())
	require.NoError(t, err)
	t.Cleanup(release)

	redisMonitor, ok := monitor.(*health.RedisMonitor)
	require.True(t, ok)
	assert.Equal(t, health.DefaultKeyPrefix+":bootstrap-test", redisMonitor.Key())
}

func TestNewAckJournal(t *testing.T) {
	journal, release, err := NewAckJournal(config.StorageConfig{Type: "inmemory"}, testLogger())
	require.NoError(t, err)
	defer release()
	assert.IsType(t, &inmemory.AckRepository{}, journal)

	_, _, err = NewAckJournal(config.StorageConfig{Type: "cassandra"}, testLogger())
	assert.Error(t, err)
}
