package consumer

import (
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
	"github.com/arnabghosh/blazingmq-session/internal/mq"
	"github.com/arnabghosh/blazingmq-session/internal/queueservice"
	"github.com/arnabghosh/blazingmq-session/internal/session"
)

const testQueue = "bmq://bmq.test.mem.priority/orders"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() *Config {
	return &Config{
		InstanceID:             "consumer-test",
		QueueURI:               testQueue,
		MaxUnconfirmedMessages: domain.DefaultMaxUnconfirmedMessages,
		MaxUnconfirmedBytes:    domain.DefaultMaxUnconfirmedBytes,
		DrainTimeout:           5 * time.Second,
	}
}

func startTestBroker(t *testing.T) (*httptest.Server, *queueservice.Broker) {
	t.Helper()
	broker := queueservice.NewBroker(queueservice.Config{}, testLogger())
	srv := httptest.NewServer(queueservice.NewHTTPServer(broker, queueservice.ServerConfig{}, testLogger()).Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = broker.Shutdown(context.Background())
	})
	return srv, broker
}

func startSession(t *testing.T, baseURL string, onMessage session.MessageHandler) *session.Session {
	t.Helper()
	conn := mq.NewHTTPConnection(mq.HTTPConnectionConfig{
		BaseURL:      baseURL,
		PollInterval: 5 * time.Millisecond,
	}, testLogger())
	s, err := session.New(conn, session.Options{OnMessage: onMessage, Logger: testLogger()})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)
	return s
}

func postN(t *testing.T, s *session.Session, n int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.OpenQueue(ctx, testQueue, mq.FlagWrite, domain.QueueOptions{}))
	for i := 0; i < n; i++ {
		_, err := s.Post(ctx, testQueue, []byte("order"), session.PostOptions{
			Properties: map[string]any{"seq": i},
		})
		require.NoError(t, err)
	}
}

func TestNewConsumer_NilLogger(t *testing.T) {
	c := NewConsumer(testConfig(), nil)

	assert.NotNil(t, c.logger)
	assert.Equal(t, ConsumerStats{}, c.Stats())
}

func TestConfig_QueueOptions(t *testing.T) {
	cfg := testConfig()
	cfg.ConsumerPriority = 3
	cfg.SuspendsOnBadHostHealth = true

	settings := cfg.QueueOptions().Apply(domain.QueueSettings{})

	assert.Equal(t, domain.QueueSettings{
		MaxUnconfirmedMessages:  domain.DefaultMaxUnconfirmedMessages,
		MaxUnconfirmedBytes:     domain.DefaultMaxUnconfirmedBytes,
		ConsumerPriority:        3,
		SuspendsOnBadHostHealth: true,
	}, settings)
}

func TestConsumer_ConsumesUntilMessageLimit(t *testing.T) {
	srv, broker := startTestBroker(t)

	cfg := testConfig()
	cfg.MaxMessages = 3
	c := NewConsumer(cfg, testLogger())
	consumerSession := startSession(t, srv.URL, c.HandleMessage)

	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background(), consumerSession) }()

	producerSession := startSession(t, srv.URL, nil)
	postN(t, producerSession, 3)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not reach the message limit")
	}

	stats := c.Stats()
	assert.Equal(t, int64(3), stats.MessagesReceived)
	assert.Equal(t, int64(3), stats.MessagesConfirmed)
	assert.Equal(t, int64(15), stats.BytesReceived)

	queues := broker.Stats().Queues
	require.Len(t, queues, 1)
	assert.Equal(t, int64(3), queues[0].Confirmed)
	assert.Equal(t, 0, queues[0].Pending)
}

func TestConsumer_StopsOnCancel(t *testing.T) {
	srv, broker := startTestBroker(t)

	c := NewConsumer(testConfig(), testLogger())
	s := startSession(t, srv.URL, c.HandleMessage)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, s) }()

	require.Eventually(t, func() bool {
		queues := broker.Stats().Queues
		return len(queues) == 1 && queues[0].Consumers == 1
	}, 3*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Equal(t, 0, broker.Stats().Queues[0].Consumers)
}

func TestConsumer_StopsDeliveriesBeforeClose(t *testing.T) {
	fake := &fakeQueueSession{}
	c := NewConsumer(testConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Start(ctx, fake)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"open", "configure", "close"}, fake.ops)
	require.NotNil(t, fake.lastConfigure.MaxUnconfirmedMessages)
	assert.Equal(t, 0, *fake.lastConfigure.MaxUnconfirmedMessages)
}

func TestConsumer_OpenFailure(t *testing.T) {
	fake := &fakeQueueSession{openErr: errors.New("refused")}
	c := NewConsumer(testConfig(), testLogger())

	err := c.Start(context.Background(), fake)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open queue")
	assert.Equal(t, []string{"open"}, fake.ops)
}

func TestConsumer_CloseFailure(t *testing.T) {
	fake := &fakeQueueSession{closeErr: errors.New("timeout"), configureErr: errors.New("timeout")}
	c := NewConsumer(testConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Start(ctx, fake)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to close queue")
}

type fakeQueueSession struct {
	mu            sync.Mutex
	ops           []string
	lastConfigure domain.QueueOptions
	openErr       error
	configureErr  error
	closeErr      error
}

func (f *fakeQueueSession) OpenQueue(_ context.Context, _ string, _ mq.QueueFlags, _ domain.QueueOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "open")
	return f.openErr
}

func (f *fakeQueueSession) ConfigureQueue(_ context.Context, _ string, opts domain.QueueOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "configure")
	f.lastConfigure = opts
	return f.configureErr
}

func (f *fakeQueueSession) CloseQueue(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "close")
	return f.closeErr
}
