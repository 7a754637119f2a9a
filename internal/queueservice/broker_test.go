package queueservice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
)

const brokerTestQueue = "bmq://bmq.test.mem.priority/orders"

func newTestBroker(t *testing.T, config Config) *Broker {
	t.Helper()
	b := NewBroker(config, testLogger())
	t.Cleanup(func() { _ = b.Shutdown(context.Background()) })
	return b
}

func TestBroker_OpenPostFetchConfirm(t *testing.T) {
	b := newTestBroker(t, Config{})

	producer, err := b.CreateSession("producer")
	require.NoError(t, err)
	consumer, err := b.CreateSession("consumer")
	require.NoError(t, err)

	writeID, _, err := b.OpenQueue(producer, brokerTestQueue, false, true, domain.DefaultQueueSettings())
	require.NoError(t, err)
	readID, settings, err := b.OpenQueue(consumer, brokerTestQueue, true, false, domain.DefaultQueueSettings())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultQueueSettings(), settings)
	assert.NotEqual(t, writeID, readID)

	status, err := b.Post(producer, writeID, &Message{GUID: "g1", Payload: []byte("hello")})
	require.NoError(t, err)
	assert.Equal(t, domain.AckSuccess, status)

	msgs, err := b.Fetch(consumer, readID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, brokerTestQueue, msgs[0].QueueURI)
	assert.Equal(t, []byte("hello"), msgs[0].Payload)
	assert.False(t, msgs[0].Timestamp.IsZero())

	require.NoError(t, b.Confirm(consumer, readID, "g1"))
	require.NoError(t, b.Confirm(consumer, readID, "g1"))

	stats := b.Stats()
	assert.Equal(t, 2, stats.Sessions)
	require.Len(t, stats.Queues, 1)
	assert.Equal(t, int64(1), stats.Queues[0].Confirmed)
	assert.Equal(t, 0, stats.Queues[0].Pending)
}

func TestBroker_Errors(t *testing.T) {
	b := newTestBroker(t, Config{})
	s, err := b.CreateSession("client")
	require.NoError(t, err)

	_, _, err = b.OpenQueue("missing", brokerTestQueue, true, false, domain.DefaultQueueSettings())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, _, err = b.OpenQueue(s, "http://not-bmq", true, false, domain.DefaultQueueSettings())
	assert.ErrorIs(t, err, ErrInvalidQueueURI)

	_, _, err = b.OpenQueue(s, brokerTestQueue, false, false, domain.DefaultQueueSettings())
	assert.ErrorIs(t, err, ErrInvalidQueueURI)

	readID, _, err := b.OpenQueue(s, brokerTestQueue, true, false, domain.DefaultQueueSettings())
	require.NoError(t, err)

	_, _, err = b.OpenQueue(s, brokerTestQueue, true, false, domain.DefaultQueueSettings())
	assert.ErrorIs(t, err, ErrQueueAlreadyOpen)

	_, err = b.Post(s, readID, &Message{GUID: "g"})
	assert.ErrorIs(t, err, ErrNotWritable)

	_, err = b.Fetch(s, 9999, 1)
	assert.ErrorIs(t, err, ErrQueueNotFound)

	assert.ErrorIs(t, b.CloseQueue(s, 9999), ErrQueueNotFound)
	assert.ErrorIs(t, b.CloseSession("missing"), ErrSessionNotFound)
}

func TestBroker_ConfigureWriteOnlyHandle(t *testing.T) {
	b := newTestBroker(t, Config{})
	s, err := b.CreateSession("client")
	require.NoError(t, err)

	id, _, err := b.OpenQueue(s, brokerTestQueue, false, true, domain.DefaultQueueSettings())
	require.NoError(t, err)

	_, err = b.ConfigureQueue(s, id, domain.DefaultQueueSettings())
	assert.ErrorIs(t, err, ErrNotReadable)
	_, err = b.Fetch(s, id, 1)
	assert.ErrorIs(t, err, ErrNotReadable)
}

func TestBroker_CloseQueueRequeues(t *testing.T) {
	b := newTestBroker(t, Config{})
	s, err := b.CreateSession("client")
	require.NoError(t, err)

	id, _, err := b.OpenQueue(s, brokerTestQueue, true, true, domain.DefaultQueueSettings())
	require.NoError(t, err)
	_, err = b.Post(s, id, &Message{GUID: "g1"})
	require.NoError(t, err)
	msgs, err := b.Fetch(s, id, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, b.CloseQueue(s, id))

	id, _, err = b.OpenQueue(s, brokerTestQueue, true, false, domain.DefaultQueueSettings())
	require.NoError(t, err)
	msgs, err = b.Fetch(s, id, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "g1", msgs[0].GUID)
}

func TestBroker_CloseSessionRequeues(t *testing.T) {
	b := newTestBroker(t, Config{})
	s1, _ := b.CreateSession("first")
	s2, _ := b.CreateSession("second")

	id1, _, err := b.OpenQueue(s1, brokerTestQueue, true, true, domain.DefaultQueueSettings())
	require.NoError(t, err)
	_, err = b.Post(s1, id1, &Message{GUID: "g1"})
	require.NoError(t, err)
	_, err = b.Fetch(s1, id1, 10)
	require.NoError(t, err)

	require.NoError(t, b.CloseSession(s1))

	id2, _, err := b.OpenQueue(s2, brokerTestQueue, true, false, domain.DefaultQueueSettings())
	require.NoError(t, err)
	msgs, err := b.Fetch(s2, id2, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestBroker_ExpireSessions(t *testing.T) {
	b := newTestBroker(t, Config{SessionTTL: time.Minute})
	idle, _ := b.CreateSession("idle")
	active, _ := b.CreateSession("active")

	id, _, err := b.OpenQueue(idle, brokerTestQueue, true, true, domain.DefaultQueueSettings())
	require.NoError(t, err)
	_, err = b.Post(idle, id, &Message{GUID: "g1"})
	require.NoError(t, err)
	_, err = b.Fetch(idle, id, 10)
	require.NoError(t, err)

	b.mu.Lock()
	b.sessions[idle].lastSeen = time.Now().Add(-2 * time.Minute)
	b.mu.Unlock()
	require.NoError(t, b.Heartbeat(active))

	assert.Equal(t, 1, b.expireSessions(time.Now()))
	assert.ErrorIs(t, b.Heartbeat(idle), ErrSessionNotFound)
	assert.NoError(t, b.Heartbeat(active))

	stats := b.Stats()
	assert.Equal(t, int64(1), stats.SessionsExpired)
	assert.Equal(t, 1, stats.Queues[0].Depth)
}

func TestBroker_MaxQueueDepth(t *testing.T) {
	b := newTestBroker(t, Config{MaxQueueDepth: 1})
	s, _ := b.CreateSession("client")
	id, _, err := b.OpenQueue(s, brokerTestQueue, false, true, domain.DefaultQueueSettings())
	require.NoError(t, err)

	status, err := b.Post(s, id, &Message{GUID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, domain.AckSuccess, status)

	status, err = b.Post(s, id, &Message{GUID: "g2"})
	require.NoError(t, err)
	assert.Equal(t, domain.AckLimitMessages, status)
}

func TestBroker_Shutdown(t *testing.T) {
	b := NewBroker(Config{ExpiryCheckInterval: 10 * time.Millisecond}, testLogger())
	require.NoError(t, b.Start(context.Background()))
	_, err := b.CreateSession("client")
	require.NoError(t, err)

	require.NoError(t, b.Shutdown(context.Background()))
	require.NoError(t, b.Shutdown(context.Background()))

	_, err = b.CreateSession("late")
	assert.ErrorIs(t, err, ErrBrokerShutdown)
	assert.Equal(t, 0, b.Stats().Sessions)
	assert.Contains(t, b.String(), "sessions=0")
}

func TestResultCodeOf(t *testing.T) {
	assert.Equal(t, domain.ResultSuccess, ResultCodeOf(nil))
	assert.Equal(t, domain.ResultNotConnected, ResultCodeOf(ErrSessionNotFound))
	assert.Equal(t, domain.ResultInvalidArgument, ResultCodeOf(ErrQueueNotFound))
	assert.Equal(t, domain.ResultNotSupported, ResultCodeOf(ErrNotWritable))
	assert.Equal(t, domain.ResultNotReady, ResultCodeOf(ErrBrokerShutdown))
	assert.Equal(t, domain.ResultUnknown, ResultCodeOf(assert.AnError))
}
