package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
	"github.com/arnabghosh/blazingmq-session/internal/mq"
)

// ackRecorder captures acks delivered to a post callback
type ackRecorder struct {
	mu   sync.Mutex
	acks []*domain.Ack
}

func (r *ackRecorder) handle(ack *domain.Ack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acks = append(r.acks, ack)
}

func (r *ackRecorder) all() []*domain.Ack {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Ack(nil), r.acks...)
}

func TestPost_OpenPostConfirmClose(t *testing.T) {
	ts := startTestSession(t, Options{})
	ctx := context.Background()

	require.NoError(t, ts.OpenQueue(ctx, "q1", readWrite(), domain.QueueOptions{}))

	guid, err := ts.Post(ctx, "q1", []byte("hello"), PostOptions{})
	require.NoError(t, err)
	assert.Len(t, guid.Bytes(), 16)
	assert.False(t, guid.IsZero())

	require.NoError(t, ts.Confirm(ctx, "q1", guid.Bytes()))
	require.NoError(t, ts.CloseQueue(ctx, "q1"))

	st := ts.Stats()
	assert.Equal(t, int64(1), st.Posted)
	assert.Equal(t, int64(1), st.Confirmed)
}

func TestPost_AckCallbackInvokedOnce(t *testing.T) {
	ts := startTestSession(t, Options{})
	ctx := context.Background()
	require.NoError(t, ts.OpenQueue(ctx, testQueue, mq.FlagWrite, domain.QueueOptions{}))

	var counter atomic.Int32
	var got atomic.Pointer[domain.Ack]
	guid, err := ts.Post(ctx, testQueue, []byte("hello"), PostOptions{
		OnAck: func(ack *domain.Ack) {
			counter.Add(1)
			got.Store(ack)
		},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return counter.Load() == 1 }, waitTimeout, 5*time.Millisecond)

	// A duplicate ack for the same message is not delivered again
	ts.loop.InjectMessageEvent(mq.MessageEvent{
		Type: mq.MessageEventAck,
		Acks: []mq.AckMessage{{QueueURI: testQueue, GUID: guid, Status: int(domain.AckSuccess)}},
	})
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(1), counter.Load())
	ack := got.Load()
	require.NotNil(t, ack)
	assert.Equal(t, guid, ack.GUID)
	assert.Equal(t, domain.AckSuccess, ack.Status)
	assert.Equal(t, testQueue, ack.QueueURI)
	assert.True(t, ack.Success())
	assert.Equal(t, 0, ts.Stats().PendingAcks)
}

func TestPost_InjectedAckResolvesCallback(t *testing.T) {
	loop := mq.NewLoopback(mq.DefaultLoopbackConfig(), testLogger())
	ts := newTestSessionOn(t, loop, noAckConn{loop}, Options{})
	require.NoError(t, ts.Start(context.Background()))
	require.NoError(t, ts.OpenQueue(context.Background(), testQueue, mq.FlagWrite, domain.QueueOptions{}))

	var counter atomic.Int32
	guid, err := ts.Post(context.Background(), testQueue, []byte("hello"), PostOptions{
		OnAck: func(*domain.Ack) { counter.Add(1) },
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ts.Stats().PendingAcks)

	ack := mq.MessageEvent{
		Type: mq.MessageEventAck,
		Acks: []mq.AckMessage{{QueueURI: testQueue, GUID: guid, Status: int(domain.AckSuccess)}},
	}
	loop.InjectMessageEvent(ack)
	loop.InjectMessageEvent(ack)

	require.Eventually(t, func() bool { return counter.Load() == 1 }, waitTimeout, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), counter.Load())
	assert.Equal(t, 0, ts.Stats().PendingAcks)
}

func TestPost_NegativeAck(t *testing.T) {
	loop := mq.NewLoopback(mq.LoopbackConfig{MaxQueueDepth: 1}, testLogger())
	ts := newTestSessionOn(t, loop, loop, Options{})
	require.NoError(t, ts.Start(context.Background()))
	ctx := context.Background()
	require.NoError(t, ts.OpenQueue(ctx, testQueue, mq.FlagWrite, domain.QueueOptions{}))

	acks := &ackRecorder{}
	_, err := ts.Post(ctx, testQueue, []byte("first"), PostOptions{OnAck: acks.handle})
	require.NoError(t, err)
	second, err := ts.Post(ctx, testQueue, []byte("second"), PostOptions{OnAck: acks.handle})
	require.NoError(t, err, "post succeeds locally even when the broker rejects it")

	require.Eventually(t, func() bool { return len(acks.all()) == 2 }, waitTimeout, 5*time.Millisecond)

	nack := acks.all()[1]
	assert.Equal(t, second, nack.GUID)
	assert.Equal(t, domain.AckLimitMessages, nack.Status)
	assert.Equal(t, "LIMIT_MESSAGES", nack.StatusDescription)
	assert.False(t, nack.Success())

	st := ts.Stats()
	assert.Equal(t, int64(1), st.Acked)
	assert.Equal(t, int64(1), st.Nacked)
	assert.Equal(t, int64(0), st.DroppedNacks)
}

func TestPost_NegativeAckWithoutCallbackIsDropped(t *testing.T) {
	var logs syncBuffer
	loop := mq.NewLoopback(mq.LoopbackConfig{MaxQueueDepth: 1}, testLogger())
	ts := newTestSessionOn(t, loop, loop, Options{Logger: newBufferLogger(&logs)})
	require.NoError(t, ts.Start(context.Background()))
	ctx := context.Background()
	require.NoError(t, ts.OpenQueue(ctx, testQueue, mq.FlagWrite, domain.QueueOptions{}))

	_, err := ts.Post(ctx, testQueue, []byte("first"), PostOptions{})
	require.NoError(t, err)
	_, err = ts.Post(ctx, testQueue, []byte("second"), PostOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return ts.Stats().DroppedNacks == 1 }, waitTimeout, 5*time.Millisecond)
	assert.Contains(t, logs.String(), "Dropping negative acknowledgment")

	// Not forwarded as a session event
	for _, ev := range ts.events.all() {
		assert.NotEqual(t, domain.EventError, ev.Type)
		assert.NotEqual(t, domain.EventInterfaceError, ev.Type)
	}
}

func TestPost_BrokerFailureReleasesCallback(t *testing.T) {
	ts := startTestSession(t, Options{})
	ctx := context.Background()
	require.NoError(t, ts.OpenQueue(ctx, testQueue, mq.FlagWrite, domain.QueueOptions{}))
	ts.loop.SetResult(mq.OpPost, mq.StatusOf(domain.ResultNotConnected, "link down"))

	var counter atomic.Int32
	guid, err := ts.Post(ctx, testQueue, []byte("x"), PostOptions{OnAck: func(*domain.Ack) { counter.Add(1) }})
	require.Error(t, err)
	assert.True(t, domain.IsProtocol(err))
	assert.True(t, guid.IsZero())
	assert.Equal(t, 0, ts.Stats().PendingAcks)
	assert.Equal(t, int64(0), ts.Stats().Posted)

	ts.Stop()
	assert.Equal(t, int32(0), counter.Load())
}

func TestPost_InvalidPropertiesNeverReachBroker(t *testing.T) {
	ts := startTestSession(t, Options{})
	ctx := context.Background()
	require.NoError(t, ts.OpenQueue(ctx, testQueue, mq.FlagWrite, domain.QueueOptions{}))

	tests := []struct {
		name string
		opts PostOptions
	}{
		{
			name: "short out of range",
			opts: PostOptions{
				Properties:            map[string]any{"n": 70000},
				PropertyTypeOverrides: map[string]domain.PropertyType{"n": domain.PropertyShort},
			},
		},
		{
			name: "string not utf8",
			opts: PostOptions{Properties: map[string]any{"s": string([]byte{0xff, 0xfe})}},
		},
		{
			name: "unsupported value",
			opts: PostOptions{Properties: map[string]any{"f": 1.5}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.Post(ctx, testQueue, []byte("x"), tt.opts)
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err), "got %v", err)
		})
	}
	assert.Equal(t, int64(0), ts.loop.Stats().TotalPosted)
}

func TestPost_QueueNotOpened(t *testing.T) {
	ts := startTestSession(t, Options{})

	_, err := ts.Post(context.Background(), testQueue, []byte("x"), PostOptions{})
	assert.True(t, domain.IsState(err))
	assert.ErrorIs(t, err, domain.ErrQueueNotOpened)
}

func TestPost_PropertiesDelivered(t *testing.T) {
	ts := startTestSession(t, Options{})
	ctx := context.Background()
	require.NoError(t, ts.OpenQueue(ctx, testQueue, readWrite(), domain.QueueOptions{}))

	_, err := ts.Post(ctx, testQueue, []byte("payload"), PostOptions{
		Properties: map[string]any{
			"name":  "alice",
			"count": 42,
			"flag":  true,
			"raw":   []byte{1, 2},
		},
		PropertyTypeOverrides: map[string]domain.PropertyType{"count": domain.PropertyInt32},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return ts.messages.count() == 1 }, waitTimeout, 5*time.Millisecond)
	msg := ts.messages.all()[0]
	assert.Equal(t, []byte("payload"), msg.Data)
	assert.Equal(t, "alice", msg.Properties["name"])
	assert.Equal(t, int32(42), msg.Properties["count"])
	assert.Equal(t, true, msg.Properties["flag"])
	assert.Equal(t, []byte{1, 2}, msg.Properties["raw"])
	assert.Equal(t, domain.PropertyInt32, msg.PropertyTypes["count"])
}

func TestPost_StopEndsPendingCallbacks(t *testing.T) {
	loop := mq.NewLoopback(mq.DefaultLoopbackConfig(), testLogger())
	ts := newTestSessionOn(t, loop, noAckConn{loop}, Options{})
	require.NoError(t, ts.Start(context.Background()))
	require.NoError(t, ts.OpenQueue(context.Background(), testQueue, mq.FlagWrite, domain.QueueOptions{}))

	acks := &ackRecorder{}
	guid, err := ts.Post(context.Background(), testQueue, []byte("x"), PostOptions{OnAck: acks.handle})
	require.NoError(t, err)

	ts.Stop()

	got := acks.all()
	require.Len(t, got, 1)
	assert.Equal(t, guid, got[0].GUID)
	assert.Equal(t, domain.AckCanceled, got[0].Status)

	// A late ack from the broker does not reach the callback
	loop.InjectMessageEvent(mq.MessageEvent{
		Type: mq.MessageEventAck,
		Acks: []mq.AckMessage{{QueueURI: testQueue, GUID: guid, Status: int(domain.AckSuccess)}},
	})
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, acks.all(), 1)
}

func TestPost_ThenStopNoStaleCallback(t *testing.T) {
	ts := startTestSession(t, Options{})
	ctx := context.Background()
	require.NoError(t, ts.OpenQueue(ctx, testQueue, mq.FlagWrite, domain.QueueOptions{}))

	var counter atomic.Int32
	_, err := ts.Post(ctx, testQueue, []byte("x"), PostOptions{OnAck: func(*domain.Ack) { counter.Add(1) }})
	require.NoError(t, err)
	ts.Stop()

	atStop := counter.Load()
	assert.Equal(t, int32(1), atStop)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, atStop, counter.Load())
}

func TestConfirm_Validation(t *testing.T) {
	ts := startTestSession(t, Options{})
	ctx := context.Background()
	require.NoError(t, ts.OpenQueue(ctx, testQueue, readWrite(), domain.QueueOptions{}))

	for _, id := range [][]byte{nil, make([]byte, 15), make([]byte, 17)} {
		err := ts.Confirm(ctx, testQueue, id)
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))
		assert.ErrorIs(t, err, domain.ErrInvalidGUID)
	}
}

func TestConfirm_NeverOpenedIsStateError(t *testing.T) {
	ts := startTestSession(t, Options{})

	err := ts.Confirm(context.Background(), "bmq://bmq.test/never", domain.NewGUID().Bytes())
	require.Error(t, err)
	assert.True(t, domain.IsState(err))
	assert.False(t, domain.IsProtocol(err))
}

func TestConfirm_BrokerRejects(t *testing.T) {
	ts := startTestSession(t, Options{})
	ctx := context.Background()
	require.NoError(t, ts.OpenQueue(ctx, testQueue, readWrite(), domain.QueueOptions{}))
	ts.loop.SetResult(mq.OpConfirm, mq.StatusOf(domain.ResultInvalidArgument, "unknown message"))

	err := ts.Confirm(ctx, testQueue, domain.NewGUID().Bytes())
	assert.True(t, domain.IsProtocol(err))
	assert.Equal(t, int64(0), ts.Stats().Confirmed)
}

func TestMessageHandle_ConfirmResumesDelivery(t *testing.T) {
	var delivered atomic.Int32
	ts := startTestSession(t, Options{
		OnMessage: func(msg *domain.Message, handle *MessageHandle) {
			delivered.Add(1)
			assert.Equal(t, msg.GUID, handle.GUID())
			assert.Equal(t, testQueue, handle.QueueURI())
			assert.NoError(t, handle.Confirm(context.Background()))
		},
	})
	ctx := context.Background()
	require.NoError(t, ts.OpenQueue(ctx, testQueue, readWrite(), domain.QueueOptions{
		MaxUnconfirmedMessages: domain.Int(1),
	}))

	for i := 0; i < 5; i++ {
		_, err := ts.Post(ctx, testQueue, []byte("m"), PostOptions{})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return ts.Stats().Confirmed == 5 }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, int32(5), delivered.Load())
	assert.Equal(t, 0, ts.loop.Depth(testQueue))
}

func TestPost_Compression(t *testing.T) {
	var captured atomic.Value
	loop := mq.NewLoopback(mq.DefaultLoopbackConfig(), testLogger())
	conn := &capturingConn{Loopback: loop, last: &captured}
	ts := newTestSessionOn(t, loop, conn, Options{Compression: domain.CompressionZlib})
	require.NoError(t, ts.Start(context.Background()))
	require.NoError(t, ts.OpenQueue(context.Background(), testQueue, mq.FlagWrite, domain.QueueOptions{}))

	_, err := ts.Post(context.Background(), testQueue, []byte("x"), PostOptions{})
	require.NoError(t, err)

	msg, ok := captured.Load().(mq.OutboundMessage)
	require.True(t, ok)
	assert.Equal(t, domain.CompressionZlib, msg.Compression)
	assert.False(t, msg.WantAck)
}

// capturingConn records the last posted message
type capturingConn struct {
	*mq.Loopback
	last *atomic.Value
}

func (c *capturingConn) Post(ctx context.Context, msg *mq.OutboundMessage) mq.Status {
	c.last.Store(*msg)
	return c.Loopback.Post(ctx, msg)
}
